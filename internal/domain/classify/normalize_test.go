package classify_test

import (
	"errors"
	"testing"

	"github.com/okian/pointbin/internal/domain/classify"
	"github.com/okian/pointbin/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalize(t *testing.T) {
	Convey("Given classifier responses of different shapes", t, func() {
		Convey("A list of predictions picks the max confidence", func() {
			p, err := classify.Normalize([]byte(`{"predictions":[
				{"class":"banana","confidence":0.4},
				{"class":"apple","confidence":0.92},
				{"label":"pear","confidence":0.5}]}`))
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.Prediction{TopClass: "apple", TopConfidence: 0.92, Count: 3})
		})

		Convey("A label field is used when class is absent", func() {
			p, err := classify.Normalize([]byte(`{"predictions":[{"label":"pear","confidence":0.7}]}`))
			So(err, ShouldBeNil)
			So(p.TopClass, ShouldEqual, "pear")
		})

		Convey("A mapping of label to confidence picks the max value", func() {
			p, err := classify.Normalize([]byte(`{"predictions":{"apple":0.2,"cup":0.75}}`))
			So(err, ShouldBeNil)
			So(p, ShouldResemble, model.Prediction{TopClass: "cup", TopConfidence: 0.75, Count: 2})
		})

		Convey("A mapping of label to confidence objects is accepted", func() {
			p, err := classify.Normalize([]byte(`{"predictions":{"apple":{"confidence":0.9},"cup":{"confidence":0.1}}}`))
			So(err, ShouldBeNil)
			So(p.TopClass, ShouldEqual, "apple")
			So(p.TopConfidence, ShouldEqual, 0.9)
		})

		Convey("A top-level list is treated as the prediction list", func() {
			p, err := classify.Normalize([]byte(`[{"class":"can","confidence":0.6}]`))
			So(err, ShouldBeNil)
			So(p.TopClass, ShouldEqual, "can")
			So(p.Count, ShouldEqual, 1)
		})

		Convey("Empty or unknown shapes become the sentinel", func() {
			for _, body := range []string{
				`{"predictions":[]}`,
				`{"predictions":{}}`,
				`{"predictions":"none"}`,
				`{"time":0.1}`,
				`42`,
				`null`,
			} {
				p, err := classify.Normalize([]byte(body))
				So(err, ShouldBeNil)
				So(p.Empty(), ShouldBeTrue)
				So(p.String(), ShouldEqual, model.NoPredictions)
			}
		})

		Convey("A body that is not JSON is an error", func() {
			_, err := classify.Normalize([]byte("not json"))
			So(errors.Is(err, classify.ErrMalformedResponse), ShouldBeTrue)
		})
	})
}
