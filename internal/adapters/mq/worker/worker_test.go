package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/pointbin/internal/adapters/camera"
	queue "github.com/okian/pointbin/internal/adapters/mq/queue"
	worker "github.com/okian/pointbin/internal/adapters/mq/worker"
	"github.com/okian/pointbin/internal/adapters/repository"
	"github.com/okian/pointbin/internal/domain/award"
	"github.com/okian/pointbin/internal/domain/classify"
	model "github.com/okian/pointbin/internal/domain/model"
	logging "github.com/okian/pointbin/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

// Mock implementations for testing.
type mockDevice struct {
	opener *mockOpener
}

func (d *mockDevice) Capture(context.Context) ([]byte, error) {
	d.opener.mu.Lock()
	defer d.opener.mu.Unlock()
	d.opener.captures++
	if d.opener.failNext > 0 {
		d.opener.failNext--
		return nil, fmt.Errorf("%w: no frame", camera.ErrCapture)
	}
	return []byte("jpeg"), nil
}

func (d *mockDevice) Release() error {
	d.opener.mu.Lock()
	defer d.opener.mu.Unlock()
	d.opener.releases++
	return nil
}

type mockOpener struct {
	mu       sync.Mutex
	opens    int
	captures int
	releases int
	failNext int
}

func (o *mockOpener) Open(context.Context) (camera.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	return &mockDevice{opener: o}, nil
}

type mockClassifier struct {
	mu      sync.Mutex
	results []classify.Result
	errs    []error
	calls   int
}

func (c *mockClassifier) Classify(context.Context, []byte) (classify.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return classify.Result{}, c.errs[i]
	}
	if i < len(c.results) {
		return c.results[i], nil
	}
	return appleResult(), nil
}

type awardCall struct {
	identity string
	points   int
	reason   string
	topClass string
}

type mockAwarder struct {
	mu    sync.Mutex
	calls []awardCall
}

func (a *mockAwarder) Award(_ context.Context, identity string, points int, reason, topClass string) award.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, awardCall{identity, points, reason, topClass})
	return award.OutcomeDelivered
}

type mockAudit struct {
	mu   sync.Mutex
	recs []repository.CaptureRecord
}

func (m *mockAudit) Record(_ context.Context, r repository.CaptureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func appleResult() classify.Result {
	return classify.Result{
		Raw:        []byte(`{"predictions":[{"class":"apple","confidence":0.92}]}`),
		Prediction: model.Prediction{TopClass: "apple", TopConfidence: 0.92, Count: 1},
		Attempts:   1,
	}
}

type failingImages struct{}

func (failingImages) SaveImage([]byte, time.Time) (string, error) {
	return "", fmt.Errorf("%w: disk full", repository.ErrImageStore)
}

func (failingImages) SaveSidecar(string, json.RawMessage, model.Prediction) (string, error) {
	return "", nil
}

type harness struct {
	queue      *queue.InMemoryQueue
	opener     *mockOpener
	classifier *mockClassifier
	awarder    *mockAwarder
	audit      *mockAudit
	images     *repository.ImageStore
	worker     *worker.CaptureWorker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	images, err := repository.NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("image store: %v", err)
	}
	h := &harness{
		queue:      queue.NewInMemoryQueue(queue.WithCapacity(16)),
		opener:     &mockOpener{},
		classifier: &mockClassifier{},
		awarder:    &mockAwarder{},
		audit:      &mockAudit{},
		images:     images,
	}
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	h.worker = worker.NewCaptureWorker(h.queue, h.opener, h.classifier, images,
		worker.WithAwarder(h.awarder),
		worker.WithAuditLog(h.audit),
		worker.WithDefaultPoints(5),
		worker.WithClock(func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			tick = tick.Add(time.Second)
			return tick
		}),
	)
	return h
}

func trig(id, identity string) model.CaptureTrigger {
	return model.CaptureTrigger{ID: id, Reason: "ultra_state_change:PRESENT", State: "PRESENT", Identity: identity}
}

func TestCaptureWorker_Process(t *testing.T) {
	convey.Convey("Given a capture worker", t, func() {
		ctx := context.Background()
		h := newHarness(t)

		convey.Convey("When a trigger with an identity is classified", func() {
			err := h.worker.Process(ctx, trig("t1", "U1"))

			convey.Convey("Then the award is requested with the top class", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(h.awarder.calls, convey.ShouldResemble, []awardCall{{"U1", 5, "classification_event", "apple"}})
			})

			convey.Convey("And the image, sidecar and audit row are written", func() {
				convey.So(len(h.audit.recs), convey.ShouldEqual, 1)
				rec := h.audit.recs[0]
				convey.So(rec.ID, convey.ShouldEqual, "t1")
				convey.So(rec.TopClass, convey.ShouldEqual, "apple")
				_, statErr := os.Stat(rec.ImagePath)
				convey.So(statErr, convey.ShouldBeNil)
				_, statErr = os.Stat(rec.ImagePath + ".json")
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the trigger has no identity", func() {
			err := h.worker.Process(ctx, trig("t1", ""))

			convey.Convey("Then no award is requested", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(h.awarder.calls, convey.ShouldBeEmpty)
				convey.So(len(h.audit.recs), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the prediction is empty", func() {
			h.classifier.results = []classify.Result{{Raw: []byte(`{"predictions":[]}`)}}
			err := h.worker.Process(ctx, trig("t1", "U1"))

			convey.Convey("Then no award is requested", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(h.awarder.calls, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the camera fails", func() {
			h.opener.failNext = 1
			err := h.worker.Process(ctx, trig("t1", "U1"))

			convey.Convey("Then the trigger is dropped and the camera reset", func() {
				convey.So(errors.Is(err, camera.ErrCapture), convey.ShouldBeTrue)
				convey.So(h.opener.releases, convey.ShouldEqual, 1)
				convey.So(h.classifier.calls, convey.ShouldEqual, 0)
			})

			convey.Convey("And the next trigger reopens the camera", func() {
				convey.So(h.worker.Process(ctx, trig("t2", "U1")), convey.ShouldBeNil)
				convey.So(h.opener.opens, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When classification fails", func() {
			h.classifier.errs = []error{fmt.Errorf("%w: 3 attempts", classify.ErrClassification)}
			err := h.worker.Process(ctx, trig("t1", "U1"))

			convey.Convey("Then no award occurs and the camera is reset", func() {
				convey.So(errors.Is(err, classify.ErrClassification), convey.ShouldBeTrue)
				convey.So(h.awarder.calls, convey.ShouldBeEmpty)
				convey.So(h.audit.recs, convey.ShouldBeEmpty)
				convey.So(h.opener.releases, convey.ShouldEqual, 1)
			})

			convey.Convey("And the next trigger proceeds", func() {
				convey.So(h.worker.Process(ctx, trig("t2", "U1")), convey.ShouldBeNil)
				convey.So(len(h.awarder.calls), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the image cannot be saved", func() {
			w := worker.NewCaptureWorker(h.queue, h.opener, h.classifier, failingImages{},
				worker.WithAwarder(h.awarder),
			)
			err := w.Process(ctx, trig("t1", "U1"))

			convey.Convey("Then the trigger is dropped and the camera reset", func() {
				convey.So(errors.Is(err, repository.ErrImageStore), convey.ShouldBeTrue)
				convey.So(h.opener.releases, convey.ShouldEqual, 1)
				convey.So(h.classifier.calls, convey.ShouldEqual, 0)
				convey.So(h.awarder.calls, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When consecutive captures succeed", func() {
			_ = h.worker.Process(ctx, trig("t1", ""))
			_ = h.worker.Process(ctx, trig("t2", ""))

			convey.Convey("Then the camera is opened once", func() {
				convey.So(h.opener.opens, convey.ShouldEqual, 1)
				convey.So(h.opener.captures, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestCaptureWorker_RunAndShutdown(t *testing.T) {
	convey.Convey("Given a running worker with queued triggers", t, func() {
		ctx := context.Background()
		h := newHarness(t)
		for i := 0; i < 5; i++ {
			convey.So(h.queue.Enqueue(ctx, trig(fmt.Sprintf("t%d", i), "")), convey.ShouldBeNil)
		}
		go h.worker.Run(ctx)

		convey.Convey("When shutdown is requested", func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := h.worker.Shutdown(shutdownCtx)

			convey.Convey("Then every queued trigger is processed in order first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(h.worker.Processed(), convey.ShouldEqual, 5)
				h.audit.mu.Lock()
				defer h.audit.mu.Unlock()
				for i, rec := range h.audit.recs {
					convey.So(rec.ID, convey.ShouldEqual, fmt.Sprintf("t%d", i))
				}
				convey.So(h.opener.releases, convey.ShouldEqual, 1)
				convey.So(h.queue.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
