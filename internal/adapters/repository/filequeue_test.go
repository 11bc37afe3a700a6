package repository_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/pointbin/internal/adapters/repository"
	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newQueue(t *testing.T) *repository.FileQueue {
	t.Helper()
	q := repository.NewFileQueue(filepath.Join(t.TempDir(), "queue", "award_queue.jsonl"))
	if err := q.Init(); err != nil {
		t.Fatalf("init queue: %v", err)
	}
	return q
}

func payloadN(i int) model.AwardPayload {
	return model.AwardPayload{
		ID:        fmt.Sprintf("a%d", i),
		Identity:  fmt.Sprintf("U%d", i),
		ProfileID: fmt.Sprintf("p%d", i),
		Points:    i,
		Reason:    "classification_event",
		Endpoints: model.EndpointList{"device_award_points_v2", "device_award_points"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func ids(ps []model.AwardPayload) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func always(ok bool) model.DeliveryAttempt {
	return func(context.Context, model.AwardPayload) bool { return ok }
}

func TestFileQueue_Init(t *testing.T) {
	Convey("Given a queue path that does not exist", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "q.jsonl")
		q := repository.NewFileQueue(path)

		Convey("When Init is called", func() {
			err := q.Init()

			Convey("Then an empty file is created", func() {
				So(err, ShouldBeNil)
				info, statErr := os.Stat(path)
				So(statErr, ShouldBeNil)
				So(info.Size(), ShouldEqual, 0)
				n, _ := q.Len()
				So(n, ShouldEqual, 0)
			})
		})
	})
}

func TestFileQueue_Drain(t *testing.T) {
	Convey("Given a queue with N appended payloads", t, func() {
		ctx := context.Background()
		q := newQueue(t)
		const n = 5
		for i := 1; i <= n; i++ {
			So(q.Append(ctx, payloadN(i)), ShouldBeNil)
		}
		size, err := q.Len()
		So(err, ShouldBeNil)
		So(size, ShouldEqual, n)

		Convey("When drained with an always-succeeding delivery", func() {
			res, err := q.DrainOnce(ctx, 50, always(true))

			Convey("Then the store is empty", func() {
				So(err, ShouldBeNil)
				So(res.Delivered, ShouldEqual, n)
				So(res.Remaining(), ShouldEqual, 0)
				size, _ := q.Len()
				So(size, ShouldEqual, 0)
			})
		})

		Convey("When drained with an always-failing delivery", func() {
			res, err := q.DrainOnce(ctx, 50, always(false))

			Convey("Then all entries remain in original order", func() {
				So(err, ShouldBeNil)
				So(res.Kept, ShouldEqual, n)
				entries, _ := q.Entries()
				So(ids(entries), ShouldResemble, []string{"a1", "a2", "a3", "a4", "a5"})
			})
		})

		Convey("When only some deliveries succeed", func() {
			attempt := func(_ context.Context, p model.AwardPayload) bool { return p.Points%2 == 0 }
			_, err := q.DrainOnce(ctx, 50, attempt)

			Convey("Then failed entries keep their relative order", func() {
				So(err, ShouldBeNil)
				entries, _ := q.Entries()
				So(ids(entries), ShouldResemble, []string{"a1", "a3", "a5"})
			})
		})

		Convey("When the batch limit is reached", func() {
			var attempted []string
			attempt := func(_ context.Context, p model.AwardPayload) bool {
				attempted = append(attempted, p.ID)
				return true
			}
			res, err := q.DrainOnce(ctx, 2, attempt)

			Convey("Then later entries are carried over untouched", func() {
				So(err, ShouldBeNil)
				So(attempted, ShouldResemble, []string{"a1", "a2"})
				So(res.Delivered, ShouldEqual, 2)
				So(res.Carried, ShouldEqual, 3)
				entries, _ := q.Entries()
				So(ids(entries), ShouldResemble, []string{"a3", "a4", "a5"})
			})
		})

		Convey("When failures interleave with the batch limit", func() {
			var attempted []string
			attempt := func(_ context.Context, p model.AwardPayload) bool {
				attempted = append(attempted, p.ID)
				return p.ID != "a1"
			}
			_, err := q.DrainOnce(ctx, 2, attempt)

			Convey("Then only successes count toward the batch", func() {
				So(err, ShouldBeNil)
				So(attempted, ShouldResemble, []string{"a1", "a2", "a3"})
				entries, _ := q.Entries()
				So(ids(entries), ShouldResemble, []string{"a1", "a4", "a5"})
			})
		})

		Convey("When a delivered entry is drained twice", func() {
			delivered := map[string]int{}
			attempt := func(_ context.Context, p model.AwardPayload) bool {
				delivered[p.ID]++
				return true
			}
			_, _ = q.DrainOnce(ctx, 50, attempt)
			_, _ = q.DrainOnce(ctx, 50, attempt)

			Convey("Then no entry is retried after success", func() {
				for _, count := range delivered {
					So(count, ShouldEqual, 1)
				}
				So(len(delivered), ShouldEqual, n)
			})
		})
	})
}

func TestFileQueue_MalformedLines(t *testing.T) {
	Convey("Given a queue file containing malformed and blank lines", t, func() {
		ctx := context.Background()
		q := newQueue(t)
		So(q.Append(ctx, payloadN(1)), ShouldBeNil)

		f, err := os.OpenFile(q.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
		So(err, ShouldBeNil)
		_, _ = f.WriteString("{not json\n\n")
		_ = f.Close()
		So(q.Append(ctx, payloadN(2)), ShouldBeNil)

		Convey("When drained with a failing delivery", func() {
			res, err := q.DrainOnce(ctx, 50, always(false))

			Convey("Then malformed lines are dropped and the rest kept", func() {
				So(err, ShouldBeNil)
				So(res.Malformed, ShouldEqual, 1)
				So(res.Kept, ShouldEqual, 2)
				data, _ := os.ReadFile(q.Path())
				So(strings.Count(string(data), "\n"), ShouldEqual, 2)
				So(string(data), ShouldNotContainSubstring, "not json")
			})
		})
	})
}

func TestFileQueue_ConcurrentAppend(t *testing.T) {
	Convey("Given concurrent appends during a drain", t, func() {
		ctx := context.Background()
		q := newQueue(t)
		for i := 1; i <= 10; i++ {
			So(q.Append(ctx, payloadN(i)), ShouldBeNil)
		}

		var wg sync.WaitGroup
		for i := 11; i <= 30; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = q.Append(ctx, payloadN(i))
			}(i)
		}
		_, err := q.DrainOnce(ctx, 50, always(false))
		wg.Wait()

		Convey("Then no append is lost", func() {
			So(err, ShouldBeNil)
			size, _ := q.Len()
			So(size, ShouldEqual, 30)
		})
	})
}

func TestFileQueue_MissingFile(t *testing.T) {
	Convey("Given a queue whose file was never created", t, func() {
		q := repository.NewFileQueue(filepath.Join(t.TempDir(), "absent.jsonl"))

		Convey("Then draining is a no-op", func() {
			res, err := q.DrainOnce(context.Background(), 10, always(true))
			So(err, ShouldBeNil)
			So(res, ShouldResemble, model.DrainResult{})
		})
	})
}
