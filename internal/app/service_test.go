package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pointbin/internal/adapters/camera"
	"github.com/okian/pointbin/internal/adapters/classifier"
	"github.com/okian/pointbin/internal/config"
	"github.com/okian/pointbin/internal/domain/model"
)

type stubDevice struct{}

func (stubDevice) Capture(context.Context) ([]byte, error) { return []byte("\xff\xd8jpeg\xff\xd9"), nil }
func (stubDevice) Release() error                          { return nil }

type stubOpener struct{}

func (stubOpener) Open(context.Context) (camera.Device, error) { return stubDevice{}, nil }

// fakeBackend mimics the profile table and the award procedures.
type fakeBackend struct {
	mu       sync.Mutex
	fail     map[string]bool
	calls    []string
	lastBody map[string]any
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rfid_uid") == "eq.U1" {
			_, _ = w.Write([]byte(`[{"id":"P1"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /rest/v1/rpc/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls = append(b.calls, name)
		if b.fail[name] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.lastBody = body
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (b *fakeBackend) setFail(name string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[name] = fail
}

func (b *fakeBackend) snapshot() ([]string, map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...), b.lastBody
}

type harness struct {
	svc          *Service
	backend      *fakeBackend
	clock        *fakeClock
	classifyHits atomic.Int32
	classifyOK   atomic.Bool
	cfg          *config.Config
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		backend: &fakeBackend{fail: map[string]bool{}},
		clock:   newFakeClock(),
	}
	h.classifyOK.Store(true)

	backendSrv := httptest.NewServer(h.backend.handler())
	t.Cleanup(backendSrv.Close)

	classifierSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.classifyHits.Add(1)
		if !h.classifyOK.Load() {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"predictions":[{"class":"apple","confidence":0.91},{"class":"bottle","confidence":0.2}]}`))
	}))
	t.Cleanup(classifierSrv.Close)

	dir := t.TempDir()
	cfg := config.New()
	cfg.ImageSaveDir = filepath.Join(dir, "captures")
	cfg.AuditDBPath = filepath.Join(dir, "captures", "captures.db")
	cfg.AwardQueuePath = filepath.Join(dir, "award_queue.jsonl")
	cfg.AwardQueueFlushSeconds = 3600
	cfg.AwardPointsEnabled = true
	cfg.AwardClassPoints = "apple:10"
	cfg.BackendURL = backendSrv.URL
	cfg.BackendServiceKey = "service-key"
	cfg.MaxRetries = 3
	h.cfg = cfg

	noSleep := func(context.Context, time.Duration) error { return nil }
	h.svc = New(cfg,
		WithoutSensor(),
		WithCameraOpener(stubOpener{}),
		WithClassifierTransport(classifier.NewHTTPTransport(classifierSrv.URL, "bins/1")),
		WithRetrySleeper(noSleep),
		WithClock(h.clock.Now),
	)
	return h
}

func (h *harness) feed(ctx context.Context, recs ...model.SensorRecord) {
	for _, rec := range recs {
		h.svc.HandleRecord(ctx, rec)
	}
}

func waitProcessed(svc *Service, n int64) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if svc.GetStats().CapturesProcessed >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestServicePipeline(t *testing.T) {
	Convey("Given a started service with stubbed hardware", t, func() {
		ctx := context.Background()
		h := newHarness(t)
		So(h.svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = h.svc.Stop(ctx) })

		Convey("an identity followed by presence awards the class points on the primary endpoint", func() {
			h.feed(ctx,
				model.IdentityRead{Identity: "U1"},
				model.StateEvent{State: "PRESENT", Distance: "12.3"},
			)
			So(waitProcessed(h.svc, 1), ShouldBeTrue)

			calls, body := h.backend.snapshot()
			So(calls, ShouldResemble, []string{"device_award_points_v2"})
			So(body["in_id"], ShouldEqual, "P1")
			So(body["in_points"], ShouldEqual, float64(10))
			So(body["in_reason"], ShouldEqual, "classification_event")
			So(h.classifyHits.Load(), ShouldEqual, 1)

			st := h.svc.GetStats()
			So(st.CapturesFailed, ShouldEqual, 0)
			So(st.OfflineQueueDepth, ShouldEqual, 0)
			So(st.LastIdentity, ShouldEqual, "U1")
			So(st.AwardsActive, ShouldBeTrue)

			recs, err := h.svc.RecentCaptures(ctx, 10)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].TopClass, ShouldEqual, "apple")
			So(recs[0].Identity, ShouldEqual, "U1")

			Convey("a second capture inside the award interval is not delivered", func() {
				h.clock.Advance(10 * time.Second)
				h.feed(ctx, model.StateEvent{State: "ABSENT"})
				So(waitProcessed(h.svc, 2), ShouldBeTrue)

				calls, _ := h.backend.snapshot()
				So(calls, ShouldHaveLength, 1)
			})
		})

		Convey("a trigger inside the cooldown is dropped", func() {
			h.feed(ctx,
				model.StateEvent{State: "PRESENT"},
				model.StateEvent{State: "ABSENT"},
			)
			So(waitProcessed(h.svc, 1), ShouldBeTrue)
			So(h.svc.GetStats().CaptureQueueDepth, ShouldEqual, 0)
			So(h.classifyHits.Load(), ShouldEqual, 1)
			So(h.svc.GetStats().CooldownRemaining, ShouldBeGreaterThan, 0)
		})

		Convey("a classifier failing every attempt produces no award and the pipeline carries on", func() {
			h.classifyOK.Store(false)
			h.feed(ctx,
				model.IdentityRead{Identity: "U1"},
				model.StateEvent{State: "PRESENT"},
			)
			So(waitProcessed(h.svc, 1), ShouldBeTrue)
			So(h.classifyHits.Load(), ShouldEqual, 3)
			So(h.svc.GetStats().CapturesFailed, ShouldEqual, 1)
			calls, _ := h.backend.snapshot()
			So(calls, ShouldBeEmpty)

			h.classifyOK.Store(true)
			h.clock.Advance(time.Minute)
			h.feed(ctx, model.StateEvent{State: "ABSENT"})
			So(waitProcessed(h.svc, 2), ShouldBeTrue)
			calls, _ = h.backend.snapshot()
			So(calls, ShouldHaveLength, 1)
		})

		Convey("when both endpoints fail the award is queued and a later drain delivers it", func() {
			h.backend.setFail("device_award_points_v2", true)
			h.backend.setFail("device_award_points", true)
			h.feed(ctx,
				model.IdentityRead{Identity: "U1"},
				model.StateEvent{State: "PRESENT"},
			)
			So(waitProcessed(h.svc, 1), ShouldBeTrue)

			calls, _ := h.backend.snapshot()
			So(calls, ShouldResemble, []string{"device_award_points_v2", "device_award_points"})
			So(h.svc.GetStats().OfflineQueueDepth, ShouldEqual, 1)

			h.backend.setFail("device_award_points_v2", false)
			res, err := h.svc.DrainAwards(ctx)
			So(err, ShouldBeNil)
			So(res.Delivered, ShouldEqual, 1)
			So(res.Remaining(), ShouldEqual, 0)
			So(h.svc.GetStats().OfflineQueueDepth, ShouldEqual, 0)

			calls, body := h.backend.snapshot()
			So(calls[len(calls)-1], ShouldEqual, "device_award_points_v2")
			So(body["in_points"], ShouldEqual, float64(10))
		})

		Convey("an unknown identity gets no award", func() {
			h.feed(ctx,
				model.IdentityRead{Identity: "NOPE"},
				model.StateEvent{State: "PRESENT"},
			)
			So(waitProcessed(h.svc, 1), ShouldBeTrue)
			calls, _ := h.backend.snapshot()
			So(calls, ShouldBeEmpty)
			So(h.svc.GetStats().OfflineQueueDepth, ShouldEqual, 0)
		})
	})
}

// slowTransport answers every classification after a fixed delay.
type slowTransport struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowTransport) Name() string { return "slow" }

func (s *slowTransport) Submit(ctx context.Context, _ []byte) ([]byte, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(`{"predictions":[{"class":"apple","confidence":0.8}]}`), nil
}

func TestServiceStopDrains(t *testing.T) {
	Convey("Given several captures queued behind a slow classifier", t, func() {
		h := newHarness(t)
		slow := &slowTransport{delay: 50 * time.Millisecond}
		svc := New(h.cfg,
			WithoutSensor(),
			WithCameraOpener(stubOpener{}),
			WithClassifierTransport(slow),
			WithClock(h.clock.Now),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		states := []string{"PRESENT", "ABSENT", "PRESENT", "ABSENT"}
		for _, st := range states {
			svc.HandleRecord(ctx, model.StateEvent{State: st})
			h.clock.Advance(time.Minute)
		}

		Convey("Stop with an expired deadline still processes every one of them", func() {
			stopCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
			defer cancel()
			So(svc.Stop(stopCtx), ShouldBeNil)

			So(slow.calls.Load(), ShouldEqual, len(states))
			sidecars, err := filepath.Glob(filepath.Join(h.cfg.ImageSaveDir, "*.jpg.json"))
			So(err, ShouldBeNil)
			So(sidecars, ShouldHaveLength, len(states))
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		h := newHarness(t)
		ctx := context.Background()

		Convey("stats report it as stopped and draining is refused", func() {
			So(h.svc.GetStats().Started, ShouldBeFalse)
			_, err := h.svc.DrainAwards(ctx)
			So(err, ShouldEqual, ErrNotStarted)
			So(h.svc.Stop(ctx), ShouldBeNil)
		})

		Convey("Stop processes every queued capture before returning", func() {
			So(h.svc.Start(ctx), ShouldBeNil)
			So(h.svc.Start(ctx), ShouldBeNil)
			h.feed(ctx, model.StateEvent{State: "PRESENT"})
			So(h.svc.Stop(ctx), ShouldBeNil)
			So(h.classifyHits.Load(), ShouldEqual, 1)
			So(h.svc.GetStats().Started, ShouldBeFalse)
		})

		Convey("the serverless transport is chosen by configuration", func() {
			h.cfg.ClassifierUseSDK = true
			svc := New(h.cfg)
			tr := svc.classifierTransport(ctx)
			So(tr.Name(), ShouldEqual, "serverless")
		})
	})
}
