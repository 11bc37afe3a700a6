package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// Enqueuer accepts capture triggers without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, t model.CaptureTrigger) error
}

// Scheduler is the cooldown gate in front of the capture queue. The gate's
// check-and-set is atomic with respect to concurrent callers.
type Scheduler struct {
	mu            sync.Mutex
	lastCaptureAt time.Time
	hasCaptured   bool

	cooldown time.Duration
	queue    Enqueuer
	now      func() time.Time

	// a held trigger source can produce a drop every debounce interval
	dropLog rate.Sometimes
	logger  logger.Logger
}

// NewScheduler creates a cooldown-gated scheduler in front of q.
func NewScheduler(q Enqueuer, cooldown time.Duration, now func() time.Time, l logger.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if l == nil {
		l = logger.Get().Named("scheduler")
	}
	return &Scheduler{
		cooldown: cooldown,
		queue:    q,
		now:      now,
		dropLog:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
		logger:   l,
	}
}

// Enqueue queues trig unless the previous accepted capture is younger than
// the cooldown. It reports whether the trigger was queued.
func (s *Scheduler) Enqueue(ctx context.Context, trig model.CaptureTrigger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.hasCaptured && now.Sub(s.lastCaptureAt) < s.cooldown {
		metrics.RecordTriggerDropped()
		s.dropLog.Do(func() {
			s.logger.Info(ctx, "cooldown active, skipping capture",
				logger.String("reason", trig.Reason),
				logger.Duration("remaining", s.cooldown-now.Sub(s.lastCaptureAt)),
			)
		})
		return false
	}

	trig.EnqueuedAt = now
	if err := s.queue.Enqueue(ctx, trig); err != nil {
		metrics.RecordErrorByComponent("scheduler", "enqueue")
		s.logger.Warn(ctx, "capture not queued",
			logger.String("reason", trig.Reason),
			logger.Error(err),
		)
		return false
	}
	s.lastCaptureAt = now
	s.hasCaptured = true
	s.logger.Info(ctx, "queued capture",
		logger.String("trigger_id", trig.ID),
		logger.String("reason", trig.Reason),
		logger.String("distance", trig.Distance),
		logger.String("identity", trig.Identity),
	)
	return true
}

// CooldownRemaining returns how long the gate stays closed.
func (s *Scheduler) CooldownRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCaptured {
		return 0
	}
	if left := s.cooldown - s.now().Sub(s.lastCaptureAt); left > 0 {
		return left
	}
	return 0
}

// LastCaptureAt returns when the gate last accepted a trigger.
func (s *Scheduler) LastCaptureAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCaptureAt, s.hasCaptured
}
