// Package debounce turns raw sensor records into capture triggers.
//
// A state change always triggers (edge). A repeated state triggers again only
// once minInterval has elapsed since the last trigger-producing record (level
// fallback), so a held state still yields periodic captures.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

const defaultMinInterval = 2 * time.Second

// Debounce rule labels, also used as reason prefixes.
const (
	RuleStateChange = "state_change"
	RuleInterval    = "interval"
)

// State is the debouncer's memory of the sensor stream.
type State struct {
	LastState         string
	HasState          bool
	LastStateChangeAt time.Time
	LastIdentity      string
}

// Debouncer decides whether a sensor record justifies a capture trigger.
// It performs no I/O; callers invoke it inline on the sensor-reading path.
type Debouncer struct {
	mu          sync.Mutex
	state       State
	minInterval time.Duration
	now         func() time.Time
	newID       func() string
	logger      logger.Logger
}

// New creates a Debouncer with configuration options.
func New(opts ...Option) *Debouncer {
	d := &Debouncer{
		minInterval: defaultMinInterval,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("debounce")
	}
	return d
}

// Observe consumes one record and returns the trigger to enqueue, if any.
func (d *Debouncer) Observe(ctx context.Context, rec model.SensorRecord) (model.CaptureTrigger, bool) {
	switch r := rec.(type) {
	case model.StateEvent:
		return d.observeState(ctx, r)
	case model.IdentityRead:
		d.mu.Lock()
		d.state.LastIdentity = r.Identity
		d.mu.Unlock()
		d.logger.Info(ctx, "identity read", logger.String("identity", r.Identity))
	case model.Heartbeat:
		d.logger.Debug(ctx, "heartbeat received")
	case model.Unrecognized:
		d.logger.Debug(ctx, "unrecognized line", logger.String("line", r.Raw))
	}
	return model.CaptureTrigger{}, false
}

func (d *Debouncer) observeState(ctx context.Context, ev model.StateEvent) (model.CaptureTrigger, bool) {
	d.mu.Lock()
	now := d.now()

	var rule string
	switch {
	case ev.State != "" && (!d.state.HasState || ev.State != d.state.LastState):
		rule = RuleStateChange
		d.state.LastState = ev.State
		d.state.HasState = true
	case now.Sub(d.state.LastStateChangeAt) >= d.minInterval:
		rule = RuleInterval
	default:
		d.mu.Unlock()
		return model.CaptureTrigger{}, false
	}
	d.state.LastStateChangeAt = now
	identity := d.state.LastIdentity
	d.mu.Unlock()

	reason := "ultra_" + rule + ":" + ev.State
	trig := model.CaptureTrigger{
		ID:       d.newID(),
		Reason:   reason,
		Distance: ev.Distance,
		State:    ev.State,
		Identity: identity,
	}
	metrics.RecordTriggerEmitted(rule)
	d.logger.Debug(ctx, "trigger emitted",
		logger.String("reason", reason),
		logger.String("distance", ev.Distance),
		logger.String("identity", identity),
	)
	return trig, true
}

// Snapshot returns a copy of the current debounce state.
func (d *Debouncer) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
