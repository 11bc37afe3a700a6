// Package award coordinates best-effort point awards: a per-identity rate
// limit, class-based point overrides, profile resolution, ordered endpoint
// delivery and an offline queue for everything that could not be delivered.
package award

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// Default award configuration constants.
const (
	defaultMinInterval     = 30 * time.Second
	defaultMaxBatch        = 50
	defaultPrimaryEndpoint = "device_award_points_v2"
	defaultLegacyEndpoint  = "device_award_points"
)

// Outcome describes what a single Award call did.
type Outcome string

// Award outcomes.
const (
	OutcomeSkipped     Outcome = "skipped"      // disabled or no credentials
	OutcomeRateLimited Outcome = "rate_limited" // identity awarded too recently
	OutcomeNoProfile   Outcome = "no_profile"   // identity unknown to the backend
	OutcomeDelivered   Outcome = "delivered"
	OutcomeQueued      Outcome = "queued"  // every endpoint failed, payload persisted
	OutcomeDropped     Outcome = "dropped" // could not even be persisted
)

// Backend is the remote profile/points service.
type Backend interface {
	// Configured reports whether credentials are present.
	Configured() bool
	// LookupProfile returns model.ErrProfileNotFound when the identity is unknown.
	LookupProfile(ctx context.Context, identity string) (string, error)
	// Deliver tries each payload endpoint in order and returns the one that accepted it.
	Deliver(ctx context.Context, p model.AwardPayload) (string, error)
}

// Store is the durable offline queue.
type Store interface {
	Append(ctx context.Context, p model.AwardPayload) error
	DrainOnce(ctx context.Context, maxBatch int, attempt model.DeliveryAttempt) (model.DrainResult, error)
}

// Coordinator issues awards. It never returns an error to its caller.
type Coordinator struct {
	backend Backend
	store   Store

	enabled     bool
	minInterval time.Duration
	classPoints map[string]int
	endpoints   model.EndpointList
	maxBatch    int

	// rateMu guards lastAward, shared by live awards and drains.
	rateMu    sync.Mutex
	lastAward map[string]time.Time

	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

// New creates a Coordinator.
func New(backend Backend, store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend:     backend,
		store:       store,
		enabled:     true,
		minInterval: defaultMinInterval,
		classPoints: map[string]int{},
		endpoints:   model.EndpointList{defaultPrimaryEndpoint, defaultLegacyEndpoint},
		maxBatch:    defaultMaxBatch,
		lastAward:   make(map[string]time.Time),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("award")
	}
	return c
}

// Active reports whether awards can be issued at all.
func (c *Coordinator) Active() bool {
	return c.enabled && c.backend != nil && c.backend.Configured()
}

// Award credits points to identity. topClass selects a points override when
// one is configured. The rate-limit slot is consumed only by a delivery.
func (c *Coordinator) Award(ctx context.Context, identity string, points int, reason, topClass string) Outcome {
	outcome := c.award(ctx, identity, points, reason, topClass)
	metrics.RecordAward(string(outcome))
	return outcome
}

func (c *Coordinator) award(ctx context.Context, identity string, points int, reason, topClass string) Outcome {
	if !c.Active() {
		c.logger.Debug(ctx, "award skipped: disabled or backend not configured")
		return OutcomeSkipped
	}

	if wait := c.remaining(identity); wait > 0 {
		c.logger.Info(ctx, "award rate limited",
			logger.String("identity", identity),
			logger.Duration("wait", wait),
		)
		return OutcomeRateLimited
	}

	if override, ok := c.classPoints[topClass]; ok && topClass != "" {
		points = override
	}

	p := model.AwardPayload{
		ID:        c.newID(),
		Identity:  identity,
		Points:    points,
		Reason:    reason,
		Endpoints: append(model.EndpointList(nil), c.endpoints...),
		CreatedAt: c.now(),
	}

	profileID, err := c.backend.LookupProfile(ctx, identity)
	switch {
	case errors.Is(err, model.ErrProfileNotFound):
		c.logger.Info(ctx, "award skipped: no profile", logger.String("identity", identity))
		return OutcomeNoProfile
	case err != nil:
		// the backend is unreachable; keep the award and resolve the profile on drain
		c.logger.Warn(ctx, "profile lookup failed", logger.String("identity", identity), logger.Error(err))
		return c.enqueue(ctx, p)
	}
	p = p.WithProfile(profileID)

	if _, err := c.backend.Deliver(ctx, p); err != nil {
		c.logger.Warn(ctx, "award delivery failed", logger.String("identity", identity), logger.Error(err))
		return c.enqueue(ctx, p)
	}
	c.recordAward(identity)
	return OutcomeDelivered
}

func (c *Coordinator) enqueue(ctx context.Context, p model.AwardPayload) Outcome {
	if err := c.store.Append(ctx, p); err != nil {
		metrics.RecordErrorByComponent("award", "queue_storage")
		c.logger.Error(ctx, "failed to persist award", logger.String("id", p.ID), logger.Error(err))
		return OutcomeDropped
	}
	return OutcomeQueued
}

// Drain makes one delivery pass over the offline queue.
func (c *Coordinator) Drain(ctx context.Context) (model.DrainResult, error) {
	if !c.Active() {
		return model.DrainResult{}, nil
	}
	res, err := c.store.DrainOnce(ctx, c.maxBatch, c.attemptQueued)
	if err != nil {
		metrics.RecordErrorByComponent("award", "queue_storage")
		c.logger.Warn(ctx, "award queue flush error", logger.Error(err))
	}
	return res, err
}

// attemptQueued delivers one persisted payload. Returning true removes it.
func (c *Coordinator) attemptQueued(ctx context.Context, p model.AwardPayload) bool {
	if !p.Resolved() {
		profileID, err := c.backend.LookupProfile(ctx, p.Identity)
		switch {
		case errors.Is(err, model.ErrProfileNotFound):
			c.logger.Warn(ctx, "dropping queued award: no profile",
				logger.String("id", p.ID),
				logger.String("identity", p.Identity),
			)
			return true
		case err != nil:
			return false
		}
		p = p.WithProfile(profileID)
	}
	if len(p.Endpoints) == 0 {
		p.Endpoints = append(model.EndpointList(nil), c.endpoints...)
	}
	if _, err := c.backend.Deliver(ctx, p); err != nil {
		return false
	}
	c.recordAward(p.Identity)
	return true
}

// RunFlusher drains the queue every interval until ctx is done.
func (c *Coordinator) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.Drain(ctx)
		}
	}
}

// LastAward returns when identity last received a delivered award.
func (c *Coordinator) LastAward(identity string) (time.Time, bool) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	t, ok := c.lastAward[identity]
	return t, ok
}

func (c *Coordinator) remaining(identity string) time.Duration {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	last, ok := c.lastAward[identity]
	if !ok {
		return 0
	}
	if elapsed := c.now().Sub(last); elapsed < c.minInterval {
		return c.minInterval - elapsed
	}
	return 0
}

func (c *Coordinator) recordAward(identity string) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	c.lastAward[identity] = c.now()
}
