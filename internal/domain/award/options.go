package award

import (
	"time"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithEnabled toggles awarding entirely.
func WithEnabled(enabled bool) Option {
	return func(c *Coordinator) { c.enabled = enabled }
}

// WithMinInterval sets the per-identity rate limit.
func WithMinInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// WithClassPoints sets the class to points override table.
func WithClassPoints(table map[string]int) Option {
	return func(c *Coordinator) {
		c.classPoints = make(map[string]int, len(table))
		for k, v := range table {
			c.classPoints[k] = v
		}
	}
}

// WithEndpoints sets the ordered endpoint list stamped on new payloads.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Coordinator) {
		list := make(model.EndpointList, 0, len(endpoints))
		for _, e := range endpoints {
			if e != "" {
				list = append(list, e)
			}
		}
		if len(list) > 0 {
			c.endpoints = list
		}
	}
}

// WithMaxBatch sets how many queued awards one drain pass may deliver.
func WithMaxBatch(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxBatch = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides how payload IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
