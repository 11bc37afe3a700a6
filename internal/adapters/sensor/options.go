package sensor

import (
	"context"
	"time"

	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the Reader.
type Option func(*Reader)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WithOpenRetryDelay sets the wait after a failed open.
func WithOpenRetryDelay(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.openRetryDelay = d
		}
	}
}

// WithReconnectDelay sets the wait after a read error before reopening.
func WithReconnectDelay(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.reconnectDelay = d
		}
	}
}

// WithSleeper overrides how the reader waits between reconnects.
func WithSleeper(s Sleeper) Option {
	return func(r *Reader) {
		if s != nil {
			r.sleep = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}
