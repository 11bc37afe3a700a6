package classify

import (
	"context"
	"time"

	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WithMaxRetries sets the number of attempts made per image.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialBackoff sets the delay after the first failed attempt.
// Subsequent delays double.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialBackoff = d
		}
	}
}

// WithSleeper overrides how the client waits between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
