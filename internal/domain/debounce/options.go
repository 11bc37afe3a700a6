// Package debounce turns raw sensor records into capture triggers.
package debounce

import (
	"time"

	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the Debouncer.
type Option func(*Debouncer)

// WithMinInterval sets how long a held state must last before it triggers again.
func WithMinInterval(d time.Duration) Option {
	return func(db *Debouncer) {
		if d >= 0 {
			db.minInterval = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(db *Debouncer) {
		if now != nil {
			db.now = now
		}
	}
}

// WithIDGenerator overrides how trigger IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(db *Debouncer) {
		if gen != nil {
			db.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(db *Debouncer) {
		if l != nil {
			db.logger = l
		}
	}
}
