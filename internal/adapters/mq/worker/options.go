// Package worker runs the single capture consumer.
package worker

import (
	"time"

	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the CaptureWorker.
type Option func(*CaptureWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *CaptureWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *CaptureWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithAwarder enables awards for classified captures that carry an identity.
func WithAwarder(a Awarder) Option {
	return func(w *CaptureWorker) { w.awarder = a }
}

// WithDefaultPoints sets the points requested per award before class overrides.
func WithDefaultPoints(points int) Option {
	return func(w *CaptureWorker) {
		if points > 0 {
			w.defaultPoints = points
		}
	}
}

// WithAuditLog records every classified capture.
func WithAuditLog(l AuditLog) Option {
	return func(w *CaptureWorker) { w.audit = l }
}

// WithClock overrides the time source used to name images.
func WithClock(now func() time.Time) Option {
	return func(w *CaptureWorker) {
		if now != nil {
			w.now = now
		}
	}
}
