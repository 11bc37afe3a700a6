// Package repository holds the device's local persistence: the JSONL offline
// award queue and the SQLite capture audit log.
package repository

import "github.com/okian/pointbin/pkg/logger"

// Option applies a configuration option to the FileQueue.
type Option func(*FileQueue)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(q *FileQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithFileMode sets the permissions used when the queue file is created.
func WithFileMode(mode uint32) Option {
	return func(q *FileQueue) {
		if mode != 0 {
			q.mode = mode
		}
	}
}
