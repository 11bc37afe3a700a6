// Package queue holds capture triggers between the sensor path and the
// capture worker.
//
// The queue is strictly FIFO and meant for a single consumer. Close acts as
// the shutdown sentinel: triggers already queued are still delivered, then
// the dequeue channel is closed.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/metrics"
)

// The cooldown gate keeps the queue short; capacity only bounds a stuck camera.
const defaultQueueCapacity = 256

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger. It never blocks.
	Enqueue(ctx context.Context, t model.CaptureTrigger) error

	// Dequeue returns the channel triggers are delivered on, in enqueue order.
	// The channel is closed once the queue is closed and empty.
	Dequeue() <-chan model.CaptureTrigger

	// Len returns the current number of queued triggers.
	Len() int

	// Close stops accepting triggers. Pending triggers stay deliverable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	triggers chan model.CaptureTrigger
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.triggers = make(chan model.CaptureTrigger, q.capacity)
	metrics.UpdateCaptureQueueSize(0)
	return q
}

// Enqueue adds a trigger to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t model.CaptureTrigger) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.triggers <- t:
		metrics.UpdateCaptureQueueSize(len(q.triggers))
		return nil
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue trigger: %w", ctx.Err())
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan model.CaptureTrigger {
	return q.triggers
}

// Len returns the current number of queued triggers.
func (q *InMemoryQueue) Len() int {
	size := len(q.triggers)
	metrics.UpdateCaptureQueueSize(size)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
