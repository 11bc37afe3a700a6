// Package sensor reads the sensor board's line protocol over a serial link
// and hands parsed records to the pipeline in arrival order.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// Default reader configuration constants.
const (
	defaultOpenRetryDelay = 5 * time.Second
	defaultReconnectDelay = 2 * time.Second
	warnEvery             = 30 * time.Second
)

// Handler consumes one parsed record. It runs inline on the reading goroutine.
type Handler func(ctx context.Context, rec model.SensorRecord)

// Reader owns the sensor link. It reopens the link forever on failure and
// stops cooperatively at the top of each iteration.
type Reader struct {
	dialer  Dialer
	handler Handler

	openRetryDelay time.Duration
	reconnectDelay time.Duration
	sleep          Sleeper

	mu   sync.Mutex
	link Link

	stopped   atomic.Bool
	lines     atomic.Int64
	connected atomic.Bool

	// repeated link failures are logged at most once per warnEvery
	openWarn rate.Sometimes
	readWarn rate.Sometimes

	logger logger.Logger
}

// NewReader creates a Reader that dispatches every record to handler.
func NewReader(dialer Dialer, handler Handler, opts ...Option) *Reader {
	r := &Reader{
		dialer:         dialer,
		handler:        handler,
		openRetryDelay: defaultOpenRetryDelay,
		reconnectDelay: defaultReconnectDelay,
		sleep:          sleepContext,
		openWarn:       rate.Sometimes{First: 1, Interval: warnEvery},
		readWarn:       rate.Sometimes{First: 1, Interval: warnEvery},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("sensor")
	}
	return r
}

// Run reads until ctx is done or Stop is called.
func (r *Reader) Run(ctx context.Context) {
	defer r.closeLink()

	for {
		if r.stopped.Load() || ctx.Err() != nil {
			r.logger.Info(ctx, "sensor reader stopped")
			return
		}

		link := r.currentLink()
		if link == nil {
			opened, err := r.open(ctx)
			if err != nil {
				if r.stopped.Load() {
					continue
				}
				metrics.RecordLinkError()
				r.openWarn.Do(func() {
					r.logger.Error(ctx, "sensor link open failed; retrying",
						logger.String("address", r.dialer.Address()),
						logger.Duration("retry_in", r.openRetryDelay),
						logger.Error(err),
					)
				})
				_ = r.sleep(ctx, r.openRetryDelay)
				continue
			}
			link = opened
		}

		line, err := link.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil || r.stopped.Load() {
				continue
			}
			metrics.RecordLinkError()
			r.readWarn.Do(func() {
				r.logger.Error(ctx, "sensor link error; closing and retrying", logger.Error(err))
			})
			r.closeLink()
			_ = r.sleep(ctx, r.reconnectDelay)
			metrics.RecordLinkReconnect()
			continue
		}

		rec, ok := Parse(line)
		if !ok {
			continue
		}
		r.lines.Add(1)
		metrics.RecordSensorRecord(rec.Kind().String())
		r.logger.Debug(ctx, "sensor line", logger.String("line", line))
		r.handler(ctx, rec)
	}
}

// Stop asks Run to return and unblocks a pending read.
func (r *Reader) Stop() {
	r.stopped.Store(true)
	r.closeLink()
}

// Connected reports whether the link is currently open.
func (r *Reader) Connected() bool { return r.connected.Load() }

// Lines returns how many records have been dispatched.
func (r *Reader) Lines() int64 { return r.lines.Load() }

func (r *Reader) open(ctx context.Context) (Link, error) {
	r.logger.Info(ctx, "opening sensor link", logger.String("address", r.dialer.Address()))
	link, err := r.dialer.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrLink) {
			err = fmt.Errorf("%w: %v", ErrLink, err)
		}
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped.Load() {
		_ = link.Close()
		return nil, fmt.Errorf("%w: reader stopped", ErrLink)
	}
	r.link = link
	r.connected.Store(true)
	return link, nil
}

func (r *Reader) currentLink() Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.link
}

func (r *Reader) closeLink() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		return
	}
	_ = r.link.Close()
	r.link = nil
	r.connected.Store(false)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
