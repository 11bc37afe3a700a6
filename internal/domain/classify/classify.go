// Package classify submits captured images to a remote classifier with
// bounded exponential retry and normalizes whatever the service returns.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	// large enough that three or four doublings are never capped
	maxBackoff = 10 * time.Minute
)

// Transport performs a single submission of an image and returns the raw
// response body. Any non-success outcome is an error.
type Transport interface {
	Submit(ctx context.Context, image []byte) ([]byte, error)
	Name() string
}

// Result is the outcome of a successful classification.
type Result struct {
	Raw        json.RawMessage  `json:"raw"`
	Prediction model.Prediction `json:"prediction"`
	Attempts   int              `json:"attempts"`
}

// Client classifies images through one Transport chosen at startup.
type Client struct {
	transport      Transport
	maxRetries     int
	initialBackoff time.Duration
	sleep          Sleeper
	logger         logger.Logger
}

// New creates a Client on top of transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:      transport,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("classify")
	}
	return c
}

// Classify submits image up to maxRetries times. Between attempts it waits
// 2s, 4s, 8s and so on; it does not wait after the last attempt.
func (c *Client) Classify(ctx context.Context, image []byte) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordClassificationLatency(float64(time.Since(start).Milliseconds()))
	}()

	schedule := c.newBackOff()
	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		attempts = attempt
		metrics.RecordClassificationAttempt()

		res, err := c.attempt(ctx, image)
		if err == nil {
			res.Attempts = attempt
			c.logger.Info(ctx, "classification succeeded",
				logger.String("transport", c.transport.Name()),
				logger.Int("attempt", attempt),
				logger.String("prediction", res.Prediction.String()),
			)
			return res, nil
		}
		lastErr = err
		c.logger.Warn(ctx, "classification attempt failed",
			logger.String("transport", c.transport.Name()),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if attempt == c.maxRetries {
			break
		}
		if err := c.sleep(ctx, schedule.NextBackOff()); err != nil {
			lastErr = err
			break
		}
	}

	metrics.RecordClassificationFailure()
	return Result{}, fmt.Errorf("%w after %d attempt(s): %w", ErrClassification, attempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, image []byte) (Result, error) {
	raw, err := c.transport.Submit(ctx, image)
	if err != nil {
		return Result{}, err
	}
	pred, err := Normalize(raw)
	if err != nil {
		return Result{}, err
	}
	return Result{Raw: json.RawMessage(raw), Prediction: pred}, nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxBackoff
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("classification backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
