// Package worker runs the single capture consumer: it pulls triggers in FIFO
// order and, one at a time, captures a frame, classifies it, stores the
// result for audit and requests an award when the capture is attributable.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/pointbin/internal/adapters/camera"
	"github.com/okian/pointbin/internal/adapters/repository"
	"github.com/okian/pointbin/internal/domain/award"
	"github.com/okian/pointbin/internal/domain/classify"
	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultPoints = 5
	awardReason   = "classification_event"
)

// Capture outcome labels.
const (
	OutcomeClassified          = "classified"
	OutcomeCameraError         = "camera_error"
	OutcomeClassificationError = "classification_error"
	OutcomeStorageError        = "storage_error"
)

// Queue defines how the worker receives triggers.
type Queue interface {
	Dequeue() <-chan model.CaptureTrigger
	Len() int
}

// Classifier turns an image into a prediction.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (classify.Result, error)
}

// Awarder issues best-effort awards.
type Awarder interface {
	Award(ctx context.Context, identity string, points int, reason, topClass string) award.Outcome
}

// ImageStore persists frames and their classification sidecars.
type ImageStore interface {
	SaveImage(image []byte, at time.Time) (string, error)
	SaveSidecar(imagePath string, raw json.RawMessage, pred model.Prediction) (string, error)
}

// AuditLog indexes classified captures.
type AuditLog interface {
	Record(ctx context.Context, r repository.CaptureRecord) error
}

// Worker processes triggers until its queue is closed.
type Worker interface {
	// Run starts the worker loop until the queue closes or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown closes the queue and waits until every pending trigger is processed.
	Shutdown(ctx context.Context) error
}

// CaptureWorker implements Worker. It owns the camera exclusively.
type CaptureWorker struct {
	queue      Queue
	opener     camera.Opener
	classifier Classifier
	images     ImageStore
	awarder    Awarder
	audit      AuditLog
	name       string

	defaultPoints int
	now           func() time.Time

	// opened lazily, released and cleared on any capture or classification error
	device camera.Device

	processed atomic.Int64
	failed    atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewCaptureWorker creates a new worker with configuration options.
func NewCaptureWorker(q Queue, opener camera.Opener, classifier Classifier, images ImageStore, opts ...Option) *CaptureWorker {
	w := &CaptureWorker{
		queue:         q,
		opener:        opener,
		classifier:    classifier,
		images:        images,
		name:          "capture",
		defaultPoints: defaultPoints,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "capture" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *CaptureWorker) Run(ctx context.Context) {
	defer func() {
		w.releaseCamera(ctx)
		close(w.done)
	}()

	triggers := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case trig, ok := <-triggers:
			if !ok {
				w.logger.Info(ctx, "capture queue drained")
				return
			}
			if err := w.Process(ctx, trig); err != nil {
				w.failed.Add(1)
				w.logger.Error(ctx, "capture processing failed",
					logger.String("trigger_id", trig.ID),
					logger.String("reason", trig.Reason),
					logger.Error(err),
				)
			}
			w.processed.Add(1)
			metrics.UpdateCaptureQueueSize(w.queue.Len())
		}
	}
}

// Shutdown closes the queue, the shutdown sentinel, and blocks until the
// worker has processed everything that was queued.
func (w *CaptureWorker) Shutdown(ctx context.Context) error {
	if closer, ok := w.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			w.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *CaptureWorker) Done() <-chan struct{} { return w.done }

// Processed returns how many triggers were taken off the queue.
func (w *CaptureWorker) Processed() int64 { return w.processed.Load() }

// Failed returns how many triggers ended in an error.
func (w *CaptureWorker) Failed() int64 { return w.failed.Load() }

// Process handles one trigger end to end. It must not run concurrently with
// itself; Run guarantees that.
func (w *CaptureWorker) Process(ctx context.Context, trig model.CaptureTrigger) error {
	start := time.Now()
	defer func() {
		metrics.RecordCaptureLatency(float64(time.Since(start).Milliseconds()))
	}()

	image, err := w.capture(ctx)
	if err != nil {
		w.releaseCamera(ctx)
		metrics.RecordCapture(OutcomeCameraError)
		metrics.RecordErrorByComponent("worker", "capture")
		return fmt.Errorf("capture for %s: %w", trig.Reason, err)
	}

	capturedAt := w.now()
	imagePath, err := w.images.SaveImage(image, capturedAt)
	if err != nil {
		w.releaseCamera(ctx)
		metrics.RecordCapture(OutcomeStorageError)
		return fmt.Errorf("save image: %w", err)
	}
	w.logger.Info(ctx, "captured image",
		logger.String("path", imagePath),
		logger.String("reason", trig.Reason),
	)

	res, err := w.classifier.Classify(ctx, image)
	if err != nil {
		w.releaseCamera(ctx)
		metrics.RecordCapture(OutcomeClassificationError)
		metrics.RecordErrorByComponent("worker", "classification")
		return fmt.Errorf("classify %s: %w", imagePath, err)
	}
	metrics.RecordCapture(OutcomeClassified)
	w.logger.Info(ctx, "classification", logger.String("summary", res.Prediction.String()))

	w.persist(ctx, trig, imagePath, capturedAt, res)

	if trig.HasIdentity() && !res.Prediction.Empty() && w.awarder != nil {
		outcome := w.awarder.Award(ctx, trig.Identity, w.defaultPoints, awardReason, res.Prediction.TopClass)
		w.logger.Debug(ctx, "award requested",
			logger.String("identity", trig.Identity),
			logger.String("outcome", string(outcome)),
		)
	}
	return nil
}

func (w *CaptureWorker) capture(ctx context.Context) ([]byte, error) {
	if w.device == nil {
		dev, err := w.opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		w.device = dev
	}
	image, err := w.device.Capture(ctx)
	if err != nil {
		return nil, err
	}
	return image, nil
}

// persist writes the audit sidecar and row. Failures are logged only.
func (w *CaptureWorker) persist(ctx context.Context, trig model.CaptureTrigger, imagePath string, at time.Time, res classify.Result) {
	if _, err := w.images.SaveSidecar(imagePath, res.Raw, res.Prediction); err != nil {
		w.logger.Warn(ctx, "failed to write classification sidecar", logger.Error(err))
	}
	if w.audit == nil {
		return
	}
	rec := repository.CaptureRecord{
		ID:            trig.ID,
		ImagePath:     imagePath,
		Reason:        trig.Reason,
		Identity:      trig.Identity,
		State:         trig.State,
		Distance:      trig.Distance,
		TopClass:      res.Prediction.TopClass,
		TopConfidence: res.Prediction.TopConfidence,
		Count:         res.Prediction.Count,
		CreatedAt:     at,
	}
	if err := w.audit.Record(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn(ctx, "failed to record capture", logger.Error(err))
	}
}

func (w *CaptureWorker) releaseCamera(ctx context.Context) {
	if w.device == nil {
		return
	}
	if err := w.device.Release(); err != nil {
		w.logger.Warn(ctx, "camera release failed", logger.Error(err))
	}
	w.device = nil
}
