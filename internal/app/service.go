// Package service wires the capture pipeline together and owns its
// lifecycle: sensor reader, cooldown scheduler, capture worker and the
// offline award flusher.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/pointbin/internal/adapters/backend"
	"github.com/okian/pointbin/internal/adapters/camera"
	"github.com/okian/pointbin/internal/adapters/classifier"
	eventqueue "github.com/okian/pointbin/internal/adapters/mq/queue"
	"github.com/okian/pointbin/internal/adapters/mq/worker"
	"github.com/okian/pointbin/internal/adapters/repository"
	"github.com/okian/pointbin/internal/adapters/sensor"
	"github.com/okian/pointbin/internal/config"
	"github.com/okian/pointbin/internal/domain/award"
	"github.com/okian/pointbin/internal/domain/classify"
	"github.com/okian/pointbin/internal/domain/debounce"
	"github.com/okian/pointbin/internal/domain/model"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")

// Service owns the capture pipeline and implements the status API dependencies.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	// injectable collaborators
	dialer         sensor.Dialer
	opener         camera.Opener
	transport      classify.Transport
	now            func() time.Time
	retrySleep     classify.Sleeper
	sensorDisabled bool

	// Core components
	debouncer  *debounce.Debouncer
	scheduler  *Scheduler
	queue      *eventqueue.InMemoryQueue
	worker     *worker.CaptureWorker
	reader     *sensor.Reader
	awards     *award.Coordinator
	offline    *repository.FileQueue
	captureLog *repository.CaptureLog

	// background loops
	readerCancel  context.CancelFunc
	readerDone    chan struct{}
	flusherCancel context.CancelFunc
	flusherDone   chan struct{}

	started bool
	logger  logger.Logger
}

// New constructs a Service from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start builds every component and launches the background loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting capture service...")
	cfg := s.cfg

	images, err := repository.NewImageStore(cfg.ImageSaveDir)
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}

	s.offline = repository.NewFileQueue(cfg.AwardQueuePath)
	if err := s.offline.Init(); err != nil {
		// degraded: awards that fail delivery will be logged and lost
		s.logger.Warn(ctx, "cannot create award queue file", logger.Error(err))
	}

	var auditLog worker.AuditLog
	if cfg.AuditDBPath != "" {
		if err := ensureDir(cfg.AuditDBPath); err != nil {
			return err
		}
		s.captureLog, err = repository.OpenCaptureLog(ctx, cfg.AuditDBPath)
		if err != nil {
			s.logger.Warn(ctx, "capture audit log disabled", logger.Error(err))
		} else {
			auditLog = s.captureLog
		}
	}

	backendClient := backend.New(cfg.BackendURL, cfg.BackendServiceKey,
		backend.WithTimeout(cfg.HTTPTimeout()),
		backend.WithDeviceCredentials(cfg.DeviceID, cfg.DeviceSecret),
	)
	s.awards = award.New(backendClient, s.offline,
		award.WithEnabled(cfg.AwardPointsEnabled),
		award.WithMinInterval(cfg.AwardMinInterval()),
		award.WithClassPoints(cfg.ClassPoints()),
		award.WithEndpoints(cfg.AwardPrimaryEndpoint, cfg.AwardLegacyEndpoint),
		award.WithMaxBatch(cfg.AwardMaxBatch),
		award.WithClock(s.now),
	)

	classifyOpts := []classify.Option{classify.WithMaxRetries(cfg.MaxRetries)}
	if s.retrySleep != nil {
		classifyOpts = append(classifyOpts, classify.WithSleeper(s.retrySleep))
	}
	classifierClient := classify.New(s.classifierTransport(ctx), classifyOpts...)

	opener := s.opener
	if opener == nil {
		opener = camera.NewFFmpegOpener(cfg.CameraIndex, camera.WithCommand(cfg.CameraCommand))
	}

	s.queue = eventqueue.NewInMemoryQueue()
	workerOpts := []worker.Option{
		worker.WithAwarder(s.awards),
		worker.WithDefaultPoints(cfg.AwardDefaultPoints),
	}
	if auditLog != nil {
		workerOpts = append(workerOpts, worker.WithAuditLog(auditLog))
	}
	s.worker = worker.NewCaptureWorker(s.queue, opener, classifierClient, images, workerOpts...)

	s.debouncer = debounce.New(
		debounce.WithMinInterval(cfg.DebounceInterval()),
		debounce.WithClock(s.now),
	)
	s.scheduler = NewScheduler(s.queue, cfg.CaptureCooldown(), s.now, s.logger.Named("scheduler"))

	// the worker drains on Shutdown, so it must outlive the start context
	go s.worker.Run(context.WithoutCancel(ctx))

	if !s.sensorDisabled {
		dialer := s.dialer
		if dialer == nil {
			dialer = sensor.SerialDialer{Port: cfg.SerialPort, Baud: cfg.SerialBaud}
		}
		s.reader = sensor.NewReader(dialer, s.HandleRecord)
		readerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.readerCancel = cancel
		s.readerDone = make(chan struct{})
		go func() {
			defer close(s.readerDone)
			s.reader.Run(readerCtx)
		}()
	}

	if s.awards.Active() {
		flusherCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.flusherCancel = cancel
		s.flusherDone = make(chan struct{})
		go func() {
			defer close(s.flusherDone)
			s.awards.RunFlusher(flusherCtx, cfg.AwardQueueFlushInterval())
		}()
	} else {
		s.logger.Info(ctx, "award flusher disabled: backend not configured or awards off")
	}

	s.started = true
	s.logger.Info(ctx, "capture service started",
		logger.String("serial", cfg.SerialPort),
		logger.Duration("cooldown", cfg.CaptureCooldown()),
		logger.Bool("awards", s.awards.Active()),
	)
	return nil
}

func (s *Service) classifierTransport(ctx context.Context) classify.Transport {
	if s.transport != nil {
		return s.transport
	}
	cfg := s.cfg
	opts := []classifier.Option{
		classifier.WithAPIKey(cfg.ClassifierAPIKey),
		classifier.WithTimeout(cfg.HTTPTimeout()),
	}
	if cfg.ClassifierUseSDK {
		s.logger.Info(ctx, "using serverless classifier transport")
		return classifier.NewServerlessTransport(cfg.ClassifierSDKURL, cfg.ClassifierModelID, opts...)
	}
	return classifier.NewHTTPTransport(cfg.ClassifierBaseURL, cfg.ClassifierModelID, opts...)
}

// HandleRecord runs the debouncer and the cooldown gate inline for one
// sensor record.
func (s *Service) HandleRecord(ctx context.Context, rec model.SensorRecord) {
	trig, ok := s.debouncer.Observe(ctx, rec)
	if !ok {
		return
	}
	s.scheduler.Enqueue(ctx, trig)
}

// Stop shuts down in order: the sensor reader, then the capture queue, then
// the award flusher and the audit log. Draining the capture queue ignores
// ctx's deadline; Stop returns only after every pending capture is processed.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping capture service...")

	if s.reader != nil {
		s.reader.Stop()
		s.readerCancel()
		<-s.readerDone
	}

	var errs []error
	if err := s.worker.Shutdown(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, fmt.Errorf("capture worker: %w", err))
	}

	if s.flusherCancel != nil {
		s.flusherCancel()
		<-s.flusherDone
	}

	if s.captureLog != nil {
		if err := s.captureLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capture log: %w", err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "capture service stopped")
	return errors.Join(errs...)
}

// DrainAwards runs one offline queue pass immediately.
func (s *Service) DrainAwards(ctx context.Context) (model.DrainResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.DrainResult{}, ErrNotStarted
	}
	return s.awards.Drain(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.Status{Started: s.started}
	if !s.started {
		return st
	}
	if s.reader != nil {
		st.SensorConnected = s.reader.Connected()
		st.SensorRecords = s.reader.Lines()
	}
	st.CaptureQueueDepth = s.queue.Len()
	st.CapturesProcessed = s.worker.Processed()
	st.CapturesFailed = s.worker.Failed()
	st.CooldownRemaining = s.scheduler.CooldownRemaining().Seconds()
	if at, ok := s.scheduler.LastCaptureAt(); ok {
		st.LastCaptureAt = at
	}
	st.AwardsActive = s.awards.Active()
	st.LastIdentity = s.debouncer.Snapshot().LastIdentity
	if n, err := s.offline.Len(); err == nil {
		st.OfflineQueueDepth = n
		metrics.UpdateOfflineQueueSize(n)
	}
	return st
}

// RecentCaptures lists the newest audited captures.
func (s *Service) RecentCaptures(ctx context.Context, limit int) ([]repository.CaptureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	if s.captureLog == nil {
		return []repository.CaptureRecord{}, nil
	}
	return s.captureLog.Recent(ctx, limit)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
