package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pointbin/internal/adapters/http/api"
	"github.com/okian/pointbin/internal/adapters/http/swagger"
	service "github.com/okian/pointbin/internal/app"
	"github.com/okian/pointbin/internal/config"
	"github.com/okian/pointbin/pkg/logger"
	"github.com/okian/pointbin/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	os.Exit(agent())
}

// agent configures the process-wide logger and metrics, then runs until
// SIGINT/SIGTERM. It returns the process exit code.
func agent() int {
	if err := logger.Init(); err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.InitWithOptions(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metrics.WithConstLabels(map[string]string{"device_id": cfg.DeviceID}))

	if err := run(ctx, cfg, nil); err != nil {
		log.Error(ctx, "agent stopped with error", logger.Error(err))
		return 1
	}
	return 0
}

// run starts the pipeline and, unless cfg.StatusAddr is empty, the status
// server. It blocks until ctx is done and shuts both down. ready, when
// non-nil, receives the bound status address.
func run(ctx context.Context, cfg *config.Config, ready chan<- string, opts ...service.Option) error {
	log := logger.Get()

	var ln net.Listener
	if cfg.StatusAddr != "" {
		var err error
		if ln, err = net.Listen("tcp", cfg.StatusAddr); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.StatusAddr, err)
		}
	}

	svc := service.New(cfg, opts...)
	if err := svc.Start(ctx); err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return fmt.Errorf("start service: %w", err)
	}
	go startSystemMetricsUpdater(ctx)

	var srv *http.Server
	serveErr := make(chan error, 1)
	if ln != nil {
		srv = newHTTPServer(svc)
		go func() {
			log.Info(ctx, "starting status server", logger.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
		if ready != nil {
			ready <- ln.Addr().String()
		}
	} else {
		log.Info(ctx, "status server disabled")
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error(ctx, "status server failed", logger.Error(err))
	}
	log.Info(ctx, "shutting down...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "status server shutdown failed", logger.Error(err))
		}
	}

	// Stop drains the capture queue without a deadline.
	if err := svc.Stop(context.Background()); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}
	log.Info(ctx, "agent stopped")
	return nil
}

// newHTTPServer builds the status server for svc.
func newHTTPServer(svc *service.Service) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)
	swagger.Register(mux)

	return &http.Server{
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
