package service

import (
	"time"

	"github.com/okian/pointbin/internal/adapters/camera"
	"github.com/okian/pointbin/internal/adapters/sensor"
	"github.com/okian/pointbin/internal/domain/classify"
	"github.com/okian/pointbin/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSensorDialer replaces the serial port dialer.
func WithSensorDialer(d sensor.Dialer) Option {
	return func(s *Service) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithCameraOpener replaces the ffmpeg camera.
func WithCameraOpener(o camera.Opener) Option {
	return func(s *Service) {
		if o != nil {
			s.opener = o
		}
	}
}

// WithClassifierTransport replaces the transport chosen from configuration.
func WithClassifierTransport(t classify.Transport) Option {
	return func(s *Service) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithClock overrides the time source of the debouncer, scheduler and awards.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetrySleeper overrides how classification retries wait.
func WithRetrySleeper(sl classify.Sleeper) Option {
	return func(s *Service) {
		if sl != nil {
			s.retrySleep = sl
		}
	}
}

// WithoutSensor skips the sensor reader; records are fed through HandleRecord.
func WithoutSensor() Option {
	return func(s *Service) { s.sensorDisabled = true }
}
