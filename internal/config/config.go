// Package config defines the agent configuration and its loading hooks.
//
// Conventions:
// - Every key is flat snake_case so it maps 1:1 onto POINTBIN_* variables.
// - Durations are expressed in (fractional) seconds, as the device env does.
// - Load validates and wraps failures with this package's sentinel errors.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Classifier service.
	ClassifierAPIKey  string `koanf:"classifier_api_key"`
	ClassifierModelID string `koanf:"classifier_model_id"`
	ClassifierBaseURL string `koanf:"classifier_base_url"`
	ClassifierSDKURL  string `koanf:"classifier_sdk_url"`
	ClassifierUseSDK  bool   `koanf:"classifier_use_sdk"`

	// Sensor link.
	SerialPort string `koanf:"serial_port"`
	SerialBaud int    `koanf:"serial_baud"`

	// CaptureCooldownSeconds is the minimum gap between two accepted captures.
	CaptureCooldownSeconds float64 `koanf:"capture_cooldown_seconds"`
	// UltraEventMinInterval is the debounce interval for a held sensor state.
	UltraEventMinInterval float64 `koanf:"ultra_event_min_interval"`

	// Camera and image storage.
	ImageSaveDir  string `koanf:"image_save_dir"`
	CameraIndex   int    `koanf:"camera_index"`
	CameraCommand string `koanf:"camera_command"`

	// RequestTimeout bounds every outbound HTTP request, in seconds.
	RequestTimeout float64 `koanf:"request_timeout"`
	// MaxRetries is the number of classification attempts.
	MaxRetries int `koanf:"max_retries"`

	// Backend profile/points service.
	BackendURL        string `koanf:"backend_url"`
	BackendServiceKey string `koanf:"backend_service_key"`
	DeviceID          string `koanf:"device_id"`
	DeviceSecret      string `koanf:"device_secret"`

	// Awards.
	AwardPointsEnabled      bool    `koanf:"award_points_enabled"`
	AwardDefaultPoints      int     `koanf:"award_default_points"`
	AwardClassPoints        string  `koanf:"award_class_points"`
	AwardMinIntervalSeconds float64 `koanf:"award_min_interval_seconds"`
	AwardQueuePath          string  `koanf:"award_queue_path"`
	AwardQueueFlushSeconds  float64 `koanf:"award_queue_flush_seconds"`
	AwardMaxBatch           int     `koanf:"award_max_batch"`
	AwardPrimaryEndpoint    string  `koanf:"award_primary_endpoint"`
	AwardLegacyEndpoint     string  `koanf:"award_legacy_endpoint"`

	// AuditDBPath is the SQLite capture log; empty disables it.
	AuditDBPath string `koanf:"audit_db_path"`
	// StatusAddr is the local status server address; empty disables it.
	StatusAddr string `koanf:"status_addr"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		ClassifierBaseURL:       "https://detect.roboflow.com",
		ClassifierSDKURL:        "https://serverless.roboflow.com",
		SerialPort:              "/dev/ttyUSB0",
		SerialBaud:              115200,
		CaptureCooldownSeconds:  5,
		UltraEventMinInterval:   2,
		ImageSaveDir:            "./captures",
		CameraIndex:             0,
		CameraCommand:           "ffmpeg",
		RequestTimeout:          10,
		MaxRetries:              3,
		DeviceID:                "UNSET_DEVICE",
		AwardPointsEnabled:      true,
		AwardDefaultPoints:      5,
		AwardMinIntervalSeconds: 30,
		AwardQueuePath:          "./award_queue.jsonl",
		AwardQueueFlushSeconds:  60,
		AwardMaxBatch:           50,
		AwardPrimaryEndpoint:    "device_award_points_v2",
		AwardLegacyEndpoint:     "device_award_points",
		AuditDBPath:             "./captures/captures.db",
		StatusAddr:              ":9100",
	}
}

// seconds converts a fractional-seconds setting into a time.Duration.
func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// CaptureCooldown returns the cooldown gate as a duration.
func (c *Config) CaptureCooldown() time.Duration { return seconds(c.CaptureCooldownSeconds) }

// DebounceInterval returns the held-state debounce interval.
func (c *Config) DebounceInterval() time.Duration { return seconds(c.UltraEventMinInterval) }

// HTTPTimeout returns the outbound request timeout.
func (c *Config) HTTPTimeout() time.Duration { return seconds(c.RequestTimeout) }

// AwardMinInterval returns the per-identity award rate limit.
func (c *Config) AwardMinInterval() time.Duration { return seconds(c.AwardMinIntervalSeconds) }

// AwardQueueFlushInterval returns the offline queue drain period.
func (c *Config) AwardQueueFlushInterval() time.Duration { return seconds(c.AwardQueueFlushSeconds) }

// BackendConfigured reports whether backend credentials are present.
func (c *Config) BackendConfigured() bool {
	return c.BackendURL != "" && c.BackendServiceKey != ""
}

// ClassPoints parses AwardClassPoints ("apple:10,banana:3") into a table.
// Malformed pairs are skipped.
func (c *Config) ClassPoints() map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(c.AwardClassPoints, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(k)] = n
	}
	return out
}
