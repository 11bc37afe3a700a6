package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables that steer the loader itself.
const (
	envPrefix     = "POINTBIN_"
	envConfigFile = "POINTBIN_CONFIG"
	envDotenvFile = "POINTBIN_DOTENV"
	defaultDotenv = ".env"
)

// Load builds a Config by layering defaults, dotenv, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. .env file (POINTBIN_DOTENV, default ".env"); never overrides set variables
//  3. file (YAML) if POINTBIN_CONFIG is set
//  4. env (prefix POINTBIN_)
func Load() (*Config, error) {
	base := New()

	if err := loadDotenv(); err != nil {
		return nil, fmt.Errorf("%w: dotenv: %w", ErrLoadConfig, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// POINTBIN_SERIAL_PORT -> serial_port. Keys are flat, so underscores are
	// preserved and the delimiter never matches.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotenv populates the process environment from a dotenv file if present.
func loadDotenv() error {
	path := os.Getenv(envDotenvFile)
	if path == "" {
		path = defaultDotenv
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfig)
	case c.CaptureCooldownSeconds < 0:
		return fmt.Errorf("%w: capture_cooldown_seconds must not be negative", ErrInvalidConfig)
	case c.UltraEventMinInterval < 0:
		return fmt.Errorf("%w: ultra_event_min_interval must not be negative", ErrInvalidConfig)
	case c.AwardMinIntervalSeconds < 0:
		return fmt.Errorf("%w: award_min_interval_seconds must not be negative", ErrInvalidConfig)
	case c.AwardQueueFlushSeconds <= 0:
		return fmt.Errorf("%w: award_queue_flush_seconds must be positive", ErrInvalidConfig)
	case c.AwardMaxBatch < 0:
		return fmt.Errorf("%w: award_max_batch must not be negative", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	case c.SerialPort == "":
		return fmt.Errorf("%w: serial_port must not be empty", ErrInvalidConfig)
	case c.AwardQueuePath == "":
		return fmt.Errorf("%w: award_queue_path must not be empty", ErrInvalidConfig)
	case c.AwardPrimaryEndpoint == "" || c.AwardLegacyEndpoint == "":
		return fmt.Errorf("%w: award endpoints must not be empty", ErrInvalidConfig)
	}
	return nil
}
