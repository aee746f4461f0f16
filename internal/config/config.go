// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath     string
	TelegramBotToken string
	LogLevel         string
	HTTPAddr         string

	// FixtureFallback lets adapters fall back to bundled sample payloads
	// when an upstream is unreachable. Intended for local development.
	FixtureFallback bool
	FixtureDir      string

	ReconcileInterval time.Duration

	DispatchConcurrency   int
	DispatchRatePerMinute int
	DispatchMaxAttempts   int
}

// Load reads configuration from environment variables. Only the database
// path has no usable zero value; everything else falls back to defaults.
// The Telegram token is optional: without it notifications are logged
// instead of sent.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:          envOr("DATABASE_PATH", "./data/alertflow.db"),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		LogLevel:              envOr("LOG_LEVEL", "info"),
		HTTPAddr:              envOr("HTTP_ADDR", ":8080"),
		FixtureDir:            envOr("FIXTURE_DIR", "./testdata/fixtures"),
		ReconcileInterval:     60 * time.Second,
		DispatchConcurrency:   5,
		DispatchRatePerMinute: 100,
		DispatchMaxAttempts:   3,
	}

	var err error
	if cfg.FixtureFallback, err = envBool("FIXTURE_FALLBACK", false); err != nil {
		return nil, err
	}

	reconcile, err := envInt("RECONCILE_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	if reconcile < 1 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL_SECONDS must be positive, got %d", reconcile)
	}
	cfg.ReconcileInterval = time.Duration(reconcile) * time.Second

	if cfg.DispatchConcurrency, err = envInt("DISPATCH_CONCURRENCY", 5); err != nil {
		return nil, err
	}
	if cfg.DispatchRatePerMinute, err = envInt("DISPATCH_RATE_PER_MINUTE", 100); err != nil {
		return nil, err
	}
	if cfg.DispatchMaxAttempts, err = envInt("DISPATCH_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency < 1 || cfg.DispatchRatePerMinute < 1 || cfg.DispatchMaxAttempts < 1 {
		return nil, fmt.Errorf("dispatch settings must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return b, nil
}
