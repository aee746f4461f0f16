package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "./data/alertflow.db" {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.TelegramBotToken != "" {
		t.Errorf("TelegramBotToken should default to empty, got %q", cfg.TelegramBotToken)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.FixtureFallback {
		t.Error("FixtureFallback should default to false")
	}
	if cfg.ReconcileInterval != 60*time.Second {
		t.Errorf("ReconcileInterval = %v", cfg.ReconcileInterval)
	}
	if cfg.DispatchConcurrency != 5 || cfg.DispatchRatePerMinute != 100 || cfg.DispatchMaxAttempts != 3 {
		t.Errorf("dispatch defaults = %d/%d/%d", cfg.DispatchConcurrency, cfg.DispatchRatePerMinute, cfg.DispatchMaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/test.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("FIXTURE_FALLBACK", "true")
	t.Setenv("FIXTURE_DIR", "/tmp/fixtures")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "30")
	t.Setenv("DISPATCH_CONCURRENCY", "2")
	t.Setenv("DISPATCH_RATE_PER_MINUTE", "20")
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" || cfg.TelegramBotToken != "123:abc" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.FixtureFallback || cfg.FixtureDir != "/tmp/fixtures" {
		t.Errorf("fixture settings = %v %q", cfg.FixtureFallback, cfg.FixtureDir)
	}
	if cfg.ReconcileInterval != 30*time.Second {
		t.Errorf("ReconcileInterval = %v", cfg.ReconcileInterval)
	}
	if cfg.DispatchConcurrency != 2 || cfg.DispatchRatePerMinute != 20 || cfg.DispatchMaxAttempts != 5 {
		t.Errorf("dispatch = %d/%d/%d", cfg.DispatchConcurrency, cfg.DispatchRatePerMinute, cfg.DispatchMaxAttempts)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric interval", "RECONCILE_INTERVAL_SECONDS", "soon"},
		{"zero interval", "RECONCILE_INTERVAL_SECONDS", "0"},
		{"bad bool", "FIXTURE_FALLBACK", "maybe"},
		{"negative concurrency", "DISPATCH_CONCURRENCY", "-1"},
		{"zero attempts", "DISPATCH_MAX_ATTEMPTS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
