package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"alertflow/internal/adapter"
	"alertflow/internal/config"
	"alertflow/internal/dispatch"
	"alertflow/internal/ingest"
	"alertflow/internal/observability"
	"alertflow/internal/scheduler"
	"alertflow/internal/storage"
	"alertflow/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	metrics := observability.NewMetrics()

	var sender dispatch.Sender
	if cfg.TelegramBotToken != "" {
		sender, err = telegram.New(cfg.TelegramBotToken, log)
		if err != nil {
			log.Error("create telegram sender", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, notifications will be logged only")
		sender = telegram.NewLogSender(log)
	}

	fixtures := adapter.NewFixtureLoader(cfg.FixtureFallback, cfg.FixtureDir)
	coordinator := ingest.New(store, log, metrics)

	sched := scheduler.New(store, coordinator, http.DefaultClient, fixtures, log, metrics)
	sched.SetReconcileInterval(cfg.ReconcileInterval)

	dispatcher := dispatch.New(store, sender, log, metrics)
	dispatcher.SetConcurrency(cfg.DispatchConcurrency)
	dispatcher.SetRatePerMinute(cfg.DispatchRatePerMinute)
	dispatcher.SetMaxAttempts(cfg.DispatchMaxAttempts)

	httpSrv := observability.NewServer(cfg.HTTPAddr, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting worker")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); sched.Run(ctx) }()
	go func() { defer wg.Done(); dispatcher.Run(ctx) }()
	go func() { defer wg.Done(); httpSrv.Run(ctx) }()
	wg.Wait()

	log.Info("worker stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
