package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"matchpulse/internal/api"
	"matchpulse/internal/config"
	"matchpulse/internal/engine"
	"matchpulse/internal/livedata"
	"matchpulse/internal/notify"
	"matchpulse/internal/scheduler"
	"matchpulse/internal/storage"
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

	channels := []notify.Channel{notify.NewInAppChannel(store)}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramChannel(cfg.TelegramBotToken, store)
		if err != nil {
			log.Error("create telegram channel", "error", err)
			os.Exit(1)
		}
		channels = append(channels, tg)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, telegram channel disabled")
	}

	dispatcher := notify.NewDispatcher(channels, cfg.DispatchQueueSize, 2, log)
	source := livedata.New(http.DefaultClient, cfg.LiveFeedURL)
	tracker := engine.NewTracker()
	stats := engine.NewAggregator(store, log)

	sched := scheduler.New(store, source, tracker, dispatcher, stats, log)
	sched.SetTickInterval(cfg.PollInterval)
	sched.SetCycleTimeout(cfg.CycleTimeout)
	sched.SetWorkers(cfg.EvalWorkers)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.New(store, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting", "http_addr", cfg.HTTPAddr, "poll_interval", cfg.PollInterval)

	go dispatcher.Run(ctx)
	go sched.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http listen", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
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
