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
	TelegramBotToken  string
	DatabasePath      string
	LiveFeedURL       string
	HTTPAddr          string
	PollInterval      time.Duration
	CycleTimeout      time.Duration
	EvalWorkers       int
	DispatchQueueSize int
	LogLevel          string
}

// Load reads configuration from environment variables. The Telegram token
// is optional: without it the Telegram channel is disabled.
func Load() (*Config, error) {
	feedURL := os.Getenv("LIVE_FEED_URL")
	if feedURL == "" {
		return nil, fmt.Errorf("LIVE_FEED_URL is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/matchpulse.db"
	}

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	pollSeconds, err := envInt("POLL_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cycleSeconds, err := envInt("CYCLE_TIMEOUT_SECONDS", 25)
	if err != nil {
		return nil, err
	}
	if cycleSeconds > pollSeconds {
		return nil, fmt.Errorf("CYCLE_TIMEOUT_SECONDS (%d) must not exceed POLL_INTERVAL_SECONDS (%d)", cycleSeconds, pollSeconds)
	}

	workers, err := envInt("EVAL_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	queueSize, err := envInt("DISPATCH_QUEUE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	return &Config{
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:      dbPath,
		LiveFeedURL:       feedURL,
		HTTPAddr:          httpAddr,
		PollInterval:      time.Duration(pollSeconds) * time.Second,
		CycleTimeout:      time.Duration(cycleSeconds) * time.Second,
		EvalWorkers:       workers,
		DispatchQueueSize: queueSize,
		LogLevel:          logLevel,
	}, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
