package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"release_watcher/internal/config"
	"release_watcher/internal/domain"
	"release_watcher/internal/notify"
	"release_watcher/internal/service"
	"release_watcher/internal/source/rss"
	"release_watcher/internal/storage/postgres"
)

// main runs exactly one poll cycle and exits: zero when the cycle
// completed (even if individual feeds were skipped), non-zero on a
// permanent-failure or store abort. Periodic triggering belongs to the
// host scheduler (cron, systemd timer).
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize stores
	seenStore := postgres.NewSeenStore(db)
	pollStateStore := postgres.NewPollStateStore(db)

	// Initialize feed client and notifier
	feedClient := rss.New(rss.Config{
		Timeout: cfg.Fetch.Timeout,
	}, logger)

	notifier := notify.New(notify.Config{
		URL:            cfg.Webhook.URL,
		Secret:         cfg.Webhook.Secret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.Retry.MaxAttempts,
		InitialBackoff: cfg.Webhook.Retry.InitialBackoff,
		MaxBackoff:     cfg.Webhook.Retry.MaxBackoff,
	}, logger)

	feeds := make([]domain.FeedSource, len(cfg.Feeds))
	for i, f := range cfg.Feeds {
		feeds[i] = domain.FeedSource{Label: f.Label, URL: f.URL}
	}

	pollService := service.NewPollService(
		feeds,
		feedClient,
		seenStore,
		pollStateStore,
		notifier,
		logger,
	)

	// One hung feed or webhook must not stall the cycle indefinitely.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Cycle.Timeout)
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting release watcher", "feeds", len(feeds))

	if _, err := pollService.Run(ctx); err != nil {
		logger.Error("poll cycle aborted", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
