// Package main runs the academy session notifier: it keeps an authenticated
// session against the academy API, polls the catalog for newly published
// course sessions, and dispatches a notification for each one.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"academy-notifier/api"
	"academy-notifier/kvstore"
	"academy-notifier/notify"
	"academy-notifier/poll"
	"academy-notifier/server"
	"academy-notifier/session"
)

const defaultPollInterval = 15 * time.Minute

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local development; absence is not an error.
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env file")
	}

	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		logger.Error("API_BASE_URL environment variable required (e.g., https://academy.example.com/api)")
		os.Exit(1)
	}

	store, cleanup := initStore(ctx, logger)
	defer cleanup()

	provider := initProvider(ctx, logger)
	dispatcher := notify.New(provider, logger)
	dispatcher.OnDelivered(func(n notify.Notification) {
		logger.Info("Notification delivered", "id", n.ID, "title", n.Title)
	})
	dispatcher.OnInteraction(func(n notify.Notification) {
		logger.Info("Notification interaction", "id", n.ID, "title", n.Title)
	})

	client := api.New(baseURL, &http.Client{Timeout: 30 * time.Second}, logger)

	sessions := session.NewManager(client, store, logger)
	sessions.Init(ctx)
	logger.Info("Session initialized", "state", sessions.Status().State)

	monitor := poll.New(client, store, dispatcher, logger)

	go pollLoop(ctx, monitor, logger)

	srv := server.New(&server.Config{
		Sessions:   sessions,
		Poller:     monitor,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := srv.ListenAndServe(port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// initStore picks the key/value backend from the environment: a Cloud
// Storage bucket in production, the OS keyring when requested, and a local
// directory otherwise.
func initStore(ctx context.Context, logger *slog.Logger) (kvstore.Store, func()) {
	noop := func() {}

	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		logger.Info("Using Cloud Storage backend", "bucket", bucket)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}
		return kvstore.NewGCS(client, bucket, logger), cleanup
	}

	if service := os.Getenv("KEYRING_SERVICE"); service != "" {
		logger.Info("Using OS keyring backend", "service", service)
		return kvstore.NewKeyring(service, logger), noop
	}

	dir := os.Getenv("LOCAL_STORAGE")
	if dir == "" {
		dir = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local development mode", "storage_path", dir)
	}
	local, err := kvstore.NewLocal(dir, logger)
	if err != nil {
		logger.Error("Failed to create local storage directory", "error", err)
		os.Exit(1)
	}
	return local, noop
}

// initProvider picks the notification channel: a webhook URL, Gmail, or a
// logging mock when neither is configured.
func initProvider(ctx context.Context, logger *slog.Logger) notify.Provider {
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		logger.Info("Using webhook notification provider")
		return notify.NewWebhookProvider(url, logger)
	}

	if to := os.Getenv("NOTIFY_EMAIL"); to != "" {
		service, err := initGmailService(ctx)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, using mock notifications", "error", err)
			return notify.NewMockProvider(logger)
		}
		logger.Info("Using Gmail notification provider", "to", to)
		return notify.NewGmailProvider(service, to, logger)
	}

	logger.Info("Mock notification mode enabled (no NOTIFY_WEBHOOK_URL or NOTIFY_EMAIL)")
	return notify.NewMockProvider(logger)
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Explicit credentials first, Application Default Credentials otherwise.
	if credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON"); credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	if os.Getenv("K_SERVICE") != "" {
		return gmail.NewService(ctx)
	}
	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// pollLoop triggers the monitor at a fixed interval. Each tick is
// independent; a failed tick is retried wholesale on the next one.
func pollLoop(ctx context.Context, monitor *poll.Monitor, logger *slog.Logger) {
	interval := defaultPollInterval
	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			logger.Warn("Invalid POLL_INTERVAL, using default", "value", raw, "default", interval)
		} else {
			interval = parsed
		}
	}
	logger.Info("Starting poll loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := monitor.Check(ctx)
			if err != nil {
				logger.Error("Scheduled check failed", "error", err)
				continue
			}
			logger.Info("Scheduled check completed", "result", result)
		}
	}
}
