package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// WebhookProvider posts notifications as JSON to a configured endpoint, for
// example an ntfy topic or a chat-service incoming webhook.
type WebhookProvider struct {
	client *http.Client
	logger *slog.Logger
	url    string
}

// NewWebhookProvider creates a webhook notification provider.
func NewWebhookProvider(url string, logger *slog.Logger) *WebhookProvider {
	return &WebhookProvider{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts one notification to the webhook.
func (w *WebhookProvider) Send(ctx context.Context, title, body string) error {
	data, err := json.Marshal(webhookPayload{Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			start := time.Now()
			resp, err := w.client.Do(req)
			duration := time.Since(start)
			if err != nil {
				w.logger.Warn("Webhook request failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					w.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				w.logger.Warn("Webhook returned non-OK status, will retry",
					"status_code", resp.StatusCode,
					"body", string(respBody))
				return fmt.Errorf("webhook HTTP %d", resp.StatusCode)
			}

			w.logger.Debug("Webhook request completed",
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Info("Retrying webhook send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}
	return nil
}
