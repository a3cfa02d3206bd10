package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/gmail/v1"
)

// GmailProvider delivers notifications as plain-text emails via the Gmail
// API, for subscribers who prefer their inbox over a push channel.
type GmailProvider struct {
	service *gmail.Service
	logger  *slog.Logger
	to      string
}

// NewGmailProvider creates a Gmail notification provider sending to a fixed
// recipient.
func NewGmailProvider(service *gmail.Service, to string, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{service: service, to: to, logger: logger}
}

// sanitizeHeader removes newlines and control characters. RFC 5322 headers
// are newline-delimited, so any newline in a header value allows injecting
// arbitrary headers.
func sanitizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Send delivers one notification by email.
func (g *GmailProvider) Send(ctx context.Context, title, body string) error {
	var msg strings.Builder
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "To: %s\r\n", sanitizeHeader(g.to))
	fmt.Fprintf(&msg, "Subject: %s\r\n", sanitizeHeader(title))
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	encoded := base64.URLEncoding.EncodeToString([]byte(msg.String()))

	err := retry.Do(
		func() error {
			start := time.Now()
			_, err := g.service.Users.Messages.Send("me", &gmail.Message{Raw: encoded}).Context(ctx).Do()
			duration := time.Since(start)
			if err != nil {
				g.logger.Warn("Gmail API send failed, will retry",
					"to", g.to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}

			g.logger.Debug("Gmail API request completed",
				"to", g.to,
				"duration_ms", duration.Milliseconds())
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Info("Retrying email send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}
	return nil
}
