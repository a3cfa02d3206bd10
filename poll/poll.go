// Package poll checks the academy catalog for newly published sessions and
// notifies subscribers. Each check runs to completion within one invocation:
// the host scheduler may run it in a fresh process, so all cross-invocation
// state lives in the key/value store (checkpoint and subscription flag), never
// in memory.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"academy-notifier/kvstore"
	"academy-notifier/pkg/academy"
)

// Result classifies the outcome of one poll invocation, mirroring what a
// background-fetch host expects back.
type Result int

const (
	// ResultNoData means the poll ran (or was skipped as unsubscribed) and
	// found nothing new.
	ResultNoData Result = iota
	// ResultNewData means at least one new session was notified.
	ResultNewData
	// ResultFailed means the poll could not complete; the checkpoint was not
	// advanced and the next tick retries from the same boundary.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNewData:
		return "new-data"
	case ResultFailed:
		return "failed"
	default:
		return "no-data"
	}
}

// Lister fetches the published session list.
type Lister interface {
	Sessions(ctx context.Context) ([]academy.Session, error)
}

// Notifier schedules one local notification.
type Notifier interface {
	Schedule(ctx context.Context, title, body string) error
}

// Monitor runs the new-session checks.
type Monitor struct {
	now      func() time.Time
	lister   Lister
	store    kvstore.Store
	notifier Notifier
	logger   *slog.Logger
}

// New creates a poll monitor.
func New(lister Lister, store kvstore.Store, notifier Notifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		lister:   lister,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe turns on new-session notifications and immediately runs one
// check instead of waiting for the next scheduled tick.
func (m *Monitor) Subscribe(ctx context.Context) (Result, error) {
	if err := m.store.Set(ctx, kvstore.KeySubscribed, "true"); err != nil {
		return ResultFailed, fmt.Errorf("persist subscription: %w", err)
	}
	m.logger.Info("Subscribed to new session notifications")
	return m.Check(ctx)
}

// Unsubscribe turns off new-session notifications. Scheduled checks observe
// the flag and return without any network work.
func (m *Monitor) Unsubscribe(ctx context.Context) error {
	if err := m.store.Set(ctx, kvstore.KeySubscribed, "false"); err != nil {
		return fmt.Errorf("persist unsubscription: %w", err)
	}
	m.logger.Info("Unsubscribed from new session notifications")
	return nil
}

// Check runs one poll: fetch the session list, notify for every session
// published after the checkpoint, then advance the checkpoint. Delivery is
// at-least-once: the checkpoint only moves after every notification for the
// tick has been scheduled, so a failed tick re-notifies on the next one.
func (m *Monitor) Check(ctx context.Context) (Result, error) {
	if !m.subscribed(ctx) {
		m.logger.Debug("Not subscribed, skipping check")
		return ResultNoData, nil
	}

	now := m.now()

	checkpoint, ok := m.checkpoint(ctx)
	if !ok {
		// First run: anything already published is old news.
		checkpoint = now
		if err := m.saveCheckpoint(ctx, now); err != nil {
			m.logger.Warn("Failed to persist initial checkpoint", "error", err)
		}
	}

	sessions, err := m.lister.Sessions(ctx)
	if err != nil {
		return ResultFailed, fmt.Errorf("fetch session list: %w", err)
	}

	m.logger.Info("Checking for new sessions",
		"count", len(sessions),
		"checkpoint", checkpoint.Format(time.RFC3339))

	var fresh []academy.Session
	for _, s := range sessions {
		published, ok := s.PublishedAt()
		if !ok {
			// Without any timestamp the session would look new on every
			// tick; never notify for it.
			m.logger.Warn("Session has no timestamps, excluded from check", "session_id", s.ID)
			continue
		}
		if published.After(checkpoint) {
			fresh = append(fresh, s)
		}
	}

	for i := range fresh {
		s := &fresh[i]
		if err := m.notifier.Schedule(ctx, "New session available", notificationBody(s)); err != nil {
			return ResultFailed, fmt.Errorf("schedule notification for session %d: %w", s.ID, err)
		}
		m.logger.Info("New session notified", "session_id", s.ID, "title", s.Title)
	}

	// Advance only now that every notification for this tick is scheduled.
	// A failed write just means duplicates next tick.
	next := now
	if next.Before(checkpoint) {
		next = checkpoint
	}
	if err := m.saveCheckpoint(ctx, next); err != nil {
		m.logger.Warn("Failed to persist checkpoint, sessions will be re-notified", "error", err)
	}

	if len(fresh) > 0 {
		m.logger.Info("Check completed", "new_sessions", len(fresh))
		return ResultNewData, nil
	}
	return ResultNoData, nil
}

func (m *Monitor) subscribed(ctx context.Context) bool {
	value, err := m.store.Get(ctx, kvstore.KeySubscribed)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			m.logger.Warn("Failed to read subscription flag, treating as unsubscribed", "error", err)
		}
		return false
	}
	return value == "true"
}

// checkpoint reads the persisted poll boundary. Any read or parse failure is
// treated as an absent checkpoint.
func (m *Monitor) checkpoint(ctx context.Context) (time.Time, bool) {
	value, err := m.store.Get(ctx, kvstore.KeyCheckpoint)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			m.logger.Warn("Failed to read checkpoint, treating as absent", "error", err)
		}
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		m.logger.Warn("Stored checkpoint is unparseable, treating as absent", "value", value, "error", err)
		return time.Time{}, false
	}
	return t, true
}

func (m *Monitor) saveCheckpoint(ctx context.Context, t time.Time) error {
	return m.store.Set(ctx, kvstore.KeyCheckpoint, t.Format(time.RFC3339))
}

// notificationBody renders the notification text for a session: title and
// start date, plus the short description stripped of its HTML markup.
func notificationBody(s *academy.Session) string {
	when := "date to be confirmed"
	if s.StartTime != nil {
		when = s.StartTime.Format("Jan 2, 2006")
	}

	body := fmt.Sprintf("%s - %s", s.Title, when)
	if desc := htmlToText(s.ShortDescription); desc != "" {
		body += "\n" + desc
	}
	return body
}

// htmlToText flattens an HTML fragment to plain text. The catalog stores
// short descriptions as HTML.
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.TrimSpace(doc.Text())
}
