// Package notify schedules local notifications and fans delivery and
// interaction events out to registered listeners.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxRemembered bounds how many delivered notifications are kept around for
// interaction lookups.
const maxRemembered = 512

// Notification is one scheduled local notification.
type Notification struct {
	ScheduledAt time.Time
	ID          string
	Title       string
	Body        string
}

// Provider is the delivery channel behind the dispatcher.
type Provider interface {
	Send(ctx context.Context, title, body string) error
}

// Handler receives a notification event.
type Handler func(Notification)

// Dispatcher schedules notifications through a pluggable provider. Delivery
// is fire-and-forget: a nil return from Schedule means the notification was
// handed to the provider, not that anyone saw it.
type Dispatcher struct {
	provider     Provider
	logger       *slog.Logger
	delivered    map[int]Handler
	interactions map[int]Handler
	remembered   map[string]Notification
	order        []string
	nextHandle   int
	mu           sync.Mutex
}

// New creates a dispatcher on top of the given provider.
func New(provider Provider, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		provider:     provider,
		logger:       logger,
		delivered:    make(map[int]Handler),
		interactions: make(map[int]Handler),
		remembered:   make(map[string]Notification),
	}
}

// Schedule delivers one notification through the provider and notifies
// delivery listeners. There is no delivery confirmation beyond the provider
// accepting the send.
func (d *Dispatcher) Schedule(ctx context.Context, title, body string) error {
	n := Notification{
		ID:          uuid.NewString(),
		Title:       title,
		Body:        body,
		ScheduledAt: time.Now(),
	}

	if err := d.provider.Send(ctx, title, body); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	d.logger.Info("Notification scheduled", "id", n.ID, "title", title)

	d.mu.Lock()
	d.remember(n)
	handlers := handlerSnapshot(d.delivered)
	d.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
	return nil
}

// remember keeps the notification for later interaction lookups, evicting
// the oldest once the cap is reached. Caller holds the lock.
func (d *Dispatcher) remember(n Notification) {
	if len(d.order) >= maxRemembered {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.remembered, oldest)
	}
	d.remembered[n.ID] = n
	d.order = append(d.order, n.ID)
}

// OnDelivered registers a listener for scheduled notifications. The returned
// function unregisters it. Delivery order across listeners is unspecified.
func (d *Dispatcher) OnDelivered(h Handler) func() {
	return d.register(d.delivered, h)
}

// OnInteraction registers a listener for user taps on a notification. The
// returned function unregisters it.
func (d *Dispatcher) OnInteraction(h Handler) func() {
	return d.register(d.interactions, h)
}

func (d *Dispatcher) register(set map[int]Handler, h Handler) func() {
	d.mu.Lock()
	handle := d.nextHandle
	d.nextHandle++
	set[handle] = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(set, handle)
		d.mu.Unlock()
	}
}

// Interact reports a user interaction with a previously scheduled
// notification and invokes interaction listeners. Returns false when the
// notification is unknown (already evicted or never scheduled here).
func (d *Dispatcher) Interact(id string) bool {
	d.mu.Lock()
	n, ok := d.remembered[id]
	var handlers []Handler
	if ok {
		handlers = handlerSnapshot(d.interactions)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Warn("Interaction for unknown notification", "id", id)
		return false
	}

	for _, h := range handlers {
		h(n)
	}
	return true
}

func handlerSnapshot(set map[int]Handler) []Handler {
	handlers := make([]Handler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	return handlers
}
