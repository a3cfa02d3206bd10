package poll

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy-notifier/kvstore"
	"academy-notifier/pkg/academy"
)

type fakeLister struct {
	err      error
	sessions []academy.Session
	calls    int
}

func (f *fakeLister) Sessions(context.Context) ([]academy.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

type fakeNotifier struct {
	err    error
	bodies []string
}

func (f *fakeNotifier) Schedule(_ context.Context, _, body string) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

// failingStore wraps a store and makes writes to one key fail.
type failingStore struct {
	kvstore.Store
	failKey string
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("storage unavailable")
	}
	return f.Store.Set(ctx, key, value)
}

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return &parsed
}

func newMonitor(lister Lister, store kvstore.Store, notifier Notifier, now time.Time) *Monitor {
	m := New(lister, store, notifier, slog.Default())
	m.now = func() time.Time { return now }
	return m
}

func subscribedStore(t *testing.T, checkpoint string) *kvstore.Memory {
	t.Helper()
	store := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, kvstore.KeySubscribed, "true"))
	if checkpoint != "" {
		require.NoError(t, store.Set(ctx, kvstore.KeyCheckpoint, checkpoint))
	}
	return store
}

func storedCheckpoint(t *testing.T, store kvstore.Store) time.Time {
	t.Helper()
	value, err := store.Get(context.Background(), kvstore.KeyCheckpoint)
	require.NoError(t, err)
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

// One session after the checkpoint, one before: exactly one notification,
// and the checkpoint advances to "now".
func TestCheckNotifiesOnlyNewSessions(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-01-01T00:00:00Z")
	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "Go for beginners", CreatedAt: ts(t, "2024-01-02T00:00:00Z")},
		{ID: 2, Title: "Old news", CreatedAt: ts(t, "2023-12-31T00:00:00Z")},
	}}
	notifier := &fakeNotifier{}

	result, err := newMonitor(lister, store, notifier, now).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNewData, result)
	require.Len(t, notifier.bodies, 1)
	assert.Contains(t, notifier.bodies[0], "Go for beginners")

	got := storedCheckpoint(t, store)
	assert.True(t, got.After(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		"checkpoint %v not advanced past the old boundary", got)
	assert.Equal(t, now, got)
}

func TestCheckSkipsWhenUnsubscribed(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{}
	store := kvstore.NewMemory()

	// Never subscribed
	result, err := newMonitor(lister, store, &fakeNotifier{}, time.Now()).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNoData, result)
	assert.Zero(t, lister.calls, "unsubscribed check must not touch the network")

	// Explicitly unsubscribed
	require.NoError(t, store.Set(ctx, kvstore.KeySubscribed, "false"))
	result, err = newMonitor(lister, store, &fakeNotifier{}, time.Now()).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNoData, result)
	assert.Zero(t, lister.calls)
}

func TestCheckInitializesAbsentCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "")
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	// A session published before "now" must not notify on the first run.
	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "Already out", CreatedAt: ts(t, "2024-02-28T00:00:00Z")},
	}}
	notifier := &fakeNotifier{}

	result, err := newMonitor(lister, store, notifier, now).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNoData, result)
	assert.Empty(t, notifier.bodies)
	assert.Equal(t, now, storedCheckpoint(t, store), "default checkpoint must be persisted")
}

func TestCheckFailedFetchKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-01-01T00:00:00Z")
	lister := &fakeLister{err: errors.New("backend down")}

	result, err := newMonitor(lister, store, &fakeNotifier{}, time.Now()).Check(ctx)
	require.Error(t, err)
	assert.Equal(t, ResultFailed, result)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), storedCheckpoint(t, store).UTC())
}

func TestCheckFailedNotificationKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-01-01T00:00:00Z")
	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "New", CreatedAt: ts(t, "2024-01-02T00:00:00Z")},
	}}
	notifier := &fakeNotifier{err: errors.New("channel down")}

	result, err := newMonitor(lister, store, notifier, time.Now()).Check(ctx)
	require.Error(t, err)
	assert.Equal(t, ResultFailed, result)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), storedCheckpoint(t, store).UTC())
}

// At-least-once: while the checkpoint write keeps failing, every tick
// re-notifies for the same session; once it succeeds, the session is silent.
func TestCheckAtLeastOnceDelivery(t *testing.T) {
	ctx := context.Background()
	backing := subscribedStore(t, "2024-01-01T00:00:00Z")
	broken := &failingStore{Store: backing, failKey: kvstore.KeyCheckpoint}

	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "Sticky", CreatedAt: ts(t, "2024-01-02T00:00:00Z")},
	}}
	notifier := &fakeNotifier{}
	now := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		result, err := newMonitor(lister, broken, notifier, now).Check(ctx)
		require.NoError(t, err)
		assert.Equal(t, ResultNewData, result)
		assert.Len(t, notifier.bodies, i, "tick %d must re-notify", i)
	}

	// Storage recovers: one more duplicate, then the checkpoint sticks.
	result, err := newMonitor(lister, backing, notifier, now).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNewData, result)
	assert.Len(t, notifier.bodies, 4)

	result, err = newMonitor(lister, backing, notifier, now.Add(time.Hour)).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNoData, result)
	assert.Len(t, notifier.bodies, 4, "no re-notification after checkpoint advance")
}

func TestCheckpointMonotonic(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-06-01T00:00:00Z")
	before := storedCheckpoint(t, store)

	// Clock behind the stored checkpoint must not move it backwards.
	skewed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := newMonitor(&fakeLister{}, store, &fakeNotifier{}, skewed).Check(ctx)
	require.NoError(t, err)
	assert.False(t, storedCheckpoint(t, store).Before(before))

	// Normal advance.
	later := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err = newMonitor(&fakeLister{}, store, &fakeNotifier{}, later).Check(ctx)
	require.NoError(t, err)
	assert.False(t, storedCheckpoint(t, store).Before(before))
	assert.Equal(t, later, storedCheckpoint(t, store))
}

func TestCheckFallsBackToStartTime(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-01-01T00:00:00Z")

	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "No created-at", StartTime: ts(t, "2024-01-05T09:00:00Z")},
		{ID: 2, Title: "No timestamps at all"},
	}}
	notifier := &fakeNotifier{}

	result, err := newMonitor(lister, store, notifier, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNewData, result)
	require.Len(t, notifier.bodies, 1, "timestampless session must never notify")
	assert.Contains(t, notifier.bodies[0], "No created-at")
}

func TestSubscribeRunsImmediateCheck(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(ctx, kvstore.KeyCheckpoint, "2024-01-01T00:00:00Z"))

	lister := &fakeLister{sessions: []academy.Session{
		{ID: 1, Title: "Fresh", CreatedAt: ts(t, "2024-01-02T00:00:00Z")},
	}}
	notifier := &fakeNotifier{}

	result, err := newMonitor(lister, store, notifier, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)).Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNewData, result)
	assert.Equal(t, 1, lister.calls, "subscribe must poll exactly once immediately")
	assert.Len(t, notifier.bodies, 1)

	flag, err := store.Get(ctx, kvstore.KeySubscribed)
	require.NoError(t, err)
	assert.Equal(t, "true", flag)
}

func TestUnsubscribeStopsNetworkWork(t *testing.T) {
	ctx := context.Background()
	store := subscribedStore(t, "2024-01-01T00:00:00Z")
	lister := &fakeLister{}
	m := newMonitor(lister, store, &fakeNotifier{}, time.Now())

	require.NoError(t, m.Unsubscribe(ctx))

	result, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultNoData, result)
	assert.Zero(t, lister.calls)
}

func TestNotificationBody(t *testing.T) {
	start := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	body := notificationBody(&academy.Session{
		Title:            "Go for beginners",
		StartTime:        &start,
		ShortDescription: "<p>Learn the <strong>basics</strong></p>",
	})
	assert.Equal(t, "Go for beginners - Feb 1, 2024\nLearn the basics", body)

	body = notificationBody(&academy.Session{Title: "Undated"})
	assert.Equal(t, "Undated - date to be confirmed", body)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "no-data", ResultNoData.String())
	assert.Equal(t, "new-data", ResultNewData.String())
	assert.Equal(t, "failed", ResultFailed.String())
}
