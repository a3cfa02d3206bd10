// Package session owns the in-memory authentication session: which
// credential is active, whether the user opted into guest browsing, and the
// profile snapshot for the signed-in user. State is derived from the
// key/value store at startup and mutated only through the Manager.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"academy-notifier/api"
	"academy-notifier/kvstore"
	"academy-notifier/pkg/academy"
	"academy-notifier/token"
)

// State is the authentication lifecycle position.
type State int

const (
	// StateInitializing covers startup until the stored-token lookup (and,
	// when a token exists, the first profile fetch) resolves.
	StateInitializing State = iota
	// StateUnauthenticated means no credential and no guest opt-in.
	StateUnauthenticated
	// StateGuest means the user explicitly chose to browse without signing in.
	StateGuest
	// StateAuthenticated means a structurally valid credential is active.
	StateAuthenticated
	// StateExpired means the server rejected the credential; the user must
	// re-authenticate before anything else happens.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateGuest:
		return "guest"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSessionExpired is returned by Retry once the server has rejected the
// credential; only a fresh Login clears it.
var ErrSessionExpired = errors.New("session: expired, re-authentication required")

// API is the slice of the backend client the manager needs.
type API interface {
	Login(ctx context.Context, username, password string) (string, error)
	UserByID(ctx context.Context, userID int, bearer string) (*academy.Profile, error)
}

// Status is a read-only snapshot of the session.
type Status struct {
	Profile   *academy.Profile
	LoadError string
	State     State
	GuestMode bool
	Loading   bool
}

// Manager is the session state machine. One Manager is constructed per
// process and handed to consumers by reference; there are no package-level
// singletons.
type Manager struct {
	backend API
	store   kvstore.Store
	logger  *slog.Logger

	mu       sync.Mutex
	profile  *academy.Profile
	loadErr  error
	bearer   string
	inFlight string // token of the profile fetch currently running
	state    State
	guest    bool
	loading  bool
}

// NewManager creates a session manager in the Initializing state. Call Init
// to resolve it.
func NewManager(backend API, store kvstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		backend: backend,
		store:   store,
		logger:  logger,
		state:   StateInitializing,
		loading: true,
	}
}

// Init derives the session from persistent storage: a stored token moves the
// session toward Authenticated pending a profile fetch, otherwise the guest
// flag decides between Guest and Unauthenticated. Storage failures read as
// "no value".
func (m *Manager) Init(ctx context.Context) {
	stored, err := m.store.Get(ctx, kvstore.KeyAuthToken)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			m.logger.Warn("Failed to read stored token, treating as absent", "error", err)
		}
		stored = ""
	}

	if stored == "" {
		m.settleWithoutToken(ctx)
		return
	}

	m.mu.Lock()
	m.bearer = stored
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.loadProfile(ctx, stored)
}

// settleWithoutToken resolves the session from the guest flag alone.
func (m *Manager) settleWithoutToken(ctx context.Context) {
	guest, err := m.store.Get(ctx, kvstore.KeyGuestMode)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Warn("Failed to read guest flag, treating as absent", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bearer = ""
	m.guest = guest == "true"
	if m.guest {
		m.state = StateGuest
	} else {
		m.state = StateUnauthenticated
	}
	m.loading = false
}

// Login checks credentials against the backend. On success the token is
// persisted (best-effort) and the session becomes Authenticated with a fresh
// profile fetch; on failure the state is left unchanged and the returned
// error carries the server's message when one was given.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	issued, err := m.backend.Login(ctx, username, password)
	if err != nil {
		m.logger.Info("Login rejected", "username", username, "error", err)
		return err
	}

	if err := m.store.Set(ctx, kvstore.KeyAuthToken, issued); err != nil {
		m.logger.Warn("Failed to persist token, session will not survive restart", "error", err)
	}
	if err := m.store.Delete(ctx, kvstore.KeyGuestMode); err != nil {
		m.logger.Warn("Failed to clear guest flag", "error", err)
	}

	m.mu.Lock()
	m.bearer = issued
	m.guest = false
	m.profile = nil
	m.loadErr = nil
	m.state = StateAuthenticated
	m.loading = true
	m.mu.Unlock()

	m.logger.Info("Login succeeded", "username", username)
	m.loadProfile(ctx, issued)
	return nil
}

// Logout clears the session. In-memory state is reset unconditionally; a
// failed storage delete is reported but never blocks the reset.
func (m *Manager) Logout(ctx context.Context) error {
	delErr := m.store.Delete(ctx, kvstore.KeyAuthToken)

	m.mu.Lock()
	m.bearer = ""
	m.guest = false
	m.profile = nil
	m.loadErr = nil
	m.state = StateUnauthenticated
	m.loading = false
	m.mu.Unlock()

	if delErr != nil {
		m.logger.Warn("Failed to remove stored token", "error", delErr)
		return fmt.Errorf("clear stored token: %w", delErr)
	}
	m.logger.Info("Logged out")
	return nil
}

// EnterGuest opts into guest browsing. Guest mode and an active credential
// are mutually exclusive.
func (m *Manager) EnterGuest(ctx context.Context) error {
	m.mu.Lock()
	if m.bearer != "" {
		m.mu.Unlock()
		return errors.New("session: guest mode requires signing out first")
	}
	m.guest = true
	m.state = StateGuest
	m.loading = false
	m.mu.Unlock()

	if err := m.store.Set(ctx, kvstore.KeyGuestMode, "true"); err != nil {
		m.logger.Warn("Failed to persist guest flag", "error", err)
	}
	m.logger.Info("Entered guest mode")
	return nil
}

// Retry re-runs the profile fetch with the current credential. Idempotent:
// it reuses the same inputs as the failed fetch. Returns ErrSessionExpired
// once the server has rejected the credential.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	bearer := m.bearer
	state := m.state
	m.mu.Unlock()

	switch {
	case state == StateExpired:
		return ErrSessionExpired
	case bearer == "":
		return errors.New("session: not authenticated")
	}

	m.loadProfile(ctx, bearer)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	if m.state == StateExpired {
		return ErrSessionExpired
	}
	return nil
}

// Status returns a snapshot of the session. While Loading is true the State
// and GuestMode fields are provisional and must not be treated as final.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:     m.state,
		GuestMode: m.guest,
		Loading:   m.loading,
		Profile:   m.profile,
	}
	if m.loadErr != nil {
		s.LoadError = m.loadErr.Error()
	}
	return s
}

// Token returns the active bearer credential, empty when unauthenticated.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bearer
}

// loadProfile decodes the credential, fetches the profile, and applies the
// result. Only one fetch runs per token value, and a result is discarded
// when the token changed while the fetch was in flight: last write wins by
// token identity. The stale fetch itself is not cancelled.
func (m *Manager) loadProfile(ctx context.Context, bearer string) {
	claims, err := token.Decode(bearer)
	if err != nil {
		// A malformed stored token is the same as no token at all.
		m.logger.Warn("Stored token is malformed, discarding", "error", err)
		if delErr := m.store.Delete(ctx, kvstore.KeyAuthToken); delErr != nil {
			m.logger.Warn("Failed to remove malformed token", "error", delErr)
		}
		m.settleWithoutToken(ctx)
		return
	}

	m.mu.Lock()
	if m.inFlight == bearer {
		m.mu.Unlock()
		m.logger.Debug("Profile fetch already in flight for this token")
		return
	}
	m.inFlight = bearer
	m.mu.Unlock()

	profile, fetchErr := m.backend.UserByID(ctx, claims.UserID, bearer)

	m.mu.Lock()
	if m.inFlight == bearer {
		m.inFlight = ""
	}
	if m.bearer != bearer {
		m.mu.Unlock()
		m.logger.Info("Discarding stale profile fetch result", "user_id", claims.UserID)
		return
	}
	m.loading = false

	var expired bool
	switch {
	case fetchErr == nil:
		m.profile = profile
		m.loadErr = nil
		m.state = StateAuthenticated
		m.logger.Info("Profile loaded", "user_id", profile.ID)
	case errors.Is(fetchErr, api.ErrUnauthorized):
		// The server rejected the credential: clear it and require a fresh
		// login. No further fetches happen for this token.
		m.bearer = ""
		m.profile = nil
		m.loadErr = nil
		m.state = StateExpired
		expired = true
		m.logger.Info("Credential rejected by server, session expired", "user_id", claims.UserID)
	default:
		// Token still structurally valid; the user may retry.
		m.loadErr = fetchErr
		m.logger.Warn("Profile fetch failed", "user_id", claims.UserID, "error", fetchErr)
	}
	m.mu.Unlock()

	if expired {
		if err := m.store.Delete(ctx, kvstore.KeyAuthToken); err != nil {
			m.logger.Warn("Failed to remove expired token", "error", err)
		}
	}
}
