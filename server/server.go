// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"academy-notifier/poll"
	"academy-notifier/session"
)

// Sessions is the slice of the session manager the handlers need.
type Sessions interface {
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	EnterGuest(ctx context.Context) error
	Retry(ctx context.Context) error
	Status() session.Status
}

// Poller drives session polling and the subscription flag.
type Poller interface {
	Check(ctx context.Context) (poll.Result, error)
	Subscribe(ctx context.Context) (poll.Result, error)
	Unsubscribe(ctx context.Context) error
}

// Dispatcher records notification interactions.
type Dispatcher interface {
	Interact(id string) bool
}

// Server handles HTTP requests.
type Server struct {
	sessions   Sessions
	poller     Poller
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Sessions   Sessions
	Poller     Poller
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		sessions:   cfg.Sessions,
		poller:     cfg.Poller,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/guest", s.handleGuest)
	mux.HandleFunc("/profile", s.handleProfile)
	mux.HandleFunc("/profile/retry", s.handleProfileRetry)
	mux.HandleFunc("/subscribe", s.handleSubscribe)
	mux.HandleFunc("/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("/interactions", s.handleInteraction)
	return mux
}

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      30 * time.Second,  // Time to write response
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return srv.ListenAndServe()
}

// statusPayload is the wire form of the session snapshot.
type statusPayload struct {
	State     string `json:"state"`
	GuestMode bool   `json:"guest_mode"`
	Loading   bool   `json:"loading"`
	Profile   any    `json:"profile,omitempty"`
	LoadError string `json:"load_error,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	st := s.sessions.Status()
	payload := statusPayload{
		State:     st.State.String(),
		GuestMode: st.GuestMode,
		Loading:   st.Loading,
		LoadError: st.LoadError,
	}
	if st.Profile != nil {
		payload.Profile = st.Profile
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	result, err := s.poller.Check(r.Context())
	if err != nil {
		s.logger.Error("Poll check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}
