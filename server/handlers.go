package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"academy-notifier/api"
	"academy-notifier/session"
)

const maxBodyBytes = 64 * 1024

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type interactionRequest struct {
	ID string `json:"id"`
}

// decodeBody parses a small JSON request body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if err := s.sessions.Login(r.Context(), req.Username, req.Password); err != nil {
		var credErr *api.CredentialError
		if errors.As(err, &credErr) {
			// The server's own message goes back to the user as-is.
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": credErr.Detail})
			return
		}
		s.logger.Error("Login failed", "error", err)
		http.Error(w, "Login failed", http.StatusBadGateway)
		return
	}

	s.writeStatus(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.sessions.Logout(r.Context()); err != nil {
		// The session is cleared regardless; report the storage problem but
		// still return the new state.
		s.logger.Warn("Logout completed with storage error", "error", err)
	}
	s.writeStatus(w)
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.sessions.EnterGuest(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.sessions.Status()
	switch {
	case st.Profile != nil:
		s.writeJSON(w, http.StatusOK, st.Profile)
	case st.State == session.StateAuthenticated && st.LoadError != "":
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"detail": st.LoadError})
	default:
		http.Error(w, "No profile loaded", http.StatusNotFound)
	}
}

func (s *Server) handleProfileRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.sessions.Retry(r.Context()); err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": err.Error()})
			return
		}
		s.logger.Warn("Profile retry failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"detail": err.Error()})
		return
	}
	s.writeStatus(w)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.poller.Subscribe(r.Context())
	if err != nil {
		s.logger.Error("Subscribe failed", "error", err)
		http.Error(w, "Subscribe failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("Subscribed to new session notifications", "initial_check", result)
	s.writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.poller.Unsubscribe(r.Context()); err != nil {
		s.logger.Error("Unsubscribe failed", "error", err)
		http.Error(w, "Unsubscribe failed", http.StatusInternalServerError)
		return
	}
	s.logger.Info("Unsubscribed from new session notifications")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req interactionRequest
	if err := decodeBody(w, r, &req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !s.dispatcher.Interact(req.ID) {
		http.Error(w, "Unknown notification", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
