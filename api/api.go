// Package api is the HTTP client for the academy's REST backend. Endpoints
// and payload shapes are dictated by the server; this package only classifies
// responses into typed errors and decodes the collection envelopes.
package api

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

	"academy-notifier/pkg/academy"
)

// Client talks to the academy backend.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// New creates a client for the backend at baseURL.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// errorBody is the shape of error responses. API Platform uses "detail" or
// "hydra:description"; the auth endpoints use "message".
type errorBody struct {
	Detail      string `json:"detail"`
	Message     string `json:"message"`
	Description string `json:"hydra:description"`
}

func (e *errorBody) text() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	default:
		return e.Description
	}
}

func decodeErrorBody(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.text()
}

// do performs one request and classifies failures. It never retries; the
// caller decides whether a failure is worth repeating.
func (c *Client) do(ctx context.Context, method, path, bearer string, payload any) (int, []byte, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/ld+json, application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("HTTP request failed",
			"method", method,
			"path", path,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return 0, nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &NetworkError{Op: method + " " + path, Err: err}
	}

	c.logger.Debug("HTTP request completed",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds())

	return resp.StatusCode, data, nil
}

// classify maps a non-2xx status to a typed error.
func classify(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	default:
		return &ServerError{Status: status, Detail: decodeErrorBody(body)}
	}
}

// Login checks credentials and returns the issued bearer token. A rejected
// login comes back as *CredentialError carrying the server's message
// verbatim; transport failures as *NetworkError.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	payload := map[string]string{"username": username, "password": password}
	status, body, err := c.do(ctx, http.MethodPost, "/login_check", "", payload)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &CredentialError{Detail: decodeErrorBody(body)}
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if result.Token == "" {
		return "", &ServerError{Status: status, Detail: "login response missing token"}
	}
	return result.Token, nil
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Name      string `json:"nom"`
	FirstName string `json:"prenom"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"tel"`
}

// RegisterResult is the server's answer to a registration.
type RegisterResult struct {
	Message          string `json:"message"`
	VerificationCode string `json:"verification_code"`
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/register", "", req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classify(status, body)
	}

	var result RegisterResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	return &result, nil
}

// RequestPasswordReset asks the server to email a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	status, body, err := c.do(ctx, http.MethodPost, "/reset-password/request", "", map[string]string{"email": email})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return classify(status, body)
	}
	return nil
}

// ResetPassword completes a reset using the emailed token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	payload := map[string]string{"token": resetToken, "password": password}
	status, body, err := c.do(ctx, http.MethodPost, "/reset-password/reset", "", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return classify(status, body)
	}
	return nil
}

// UserByID fetches the profile record for a user. The endpoint wraps the
// record in a one-element array. No automatic retries: the caller owns the
// retry decision.
func (c *Client) UserByID(ctx context.Context, userID int, bearer string) (*academy.Profile, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/%d", userID), bearer, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classify(status, body)
	}

	var records []academy.Profile
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode user response: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// hydraCollection is the API Platform collection envelope.
type hydraCollection struct {
	Member []academy.Session `json:"hydra:member"`
}

// Sessions fetches the full published session list. Transient failures are
// retried in-call since the poller treats any returned error as a failed
// tick and waits for the next schedule.
func (c *Client) Sessions(ctx context.Context) ([]academy.Session, error) {
	var sessions []academy.Session

	err := retry.Do(
		func() error {
			status, body, err := c.do(ctx, http.MethodGet, "/evenements", "", nil)
			if err != nil {
				return err
			}
			if status < 200 || status >= 300 {
				err := classify(status, body)
				if status >= 400 && status < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}

			var envelope hydraCollection
			if err := json.Unmarshal(body, &envelope); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode session list: %w", err))
			}
			sessions = envelope.Member
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying session list fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch sessions after retries: %w", err)
	}
	return sessions, nil
}

// SessionByID fetches a single session.
func (c *Client) SessionByID(ctx context.Context, sessionID int) (*academy.Session, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/evenements/%d", sessionID), "", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classify(status, body)
	}

	var session academy.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &session, nil
}

// MySessions fetches the sessions a user is enrolled in.
func (c *Client) MySessions(ctx context.Context, userID int, bearer string) ([]academy.Session, error) {
	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/mesSessions/%d", userID), bearer, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classify(status, body)
	}

	var envelope hydraCollection
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode enrolled sessions: %w", err)
	}
	return envelope.Member, nil
}

// ContactMessage is a message submitted through the contact form.
type ContactMessage struct {
	Name    string `json:"nom"`
	Email   string `json:"email"`
	Subject string `json:"sujet"`
	Body    string `json:"message"`
}

// SendContact submits a contact-form message.
func (c *Client) SendContact(ctx context.Context, msg *ContactMessage) error {
	status, body, err := c.do(ctx, http.MethodPost, "/contacts", "", msg)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return classify(status, body)
	}
	return nil
}
