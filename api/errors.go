package api

import (
	"errors"
	"fmt"
)

// Sentinel errors for responses the caller reacts to structurally.
// ErrUnauthorized covers both expired and invalid credentials; the HTTP
// status is the classification, never the error message text.
var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrNotFound     = errors.New("api: not found")
)

// NetworkError indicates the request produced no HTTP response at all.
type NetworkError struct {
	Err error
	Op  string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError checks if an error is a transport-level failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// ServerError indicates a non-2xx response outside the structurally
// classified statuses. Detail carries the server's message when one was
// included in the body.
type ServerError struct {
	Detail string
	Status int
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server error (HTTP %d)", e.Status)
}

// CredentialError indicates a rejected login. Detail is the server's message
// verbatim when available, so the UI can surface it unchanged.
type CredentialError struct {
	Detail string
}

func (e *CredentialError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return "login rejected"
}

// IsCredentialError checks if an error is a rejected login.
func IsCredentialError(err error) bool {
	var credErr *CredentialError
	return errors.As(err, &credErr)
}
