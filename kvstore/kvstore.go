// Package kvstore provides persistent string key/value storage for session
// and poller state. All state that must survive a process restart goes through
// a Store: the auth token, the guest-mode flag, the poller checkpoint and the
// subscription flag.
package kvstore

import (
	"context"
	"errors"
)

// Well-known keys. Callers outside this module should stick to these so that
// a storage inspection tool can make sense of the data.
const (
	KeyAuthToken  = "auth-token"
	KeyGuestMode  = "guest-mode"
	KeyCheckpoint = "last-session-check"
	KeySubscribed = "subscribed-new-sessions"
)

// ErrNotFound indicates the key has no stored value. Readers are expected to
// treat any other error the same way (absent value), logging it and moving on.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is an asynchronous string key/value store. Writes are best-effort from
// the caller's point of view: a failed Set or Delete is logged, never fatal.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// validKey reports whether key is safe to use as a filename or object name.
// Constrains keys to lowercase alphanumerics and dashes to rule out path
// traversal on the filesystem backend.
func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, c := range key {
		ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
		if !ok {
			return false
		}
	}
	return true
}
