package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// Keyring stores values in the operating system keychain. Suited to
// workstation deployments where the auth token should not sit in a plain
// file. The keychain API is synchronous, so the context is unused.
type Keyring struct {
	logger  *slog.Logger
	service string
}

// NewKeyring creates a keychain-backed store under the given service name.
func NewKeyring(service string, logger *slog.Logger) *Keyring {
	return &Keyring{service: service, logger: logger}
}

// Get returns the stored value for key, or ErrNotFound.
func (k *Keyring) Get(_ context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read from keychain: %w", err)
	}
	return value, nil
}

// Set writes value for key, replacing any previous value.
func (k *Keyring) Set(_ context.Context, key, value string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("write to keychain: %w", err)
	}
	k.logger.Debug("Value saved to keychain", "key", key, "service", k.service)
	return nil
}

// Delete removes the value for key. Deleting an absent key is not an error.
func (k *Keyring) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete from keychain: %w", err)
	}
	k.logger.Debug("Value deleted from keychain", "key", key, "service", k.service)
	return nil
}
