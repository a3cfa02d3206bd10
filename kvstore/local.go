package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Local stores each key as a file under a directory. Intended for development
// and single-host deployments.
type Local struct {
	logger *slog.Logger
	dir    string
}

// NewLocal creates a filesystem-backed store rooted at dir, creating the
// directory if needed.
func NewLocal(dir string, logger *slog.Logger) (*Local, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{dir: dir, logger: logger}, nil
}

func (l *Local) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.dir, "kv-"+key), nil
}

// Get returns the stored value for key, or ErrNotFound.
func (l *Local) Get(_ context.Context, key string) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read from local storage: %w", err)
	}
	return string(data), nil
}

// Set writes value for key, replacing any previous value.
func (l *Local) Set(_ context.Context, key, value string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("write to local storage: %w", err)
	}
	l.logger.Debug("Value saved to local storage", "key", key, "path", path)
	return nil
}

// Delete removes the value for key. Deleting an absent key is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete from local storage: %w", err)
	}
	l.logger.Debug("Value deleted from local storage", "key", key)
	return nil
}
