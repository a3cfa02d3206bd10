package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// GCS stores each key as an object in a Cloud Storage bucket. Used when the
// service runs on Cloud Run, where the local filesystem does not survive
// between invocations.
type GCS struct {
	client *storage.Client
	logger *slog.Logger
	bucket string
}

// NewGCS creates a Cloud Storage backed store.
func NewGCS(client *storage.Client, bucket string, logger *slog.Logger) *GCS {
	return &GCS{client: client, bucket: bucket, logger: logger}
}

func objectName(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return "kv-" + key, nil
}

// Get returns the stored value for key, or ErrNotFound.
func (g *GCS) Get(ctx context.Context, key string) (string, error) {
	name, err := objectName(key)
	if err != nil {
		return "", err
	}

	var data []byte
	err = retry.Do(
		func() error {
			r, openErr := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(ErrNotFound)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					g.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			data, err = io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("read from storage: %w", err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			g.logger.Info("Retrying storage read after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load after retries: %w", err)
	}
	return string(data), nil
}

// Set writes value for key, replacing any previous value.
func (g *GCS) Set(ctx context.Context, key, value string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
			if _, writeErr := w.Write([]byte(value)); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					g.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			g.logger.Info("Retrying storage write after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	g.logger.Debug("Value saved", "key", key, "bucket", g.bucket)
	return nil
}

// Delete removes the value for key. Deletion is idempotent.
func (g *GCS) Delete(ctx context.Context, key string) error {
	name, err := objectName(key)
	if err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			if deleteErr := g.client.Bucket(g.bucket).Object(name).Delete(ctx); deleteErr != nil {
				if errors.Is(deleteErr, storage.ErrObjectNotExist) {
					return nil
				}
				return fmt.Errorf("delete from storage: %w", deleteErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			g.logger.Info("Retrying storage delete after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("delete after retries: %w", err)
	}

	g.logger.Debug("Value deleted", "key", key, "bucket", g.bucket)
	return nil
}
