// Package storage provides the persisted key/value layer that backs the
// session and cache stores. Every entry carries an absolute expiry; an
// expired entry is invisible to readers even before it is physically swept.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyKey is returned when an operation is attempted with an empty key.
var ErrEmptyKey = errors.New("storage: empty key")

// KV is a string key/value store with per-entry absolute expiry.
type KV interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key until expiresAt, replacing any existing entry.
	Set(ctx context.Context, key, value string, expiresAt time.Time) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Cleaner is implemented by backends that need expired entries swept
// periodically.
type Cleaner interface {
	CleanExpired() int
}
