// Package store provides the pluggable cache backends: a bounded in-process
// store and a Redis-backed networked store behind one capability set.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the store.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the uniform capability set implemented by every backend.
//
// Implementations must be safe for concurrent use. Backend failures are
// degraded internally: Get reports ErrCacheMiss, Set and Delete become
// logged no-ops, Keys returns an empty list. No operation may fail the
// caller's request path.
type Store interface {
	// Get retrieves the stored value for key.
	// Returns ErrCacheMiss if the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key if present.
	Delete(ctx context.Context, key string) error

	// Keys lists all live cache keys.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
