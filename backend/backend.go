// Package backend provides the key-value storage backends the cache is
// layered on.
package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key does not exist in the backend.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned by Set when the write would take the
	// backend past its configured capacity.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnavailable is returned by Set when the backend refuses all writes.
	ErrUnavailable = errors.New("storage unavailable")
)

// Backend defines the interface for storage backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get retrieves the value stored at key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the value at key.
	// Returns nil if the key does not exist (idempotent).
	Remove(ctx context.Context, key string) error

	// Keys returns up to limit existing keys in the backend's native order.
	// The order must be stable between calls so that a caller can page
	// through the keyspace by asking again with a larger limit.
	// A limit <= 0 returns every key.
	Keys(ctx context.Context, limit int) ([]string, error)
}

// full reports whether a Keys result has reached limit.
func full(n, limit int) bool {
	return limit > 0 && n >= limit
}
