package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	ErrUnknownBackend = errors.New("cache: unknown backend")
	ErrStoreClosed    = errors.New("cache: store is closed")
)

// Store is a byte-oriented key/value store with per-entry expiry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: a miss or an expired entry is (nil, false, nil); err is reserved
// for failures of the store itself.
// - Any string, including the empty string, is a valid key.
// - Set replaces any previous value for key as a whole.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	Close() error
}

// expired reports whether an entry with the given expiry is no longer
// readable at now. A zero expiry never expires.
func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}
