// Package kvstore is the shared TTL key-value store behind token revocation and rate counters.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every failure to reach the store, timeouts included.
// Callers decide their own failure policy on it.
var ErrUnavailable = errors.New("kvstore: unavailable")

// Counter is the state of a fixed-window counter after one hit.
type Counter struct {
	Count   int64
	ResetIn time.Duration
}

// Store is the subset of key-value operations the security components need.
// Implementations must be safe for concurrent use.
type Store interface {
	// Set writes key with a TTL. The entry disappears when the TTL elapses.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Hit atomically increments the counter at key. The first hit of a window sets its expiry.
	Hit(ctx context.Context, key string, window time.Duration) (Counter, error)

	// Undo atomically decrements the counter at key if it still exists.
	Undo(ctx context.Context, key string) error
}
