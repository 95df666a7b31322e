package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of events allowed in the window.
	Limit int

	// Remaining is the number of events remaining in the current window.
	Remaining int

	// ResetAt is the time when the rate limit window resets.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next event is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a single event is allowed for the given key.
	// If allowed, it consumes one slot.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n events are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Status returns the current state for the given key without consuming slots.
	Status(ctx context.Context, key string) (*Result, error)

	// Refund returns one previously consumed slot for the key, for callers
	// that abort an operation after it was admitted.
	Refund(ctx context.Context, key string) error

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Store defines the storage backend for the sliding window algorithm.
type Store interface {
	// RecordIfAllowed atomically checks whether recording n timestamps keeps
	// the key within limit, and records them if so. Returns whether the
	// timestamps were recorded and the resulting count in the window.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (allowed bool, count int64, err error)

	// CountInWindow returns the number of timestamps within the sliding window.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// RemoveLast removes up to n of the most recently recorded timestamps
	// for the key, refunding slots consumed by an aborted operation.
	RemoveLast(ctx context.Context, key string, n int) error

	// Delete removes the given key from the store.
	Delete(ctx context.Context, key string) error
}
