// Package ratelimit provides fixed-window request counters backed by
// process memory or a Redis-compatible server.
package ratelimit

import (
	"context"
	"time"
)

// Store is the interface for rate limit storage backends.
//   - Memory: single instance deployments
//   - Redis: several instances sharing one limit (also Dragonfly, Valkey)
type Store interface {
	// Increment atomically increments the counter for key. A missing or
	// expired key starts a new window of the given length. It returns the
	// new count and when the current window ends.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Result contains the rate limit check result
type Result struct {
	// Allowed indicates whether the request is allowed
	Allowed bool

	// Remaining is the number of requests remaining in the current window
	Remaining int64

	// ResetAt is when the rate limit window resets
	ResetAt time.Time

	// Limit is the maximum number of requests allowed in the window
	Limit int64
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (r *Result) RetryAfter() int {
	secs := int(time.Until(r.ResetAt).Round(time.Second).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// Check increments the counter for key and reports whether the request is
// within limit.
func Check(ctx context.Context, store Store, key string, limit int64, window time.Duration) (*Result, error) {
	count, resetAt, err := store.Increment(ctx, key, window)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:   count <= limit,
		Remaining: limit - count,
		Limit:     limit,
		ResetAt:   resetAt,
	}

	if result.Remaining < 0 {
		result.Remaining = 0
	}

	return result, nil
}
