// Package ratelimit throttles expensive endpoints, chiefly run starts, which
// densify and synthesize a whole flight on the request path.
//
// MemoryLimiter is an in-process token bucket. A shared backend for several
// server instances only needs to satisfy Limiter.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed.
	// The key is opaque; callers construct it (e.g. "runs:<ip>").
	// Returning an error signals a limiter malfunction; callers
	// treat errors as fail-open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// RetryAfterer is implemented by limiters that can say when a denied key
// will next be allowed.
type RetryAfterer interface {
	RetryAfter(key string) time.Duration
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
