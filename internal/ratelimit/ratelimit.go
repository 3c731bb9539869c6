// Package ratelimit throttles the HTTP API per operator and the token
// endpoint per client IP.
//
// A single process uses the in-memory token bucket (MemoryLimiter). When
// several jobwatch processes share one database, RedisLimiter coordinates
// them through a sliding window kept in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long a rejected caller should wait before the next
	// request can pass. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes capacity for key when there is some. An error means
	// the limiter itself failed; Middleware lets the request through.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always allows.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
