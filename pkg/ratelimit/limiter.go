// Package ratelimit provides per-key request limiters: an in-process sliding
// window and two shared-state variants backed by DynamoDB and Redis.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long a denied caller should wait. Zero when allowed.
	RetryAfter time.Duration
	// Remaining is the number of further requests admitted in the current window.
	Remaining int
}

// Limiter decides whether a request identified by key may proceed.
// Implementations that fail return an error together with an allowing
// decision, so callers can choose to fail open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimiterFunc adapts a function to Limiter.
type LimiterFunc func(ctx context.Context, key string) (Decision, error)

func (f LimiterFunc) Allow(ctx context.Context, key string) (Decision, error) {
	return f(ctx, key)
}

func retryAfter(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
