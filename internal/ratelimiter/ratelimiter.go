// Package ratelimiter paces outbound backend calls with a token bucket.
//
// The hosting backend throttles on request count well before it throttles on
// bandwidth, and its limits are opaque and shift over time. Keeping our own
// sustained rate below the empirically discovered ceiling avoids tripping the
// backend's limiter in the first place; the transfer engine's backoff handles
// the cases where we trip it anyway.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate with the small surface the
// transfer engine needs. Tokens accrue at a constant rate; each backend call
// consumes one; burst capacity absorbs short spikes.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// effectively unlimited when pacing is disabled
const unlimited = 1_000_000_000

// New creates a limiter allowing requestsPerSecond sustained and burst
// immediate calls. requestsPerSecond of 0 disables pacing.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Wait blocks until a token is available or the context is cancelled.
// Returns the context error on cancellation, nil once a token is consumed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetLimit retunes the sustained rate at runtime. Operators adjust this as
// they discover what the backend actually tolerates.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if uint(r.limiter.Burst()) < requestsPerSecond {
		r.limiter.SetBurst(int(requestsPerSecond))
	}
}

// Tokens reports the tokens currently in the bucket, for monitoring.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
