package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound calls to a shared upstream. Limits can be
// changed at runtime, for example when the upstream advertises a new quota.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps requests per second with
// bursts of up to burst requests. A non-positive rps disables throttling.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), normalizeBurst(burst))}
}

// Wait blocks until a request may proceed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now without blocking.
func (rl *RateLimiter) Allow() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Allow()
}

// UpdateLimits replaces the rate and burst.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(toLimit(rps))
	rl.limiter.SetBurst(normalizeBurst(burst))
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func normalizeBurst(burst int) int {
	if burst < 1 {
		return 1
	}
	return burst
}
