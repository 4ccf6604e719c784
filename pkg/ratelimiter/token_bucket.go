package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket implements RateLimiter with the token bucket algorithm: one
// token per staged row, refilled at a steady rate. The bucket starts full,
// so a build may burst up to the capacity before the pacing kicks in.
type TokenBucket struct {
	rate       float64 // tokens (rows) added per second
	capacity   float64 // burst ceiling
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket returns a bucket admitting rate rows per second with the
// given burst capacity.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
	}
}

// Allow consumes one token if available. Tokens accrued since the last call
// are credited first, capped at the burst capacity.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
