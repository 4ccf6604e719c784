package ratelimiter

import (
	"context"
	"time"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// Wait blocks until the limiter allows one more request or the context is
// cancelled. Extraction loops use this to pace reads against production
// sources instead of dropping rows.
func Wait(ctx context.Context, rl RateLimiter) error {
	if rl == nil {
		return nil
	}
	for !rl.Allow() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}
