package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	tb := NewTokenBucket(1, 3) // 1 token/s, burst of 3

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("Expected request %d within the burst to be allowed", i+1)
		}
	}
	if tb.Allow() {
		t.Error("Expected the request after the burst to be denied")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(100, 1)
	if !tb.Allow() {
		t.Fatal("Expected the first request to be allowed")
	}
	if tb.Allow() {
		t.Fatal("Expected the bucket to be empty")
	}

	time.Sleep(30 * time.Millisecond) // at 100/s this refills multiple tokens
	if !tb.Allow() {
		t.Error("Expected the bucket to refill after waiting")
	}
}

func TestWaitNilLimiter(t *testing.T) {
	if err := Wait(context.Background(), nil); err != nil {
		t.Errorf("Wait(nil) error = %v", err)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	tb.Allow() // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := Wait(ctx, tb); err == nil {
		t.Error("Expected Wait to fail when the context expires")
	}
}
