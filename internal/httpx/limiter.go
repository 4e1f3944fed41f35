package httpx

import (
	"context"
	"sync"
	"time"
)

// TokenBucket caps the aggregate outbound request rate shared by all
// concurrent fetchers. Tokens accrue continuously at requestsPerMinute/60
// per second up to burst capacity; Acquire blocks until one is available.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func NewTokenBucket(requestsPerMinute, burstSize int) *TokenBucket {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burstSize < 1 {
		burstSize = 1
	}
	return &TokenBucket{
		tokens:     float64(burstSize),
		burst:      float64(burstSize),
		refillRate: float64(requestsPerMinute) / 60.0,
		lastRefill: time.Now(),
	}
}

// Acquire consumes one token, waiting for the refill if none is available.
// The lock is held across the wait so callers drain the bucket in arrival
// order; the token a waiter sleeps for is consumed by that waiter, not
// banked for the next caller.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return nil
	}

	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	if err := sleepWithContext(ctx, wait); err != nil {
		return err
	}
	b.tokens = 0
	b.lastRefill = time.Now()
	return nil
}

// Tokens reports the current token count after applying any pending refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	tokens := b.tokens + time.Since(b.lastRefill).Seconds()*b.refillRate
	if tokens > b.burst {
		tokens = b.burst
	}
	return tokens
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
