package ratelimit

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// TokenBucket implements the token bucket algorithm.
//
// The bucket holds up to capacity tokens and refills continuously at
// refillRate tokens per second. Fractional tokens accumulate between calls,
// so low rates such as one token per 100ms stay exact.
//
// # Thread Safety
//
// TokenBucket is safe for concurrent use.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	clock      quartz.Clock
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
//
// Example:
//
//	// one call every 100ms, no burst
//	bucket := NewTokenBucket(1, 10, quartz.NewReal())
func NewTokenBucket(capacity int64, refillRate float64, clock quartz.Clock) *TokenBucket {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Take consumes n tokens if available.
func (tb *TokenBucket) Take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Remaining returns the whole tokens currently available.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return int64(tb.tokens)
}

// Capacity returns the maximum bucket capacity.
func (tb *TokenBucket) Capacity() int64 {
	return int64(tb.capacity)
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.clock.Now()
}

// TimeUntilAvailable returns how long until n tokens are available, or 0 if
// they already are.
func (tb *TokenBucket) TimeUntilAvailable(n int64) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	need := float64(n) - tb.tokens
	if need <= 0 {
		return 0
	}
	if tb.refillRate <= 0 {
		return time.Duration(1<<63 - 1)
	}
	d := time.Duration(need / tb.refillRate * float64(time.Second))
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

// refillLocked adds the tokens accrued since the last refill.
// Caller must hold lock.
func (tb *TokenBucket) refillLocked() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
