package ratelimit

import (
	"context"
	"time"

	"github.com/coder/quartz"
)

// Throttle spaces out consecutive calls to an external service. The first
// call passes immediately and every following call waits until interval has
// elapsed since the previous one.
type Throttle struct {
	interval time.Duration
	bucket   *TokenBucket
	clock    quartz.Clock
}

// NewThrottle creates a throttle allowing one call per interval. An interval
// <= 0 disables throttling.
func NewThrottle(interval time.Duration, clock quartz.Clock) *Throttle {
	if clock == nil {
		clock = quartz.NewReal()
	}
	t := &Throttle{interval: interval, clock: clock}
	if interval > 0 {
		t.bucket = NewTokenBucket(1, float64(time.Second)/float64(interval), clock)
	}
	return t
}

// Interval returns the configured spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait blocks until the next call may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.bucket == nil {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.bucket.Take(1) {
			return nil
		}
		d := t.bucket.TimeUntilAvailable(1)
		timer := t.clock.NewTimer(d, "throttle", "wait")
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pause sleeps for d unless ctx is done first. It is used for the fixed
// pauses between panels and after a password restore.
func Pause(ctx context.Context, clock quartz.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	timer := clock.NewTimer(d, "throttle", "pause")
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
