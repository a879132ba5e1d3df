package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
)

func TestTokenBucket_Basic(t *testing.T) {
	mClock := quartz.NewMock(t)
	bucket := NewTokenBucket(10, 10, mClock)

	if !bucket.Take(5) {
		t.Error("Expected to take 5 tokens from full bucket")
	}
	if remaining := bucket.Remaining(); remaining != 5 {
		t.Errorf("Expected 5 remaining, got %d", remaining)
	}
	if !bucket.Take(5) {
		t.Error("Expected to take remaining 5 tokens")
	}
	if bucket.Take(1) {
		t.Error("Expected bucket to be empty")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	mClock := quartz.NewMock(t)
	bucket := NewTokenBucket(10, 10, mClock)
	bucket.Take(10)

	mClock.Advance(500 * time.Millisecond)

	if remaining := bucket.Remaining(); remaining != 5 {
		t.Errorf("Expected 5 tokens after 500ms, got %d", remaining)
	}

	mClock.Advance(10 * time.Second)
	if remaining := bucket.Remaining(); remaining != 10 {
		t.Errorf("Expected refill capped at 10, got %d", remaining)
	}
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	mClock := quartz.NewMock(t)
	bucket := NewTokenBucket(1, 10, mClock)
	bucket.Take(1)

	mClock.Advance(60 * time.Millisecond)
	if bucket.Take(1) {
		t.Fatal("Expected no token after 60ms")
	}

	mClock.Advance(60 * time.Millisecond)
	if !bucket.Take(1) {
		t.Error("Expected a token after 120ms")
	}
}

func TestTokenBucket_TimeUntilAvailable(t *testing.T) {
	mClock := quartz.NewMock(t)
	bucket := NewTokenBucket(1, 10, mClock)

	if d := bucket.TimeUntilAvailable(1); d != 0 {
		t.Errorf("Expected 0 on full bucket, got %v", d)
	}

	bucket.Take(1)
	d := bucket.TimeUntilAvailable(1)
	if d < 99*time.Millisecond || d > 101*time.Millisecond {
		t.Errorf("Expected ~100ms, got %v", d)
	}
}

func TestTokenBucket_Concurrent(t *testing.T) {
	mClock := quartz.NewMock(t)
	bucket := NewTokenBucket(100, 0, mClock)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bucket.Take(1) {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if taken != 100 {
		t.Errorf("Expected exactly 100 tokens taken, got %d", taken)
	}
}

func TestThrottle_SpacesCalls(t *testing.T) {
	th := NewThrottle(20*time.Millisecond, quartz.NewReal())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	// first call is free, three more need ~20ms each
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("Expected at least ~60ms for 4 calls, got %v", elapsed)
	}
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0, nil)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := th.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected disabled throttle to be immediate, took %v", elapsed)
	}
}

func TestThrottle_ContextCancel(t *testing.T) {
	th := NewThrottle(time.Hour, quartz.NewReal())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := th.Wait(ctx); err != nil {
		t.Fatalf("Expected first call to pass, got %v", err)
	}
	err := th.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Pause(ctx, nil, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected canceled, got %v", err)
	}
	if err := Pause(context.Background(), nil, time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
