package retention

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/goleak"

	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/storage"
	"resellerhq/warden/pkg/telemetry/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	mClock := quartz.NewMock(t)
	mClock.Set(now)

	store := storage.NewMemoryStore()
	ages := []time.Duration{100 * 24 * time.Hour, 91 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour}
	for i, age := range ages {
		store.AppendSample(ctx, panels.UsageSample{PanelID: 1, Timestamp: now.Add(-age)})
		store.AppendLog(ctx, panels.LogEntry{ID: fmt.Sprintf("l%d", i), PanelID: 1, CreatedAt: now.Add(-age)})
	}

	p := NewPruner(store, &Config{SampleDays: 90, LogDays: 30}, metrics.NewCollector(nil)).WithClock(mClock)
	res, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Samples != 2 {
		t.Errorf("Expected 2 samples deleted, got %d", res.Samples)
	}
	if res.Logs != 2 {
		t.Errorf("Expected 2 logs deleted, got %d", res.Logs)
	}
}

func TestPruner_ZeroDaysKeepsForever(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.AppendSample(ctx, panels.UsageSample{PanelID: 1, Timestamp: time.Unix(0, 0)})

	res, err := NewPruner(store, &Config{}, nil).Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Samples != 0 || res.Logs != 0 {
		t.Errorf("Expected nothing pruned, got %+v", res)
	}
}

type failingStore struct{}

func (failingStore) PruneSamples(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) PruneLogs(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestPruner_Error(t *testing.T) {
	_, err := NewPruner(failingStore{}, &Config{SampleDays: 1}, nil).Prune(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid daily schedule", "0 3 * * *", true, false},
		{"valid hourly schedule", "0 * * * *", true, false},
		{"empty schedule", "", false, false},
		{"invalid schedule", "invalid cron", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStore(), &Config{Schedule: tt.schedule, SampleDays: 90}, nil)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := p.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if p.scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", p.scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning {
				next := p.NextPruning()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("Expected next run in the future, got %v", next)
				}
			}

			p.Stop()
			if p.scheduler.IsRunning() {
				t.Error("Expected scheduler stopped")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	p := NewPruner(storage.NewMemoryStore(), &Config{Schedule: "0 3 * * *"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("Expected scheduler to stop after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
