package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"resellerhq/warden/internal/panelstest"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/storage"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// blockingClient holds GetStats until release is closed.
type blockingClient struct {
	*panelstest.MockClient
	entered chan struct{}
	release chan struct{}
}

func (b *blockingClient) GetStats(ctx context.Context, admin string) (panels.Stats, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.MockClient.GetStats(ctx, admin)
}

func newBlockingScheduler(t *testing.T, runOnStart bool) (*Scheduler, *blockingClient) {
	t.Helper()
	store := storage.NewMemoryStore()
	if _, err := store.CreatePanel(context.Background(), &panels.AdminPanel{Username: "papa", OwnerID: 1}); err != nil {
		t.Fatalf("CreatePanel failed: %v", err)
	}
	client := &blockingClient{
		MockClient: panelstest.NewMockClient(),
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	notifier := &panelstest.RecordingNotifier{}
	ctrl := enforcement.NewController(store, client, notifier, enforcement.Config{})
	sweeper := NewSweeper(store, client, notifier, ctrl, SweepConfig{})
	return NewScheduler(sweeper, SchedulerConfig{
		Interval:   time.Hour,
		RunOnStart: runOnStart,
		Metrics:    metrics.NewCollector(nil),
	}), client
}

func TestScheduler_SingleFlight(t *testing.T) {
	s, client := newBlockingScheduler(t, true)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	select {
	case <-client.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected initial sweep to start")
	}

	if _, err := s.TriggerSweep(); !errors.Is(err, ErrSweepRunning) {
		t.Errorf("Expected ErrSweepRunning, got %v", err)
	}
	if !s.Status().Sweeping {
		t.Error("Expected status to report sweeping")
	}

	s.tick()
	expected := `
# HELP warden_sweep_skipped_total Ticks skipped because a sweep was still running
# TYPE warden_sweep_skipped_total counter
warden_sweep_skipped_total 1
`
	if err := testutil.GatherAndCompare(s.metrics.Registry(), strings.NewReader(expected), "warden_sweep_skipped_total"); err != nil {
		t.Errorf("Unexpected skipped counter: %v", err)
	}

	close(client.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	st := s.Status()
	if st.Sweeping {
		t.Error("Expected sweep finished")
	}
	if st.Last == nil || len(st.Last.Panels) != 1 {
		t.Errorf("Expected last report with 1 panel, got %+v", st.Last)
	}

	rep, err := s.TriggerSweep()
	if err != nil {
		t.Fatalf("TriggerSweep failed: %v", err)
	}
	if rep.Panels[0].Outcome != OutcomeOK {
		t.Errorf("Expected ok outcome, got %s", rep.Panels[0].Outcome)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, client := newBlockingScheduler(t, false)
	close(client.release)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("Expected error on second Start")
	}

	st := s.Status()
	if !st.Running || st.NextRun == nil {
		t.Errorf("Expected running with next run, got %+v", st)
	}
	if st.Last != nil {
		t.Error("Expected no sweep without run_on_start")
	}

	s.Stop()
	s.Stop()
	if s.Status().Running {
		t.Error("Expected stopped")
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Expected Wait to return immediately, got %v", err)
	}
}

func TestScheduler_StopDoesNotCancelSweep(t *testing.T) {
	s, client := newBlockingScheduler(t, true)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-client.entered

	s.Stop()
	close(client.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	last := s.Status().Last
	if last == nil || last.Err != nil || last.Panels[0].Outcome != OutcomeOK {
		t.Errorf("Expected in-flight sweep to complete, got %+v", last)
	}
}

func TestScheduler_WaitSeesClaimedSweep(t *testing.T) {
	s, client := newBlockingScheduler(t, false)
	close(client.release)

	if _, err := s.TriggerSweep(); err != nil {
		t.Fatalf("TriggerSweep failed: %v", err)
	}

	// A claimed slot must never be paired with the previous, closed channel.
	done, ok := s.begin()
	if !ok {
		t.Fatal("Expected the sweep slot to be free")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected Wait to block on the claimed sweep, got %v", err)
	}

	s.sweep(done)
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Expected Wait to return after the sweep, got %v", err)
	}
	if s.Status().Sweeping {
		t.Error("Expected slot released")
	}
}
