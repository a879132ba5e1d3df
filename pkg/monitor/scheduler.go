package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"resellerhq/warden/pkg/telemetry/metrics"
)

// ErrSweepRunning is returned by TriggerSweep while a sweep is in flight.
var ErrSweepRunning = errors.New("a sweep is already running")

// DefaultInterval is the sweep interval when none is configured.
const DefaultInterval = 600 * time.Second

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval time.Duration

	// RunOnStart runs one sweep immediately when the scheduler starts.
	RunOnStart bool

	Metrics *metrics.Collector
}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running  bool       `json:"running"`
	Sweeping bool       `json:"sweeping"`
	Interval string     `json:"interval"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	Last     *Report    `json:"last,omitempty"`
}

// Scheduler runs sweeps on a fixed interval. At most one sweep runs at a
// time; ticks that find a sweep in flight are skipped and counted.
//
// Stopping the scheduler only disables future ticks. An in-flight sweep
// runs to completion; use Wait to block on it.
type Scheduler struct {
	sweeper    *Sweeper
	interval   time.Duration
	runOnStart bool
	metrics    *metrics.Collector
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool

	// done is closed when the current sweep ends. Guarded by mu.
	done chan struct{}

	sweeping atomic.Bool
	last     atomic.Pointer[Report]
}

// NewScheduler creates a scheduler for sweeper.
func NewScheduler(sweeper *Sweeper, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	s := &Scheduler{
		sweeper:    sweeper,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		metrics:    cfg.Metrics,
		logger:     slog.Default().With("component", "monitor.scheduler"),
	}
	return s
}

// Start schedules sweeps. It returns immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.running = true

	s.logger.Info("monitoring scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	if s.runOnStart {
		if done, ok := s.beginLocked(); ok {
			go s.sweep(done)
		}
	}
	return nil
}

// Stop disables future ticks. It does not cancel an in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("monitoring scheduler stopped")
}

// Wait blocks until no sweep is in flight or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerSweep runs a sweep now and returns its report. It returns
// ErrSweepRunning when a sweep is already in flight.
func (s *Scheduler) TriggerSweep() (*Report, error) {
	done, ok := s.begin()
	if !ok {
		return nil, ErrSweepRunning
	}
	return s.sweep(done), nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		Sweeping: s.sweeping.Load(),
		Interval: s.interval.String(),
		Last:     s.last.Load(),
	}
	if s.running {
		if entries := s.cron.Entries(); len(entries) > 0 {
			next := entries[0].Next
			st.NextRun = &next
		}
	}
	return st
}

func (s *Scheduler) tick() {
	done, ok := s.begin()
	if !ok {
		s.metrics.RecordSweepSkipped()
		s.logger.Warn("previous sweep still running, skipping tick")
		return
	}
	s.sweep(done)
}

// begin claims the single sweep slot and returns the channel sweep closes
// when it ends.
func (s *Scheduler) begin() (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked()
}

// beginLocked claims the slot and publishes done together. Callers hold mu.
func (s *Scheduler) beginLocked() (chan struct{}, bool) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil, false
	}
	s.done = make(chan struct{})
	return s.done, true
}

// sweep must be called with the channel from a successful begin.
func (s *Scheduler) sweep(done chan struct{}) *Report {
	defer func() {
		s.mu.Lock()
		s.sweeping.Store(false)
		close(done)
		s.mu.Unlock()
	}()

	// Sweeps outlive Stop, so they do not inherit a cancellable context.
	rep := s.sweeper.Sweep(context.Background())
	s.last.Store(rep)
	return rep
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
