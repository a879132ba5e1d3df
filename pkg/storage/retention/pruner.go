package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"

	"resellerhq/warden/pkg/telemetry/metrics"
)

// Store is the subset of panels.Store the pruner needs.
type Store interface {
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
	PruneLogs(ctx context.Context, before time.Time) (int64, error)
}

// Config contains configuration for the retention pruner.
type Config struct {
	// SampleDays is how long usage samples are kept. 0 keeps them forever.
	SampleDays int

	// LogDays is how long audit log entries are kept. 0 keeps them forever.
	LogDays int

	// Schedule is a standard cron expression, e.g. "0 3 * * *".
	// Empty disables scheduled pruning.
	Schedule string

	// Timeout bounds one pruning run. Default: 5 minutes
	Timeout time.Duration
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		SampleDays: 90,
		LogDays:    365,
		Schedule:   "0 3 * * *",
		Timeout:    5 * time.Minute,
	}
}

// Result reports the rows removed by one run.
type Result struct {
	Samples int64
	Logs    int64
}

// Pruner enforces the retention policy.
type Pruner struct {
	store     Store
	config    *Config
	logger    *slog.Logger
	metrics   *metrics.Collector
	clock     quartz.Clock
	scheduler *Scheduler
}

// NewPruner creates a pruner. collector may be nil.
func NewPruner(store Store, config *Config, collector *metrics.Collector) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	p := &Pruner{
		store:   store,
		config:  config,
		logger:  slog.Default().With("component", "storage.retention"),
		metrics: collector,
		clock:   quartz.NewReal(),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// WithClock replaces the clock used to compute cutoffs.
func (p *Pruner) WithClock(clock quartz.Clock) *Pruner {
	p.clock = clock
	return p
}

// Prune deletes samples and log entries older than their retention window.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var res Result
	now := p.clock.Now()

	if p.config.SampleDays > 0 {
		cutoff := now.AddDate(0, 0, -p.config.SampleDays)
		n, err := p.store.PruneSamples(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune samples: %w", err)
		}
		res.Samples = n
		p.metrics.RecordRetention("samples", n)
	}

	if p.config.LogDays > 0 {
		cutoff := now.AddDate(0, 0, -p.config.LogDays)
		n, err := p.store.PruneLogs(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("prune logs: %w", err)
		}
		res.Logs = n
		p.metrics.RecordRetention("logs", n)
	}

	if res.Samples+res.Logs == 0 {
		p.logger.Debug("no records pruned",
			"sample_days", p.config.SampleDays,
			"log_days", p.config.LogDays,
		)
	} else {
		p.logger.Info("retention pruning completed",
			"samples_deleted", res.Samples,
			"logs_deleted", res.Logs,
		)
	}
	return res, nil
}

// Start begins scheduled pruning.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil when not scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
