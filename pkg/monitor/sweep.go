package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/limits/ratelimit"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/logging"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// Panel outcomes of a sweep.
const (
	OutcomeOK       = "ok"
	OutcomeWarning  = "warning"
	OutcomeExceeded = "exceeded"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

// Enforcer is the part of the enforcement controller a sweep needs.
type Enforcer interface {
	TryLock(ctx context.Context, panelID int64) (func(), error)
	DeactivateLocked(ctx context.Context, panelID int64, reason string) (*enforcement.Result, error)
}

// SweepConfig configures a Sweeper.
type SweepConfig struct {
	// PanelDelay is paused between panels.
	PanelDelay time.Duration

	// UserCallInterval spaces per-user deletes during cleanup.
	UserCallInterval time.Duration

	// AutoDeleteExpired runs the expired-user cleanup before each sweep.
	AutoDeleteExpired bool

	// DedupeWarnings suppresses repeated warnings for the same bracket.
	DedupeWarnings bool

	// Warnings is the tracker used when DedupeWarnings is set. Share it
	// with the enforcement controller so manual actions clear it. A private
	// tracker is created when nil.
	Warnings *limits.WarningTracker

	Brackets []float64
	Clock    quartz.Clock
	Metrics  *metrics.Collector
}

// PanelReport is the outcome for one panel.
type PanelReport struct {
	PanelID  int64               `json:"panel_id"`
	Username string              `json:"username"`
	Outcome  string              `json:"outcome"`
	Check    *limits.CheckResult `json:"check,omitempty"`

	Enforcement *enforcement.Result `json:"enforcement,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Report summarizes one sweep.
type Report struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// Cleaned is the number of expired users deleted before sampling.
	Cleaned int `json:"cleaned"`

	Panels []PanelReport `json:"panels"`
	Err    error         `json:"-"`
}

// Count returns how many panels ended with outcome.
func (r *Report) Count(outcome string) int {
	n := 0
	for _, p := range r.Panels {
		if p.Outcome == outcome {
			n++
		}
	}
	return n
}

// Sweeper runs sweeps over all Active panels.
type Sweeper struct {
	store     panels.Store
	client    panels.Client
	notifier  panels.Notifier
	enforcer  Enforcer
	sampler   *Sampler
	evaluator *limits.Evaluator
	tracker   *limits.WarningTracker
	throttle  *ratelimit.Throttle
	clock     quartz.Clock
	metrics   *metrics.Collector
	logger    *slog.Logger

	panelDelay        time.Duration
	autoDeleteExpired bool
}

// NewSweeper creates a sweeper.
func NewSweeper(store panels.Store, client panels.Client, notifier panels.Notifier, enforcer Enforcer, cfg SweepConfig) *Sweeper {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	s := &Sweeper{
		store:             store,
		client:            client,
		notifier:          notifier,
		enforcer:          enforcer,
		sampler:           NewSampler(store, client, cfg.Clock),
		evaluator:         limits.NewEvaluator(cfg.Brackets),
		throttle:          ratelimit.NewThrottle(cfg.UserCallInterval, cfg.Clock),
		clock:             cfg.Clock,
		metrics:           cfg.Metrics,
		logger:            slog.Default().With("component", "monitor"),
		panelDelay:        cfg.PanelDelay,
		autoDeleteExpired: cfg.AutoDeleteExpired,
	}
	if cfg.DedupeWarnings {
		s.tracker = cfg.Warnings
		if s.tracker == nil {
			s.tracker = limits.NewWarningTracker()
		}
	}
	return s
}

// Sweep processes every Active panel once. Report.Err is set only when the
// panel list cannot be loaded or ctx ends early. Per-panel failures are in
// the panel reports.
func (s *Sweeper) Sweep(ctx context.Context) *Report {
	rep := &Report{ID: uuid.NewString(), Started: s.clock.Now()}
	ctx = logging.WithSweepID(ctx, rep.ID)
	s.logger.InfoContext(ctx, "sweep started")

	if s.autoDeleteExpired {
		rep.Cleaned = s.CleanupExpired(ctx)
	}

	active, err := s.store.ActivePanels(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("load active panels: %w", err)
		rep.Duration = s.clock.Since(rep.Started)
		s.logger.ErrorContext(ctx, "sweep aborted", "error", rep.Err)
		s.metrics.RecordSweep("error", rep.Duration)
		return rep
	}
	if s.tracker != nil {
		ids := make([]int64, len(active))
		for i := range active {
			ids[i] = active[i].ID
		}
		s.tracker.Retain(ids)
	}

	for i := range active {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			break
		}
		if i > 0 {
			if err := ratelimit.Pause(ctx, s.clock, s.panelDelay); err != nil {
				rep.Err = err
				break
			}
		}
		pr := s.processPanel(ctx, &active[i])
		s.metrics.RecordPanelChecked(pr.Outcome)
		rep.Panels = append(rep.Panels, pr)
	}

	rep.Duration = s.clock.Since(rep.Started)
	result := "ok"
	if rep.Err != nil {
		result = "error"
	}
	s.metrics.RecordSweep(result, rep.Duration)
	s.logger.InfoContext(ctx, "sweep completed",
		"panels", len(rep.Panels),
		"exceeded", rep.Count(OutcomeExceeded),
		"warnings", rep.Count(OutcomeWarning),
		"skipped", rep.Count(OutcomeSkipped),
		"errors", rep.Count(OutcomeError),
		"duration", rep.Duration,
	)
	return rep
}

func (s *Sweeper) processPanel(ctx context.Context, p *panels.AdminPanel) (pr PanelReport) {
	ctx = logging.WithPanelID(ctx, p.ID)
	pr = PanelReport{PanelID: p.ID, Username: p.Username}

	defer func() {
		if r := recover(); r != nil {
			pr.Outcome = OutcomeError
			pr.Err = fmt.Errorf("panic: %v", r)
			pr.Error = pr.Err.Error()
			s.logger.ErrorContext(ctx, "panic while processing panel", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	fail := func(outcome, step string, err error) PanelReport {
		pr.Outcome, pr.Err, pr.Error = outcome, err, err.Error()
		if outcome == OutcomeError {
			s.logger.ErrorContext(ctx, "panel processing failed", "step", step, "error", err)
		} else {
			s.logger.WarnContext(ctx, "panel skipped", "step", step, "error", err)
		}
		return pr
	}

	release, err := s.enforcer.TryLock(ctx, p.ID)
	if err != nil {
		if errors.Is(err, panels.ErrLocked) {
			return fail(OutcomeSkipped, "lock", err)
		}
		return fail(OutcomeError, "lock", err)
	}
	defer release()

	// The list was loaded before the lock was held. Quotas and status may
	// have changed since.
	fresh, err := s.store.GetPanel(ctx, p.ID)
	if err != nil {
		if errors.Is(err, panels.ErrPanelNotFound) {
			return fail(OutcomeSkipped, "reload", err)
		}
		return fail(OutcomeError, "reload", &panels.PersistenceError{Op: "get_panel", PanelID: p.ID, Err: err})
	}
	if !fresh.IsActive() {
		pr.Outcome = OutcomeSkipped
		pr.Error = fmt.Sprintf("panel is %s", fresh.Status)
		s.logger.InfoContext(ctx, "panel no longer active", "status", fresh.Status)
		return pr
	}
	p = fresh
	pr.Username = p.Username

	sample, err := s.sampler.Sample(ctx, p)
	if err != nil {
		if panels.IsTransient(err) {
			return fail(OutcomeSkipped, "sample", err)
		}
		return fail(OutcomeError, "sample", err)
	}

	check := s.evaluator.Evaluate(p.ID, limits.QuotasOf(p), UsageOf(sample))
	pr.Check = &check
	for _, c := range check.Checks {
		s.metrics.SetLimitRatio(p.ID, string(c.Resource), c.Ratio)
	}

	switch {
	case check.Exceeded:
		pr.Outcome = OutcomeExceeded
		if s.tracker != nil {
			s.tracker.Reset(p.ID)
		}
		res, err := s.enforcer.DeactivateLocked(ctx, p.ID, check.Reason())
		pr.Enforcement = res
		if err != nil {
			return fail(OutcomeError, "deactivate", err)
		}
		if !res.OK() {
			s.logger.WarnContext(ctx, "deactivation completed with failures", "error", res.Err())
		}

	case check.Warning:
		pr.Outcome = OutcomeWarning
		if err := s.warn(ctx, p, check); err != nil {
			return fail(OutcomeError, "warn", err)
		}

	default:
		pr.Outcome = OutcomeOK
		if s.tracker != nil {
			s.tracker.Filter(p.ID, nil)
		}
	}
	return pr
}

func (s *Sweeper) warn(ctx context.Context, p *panels.AdminPanel, check limits.CheckResult) error {
	warnings := check.Warnings()
	if s.tracker != nil {
		warnings = s.tracker.Filter(p.ID, warnings)
	}

	for _, w := range warnings {
		s.notifier.NotifyWarning(ctx, p.OwnerID, w)
		s.logger.InfoContext(ctx, "quota warning sent",
			"resource", w.Resource,
			"ratio", w.Ratio,
			"bracket", w.Bracket,
		)

		entry := panels.LogEntry{
			ID:        uuid.NewString(),
			PanelID:   p.ID,
			Action:    panels.ActionWarning,
			Details:   fmt.Sprintf("resource=%s ratio=%.3f bracket=%.1f", w.Resource, w.Ratio, w.Bracket),
			CreatedAt: s.clock.Now(),
		}
		if err := s.store.AppendLog(ctx, entry); err != nil {
			return &panels.PersistenceError{Op: "append_log", PanelID: p.ID, Err: err}
		}
	}
	return nil
}

// Check samples and evaluates one panel without enforcing.
func (s *Sweeper) Check(ctx context.Context, panelID int64) (*limits.CheckResult, error) {
	p, err := s.store.GetPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}
	sample, err := s.sampler.Sample(logging.WithPanelID(ctx, p.ID), p)
	if err != nil {
		return nil, err
	}
	check := s.evaluator.Evaluate(p.ID, limits.QuotasOf(p), UsageOf(sample))
	return &check, nil
}
