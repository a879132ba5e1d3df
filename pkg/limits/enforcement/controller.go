package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/limits/ratelimit"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// Controller executes deactivation and reactivation of admin panels.
type Controller struct {
	store    panels.Store
	client   panels.Client
	notifier panels.Notifier
	locker   Locker
	warnings *limits.WarningTracker
	throttle *ratelimit.Throttle
	clock    quartz.Clock
	metrics  *metrics.Collector
	logger   *slog.Logger

	passwordLength int
	restorePause   time.Duration
}

// NewController creates an enforcement controller.
func NewController(store panels.Store, client panels.Client, notifier panels.Notifier, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	if cfg.Locker == nil {
		cfg.Locker = NewMemoryLocker()
	}
	if cfg.PasswordLength <= 0 {
		cfg.PasswordLength = DefaultPasswordLength
	}
	return &Controller{
		store:          store,
		client:         client,
		notifier:       notifier,
		locker:         cfg.Locker,
		warnings:       cfg.Warnings,
		throttle:       ratelimit.NewThrottle(cfg.UserCallInterval, cfg.Clock),
		clock:          cfg.Clock,
		metrics:        cfg.Metrics,
		logger:         slog.Default().With("component", "enforcement"),
		passwordLength: cfg.PasswordLength,
		restorePause:   cfg.RestorePause,
	}
}

// TryLock acquires the panel lock without waiting. It returns
// panels.ErrLocked when an action on the panel is in progress.
func (c *Controller) TryLock(ctx context.Context, panelID int64) (func(), error) {
	return c.locker.TryLock(ctx, panelID)
}

// Deactivate takes the panel lock and deactivates the panel.
func (c *Controller) Deactivate(ctx context.Context, panelID int64, reason string) (*Result, error) {
	release, err := c.locker.Lock(ctx, panelID)
	if err != nil {
		return nil, fmt.Errorf("lock panel %d: %w", panelID, err)
	}
	defer release()
	return c.DeactivateLocked(ctx, panelID, reason)
}

// DeactivateLocked deactivates a panel whose lock the caller already holds.
//
// The returned error is non-nil only when the panel cannot be loaded or the
// Deactivated status cannot be persisted. Failures of other steps are in
// the Result.
func (c *Controller) DeactivateLocked(ctx context.Context, panelID int64, reason string) (*Result, error) {
	p, err := c.store.GetPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("panel_id", p.ID, "username", p.Username)

	res := &Result{Action: ActionDeactivate, PanelID: p.ID, Username: p.Username, Reason: reason}

	// Capture first. Never rotate without a recoverable original.
	captured := true
	if p.HasOriginalPassword() {
		res.skip(StepCapturePassword, "already captured")
	} else {
		upd := panels.NewUpdate().CaptureOriginalPassword(p.Password)
		if err := c.store.UpdatePanel(ctx, p.ID, upd); err != nil {
			captured = false
			err = &panels.PersistenceError{Op: string(StepCapturePassword), PanelID: p.ID, Err: err}
			logger.Error("failed to capture original password", "step", StepCapturePassword, "error", err)
			res.record(StepCapturePassword, err)
		} else {
			res.record(StepCapturePassword, nil)
		}
	}

	if captured {
		c.rotatePassword(ctx, logger, p, res)
	} else {
		res.skip(StepRotatePassword, "original password not captured")
	}

	c.toggleUsers(ctx, logger, p, panels.UserDisabled, res)

	upd := panels.NewUpdate().SetStatus(panels.StatusDeactivated, reason, c.clock.Now())
	if err := c.store.UpdatePanel(ctx, p.ID, upd); err != nil {
		err = &panels.PersistenceError{Op: string(StepPersistStatus), PanelID: p.ID, Err: err}
		logger.Error("failed to persist deactivated status", "step", StepPersistStatus, "error", err)
		res.record(StepPersistStatus, err)
		c.metrics.RecordEnforcement(string(ActionDeactivate), res.outcome())
		return res, err
	}
	res.record(StepPersistStatus, nil)
	c.resetWarnings(p.ID)

	details := fmt.Sprintf("reason=%q password_rotated=%t users_disabled=%d users_failed=%d",
		reason, res.PasswordRotated, res.Succeeded, res.Failed)
	c.audit(ctx, logger, p.ID, panels.ActionDeactivated, details, res)

	c.notifier.NotifyDeactivated(ctx, p.OwnerID, panels.Deactivation{
		PanelID:     p.ID,
		Username:    p.Username,
		Reason:      reason,
		NewPassword: res.NewPassword,
		Disabled:    res.Succeeded,
		Failed:      res.Failed,
	})
	res.record(StepNotify, nil)

	c.metrics.RecordEnforcement(string(ActionDeactivate), res.outcome())
	logger.Info("panel deactivated",
		"reason", reason,
		"password_rotated", res.PasswordRotated,
		"disabled", res.Succeeded,
		"failed", res.Failed,
	)
	return res, nil
}

// Reactivate takes the panel lock and reactivates the panel.
func (c *Controller) Reactivate(ctx context.Context, panelID int64) (*Result, error) {
	release, err := c.locker.Lock(ctx, panelID)
	if err != nil {
		return nil, fmt.Errorf("lock panel %d: %w", panelID, err)
	}
	defer release()

	p, err := c.store.GetPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("panel_id", p.ID, "username", p.Username)

	res := &Result{Action: ActionReactivate, PanelID: p.ID, Username: p.Username}

	if p.HasOriginalPassword() {
		c.restorePassword(ctx, logger, p, res)
	} else {
		res.skip(StepRestorePassword, "previous password unavailable")
		logger.Warn("no original password stored, password not restored")
	}

	c.toggleUsers(ctx, logger, p, panels.UserActive, res)

	upd := panels.NewUpdate().SetStatus(panels.StatusActive, "", c.clock.Now())
	if err := c.store.UpdatePanel(ctx, p.ID, upd); err != nil {
		err = &panels.PersistenceError{Op: string(StepPersistStatus), PanelID: p.ID, Err: err}
		logger.Error("failed to persist active status", "step", StepPersistStatus, "error", err)
		res.record(StepPersistStatus, err)
		c.metrics.RecordEnforcement(string(ActionReactivate), res.outcome())
		return res, err
	}
	res.record(StepPersistStatus, nil)
	c.resetWarnings(p.ID)

	details := fmt.Sprintf("password_restored=%t users_enabled=%d users_failed=%d",
		res.PasswordRestored, res.Succeeded, res.Failed)
	c.audit(ctx, logger, p.ID, panels.ActionReactivated, details, res)

	c.notifier.NotifyReactivated(ctx, p.OwnerID, panels.Reactivation{
		PanelID:          p.ID,
		Username:         p.Username,
		PasswordRestored: res.PasswordRestored,
		Enabled:          res.Succeeded,
		Failed:           res.Failed,
	})
	res.record(StepNotify, nil)

	c.metrics.RecordEnforcement(string(ActionReactivate), res.outcome())
	logger.Info("panel reactivated",
		"password_restored", res.PasswordRestored,
		"enabled", res.Succeeded,
		"failed", res.Failed,
	)
	return res, nil
}

func (c *Controller) resetWarnings(panelID int64) {
	if c.warnings != nil {
		c.warnings.Reset(panelID)
	}
}

func (c *Controller) rotatePassword(ctx context.Context, logger *slog.Logger, p *panels.AdminPanel, res *Result) {
	password, err := GeneratePassword(c.passwordLength)
	if err != nil {
		res.record(StepRotatePassword, err)
		return
	}

	if err := c.client.RotatePassword(ctx, p.Username, password); err != nil {
		logger.Warn("password rotation failed, keeping current password", "step", StepRotatePassword, "error", err)
		res.record(StepRotatePassword, err)
		return
	}
	// The remote password changed. Report it even if persisting fails so an
	// operator can still log in.
	res.PasswordRotated = true
	res.NewPassword = password

	if err := c.store.UpdatePanel(ctx, p.ID, panels.NewUpdate().SetPassword(password)); err != nil {
		err = &panels.PersistenceError{Op: string(StepRotatePassword), PanelID: p.ID, Err: err}
		logger.Error("password rotated but not persisted", "step", StepRotatePassword, "error", err)
		res.record(StepRotatePassword, err)
		return
	}
	res.record(StepRotatePassword, nil)
}

func (c *Controller) restorePassword(ctx context.Context, logger *slog.Logger, p *panels.AdminPanel, res *Result) {
	if err := c.client.RotatePassword(ctx, p.Username, p.OriginalPassword); err != nil {
		logger.Warn("password restore failed", "step", StepRestorePassword, "error", err)
		res.record(StepRestorePassword, err)
		return
	}

	upd := panels.NewUpdate().SetPassword(p.OriginalPassword).ClearOriginalPassword()
	if err := c.store.UpdatePanel(ctx, p.ID, upd); err != nil {
		// The remote has the original back. Keep PasswordRestored false so
		// the stale local state is visible.
		err = &panels.PersistenceError{Op: string(StepRestorePassword), PanelID: p.ID, Err: err}
		logger.Error("password restored but not persisted", "step", StepRestorePassword, "error", err)
		res.record(StepRestorePassword, err)
		return
	}
	res.PasswordRestored = true
	res.record(StepRestorePassword, nil)

	if err := ratelimit.Pause(ctx, c.clock, c.restorePause); err != nil {
		logger.Debug("restore pause interrupted", "error", err)
	}
}

// toggleUsers sets every user not yet in target status to target. Disabling
// touches active users only, enabling touches disabled users only.
func (c *Controller) toggleUsers(ctx context.Context, logger *slog.Logger, p *panels.AdminPanel, target panels.UserStatus, res *Result) {
	step, from, action := StepDisableUsers, panels.UserActive, "disable_users"
	if target == panels.UserActive {
		step, from, action = StepEnableUsers, panels.UserDisabled, "enable_users"
	}

	users, err := c.client.ListUsers(ctx, p.Username)
	if err != nil {
		logger.Warn("failed to list users", "step", step, "error", err)
		res.record(step, err)
		return
	}

	failure := &panels.PartialEnforcementFailure{Action: action}
	for _, u := range users {
		if u.Status != from {
			continue
		}
		if err := c.throttle.Wait(ctx); err != nil {
			failure.Failed++
			failure.Errors = append(failure.Errors, err)
			continue
		}
		if err := c.client.SetUserStatus(ctx, u.Username, target); err != nil {
			failure.Failed++
			failure.Errors = append(failure.Errors, err)
			c.metrics.RecordUserToggle(string(target), false)
			logger.Debug("user status change failed", "user", u.Username, "status", target, "error", err)
			continue
		}
		failure.Succeeded++
		c.metrics.RecordUserToggle(string(target), true)
		logger.Debug("user status changed", "user", u.Username, "status", target)
	}

	res.Succeeded, res.Failed = failure.Succeeded, failure.Failed
	if failure.Failed > 0 {
		logger.Warn("some user calls failed", "step", step, "succeeded", failure.Succeeded, "failed", failure.Failed)
		res.record(step, failure)
		return
	}
	res.record(step, nil)
}

func (c *Controller) audit(ctx context.Context, logger *slog.Logger, panelID int64, action, details string, res *Result) {
	entry := panels.LogEntry{
		ID:        uuid.NewString(),
		PanelID:   panelID,
		Action:    action,
		Details:   details,
		CreatedAt: c.clock.Now(),
	}
	if err := c.store.AppendLog(ctx, entry); err != nil {
		err = &panels.PersistenceError{Op: string(StepAuditLog), PanelID: panelID, Err: err}
		logger.Error("failed to append audit log", "step", StepAuditLog, "error", err)
		res.record(StepAuditLog, err)
		return
	}
	res.record(StepAuditLog, nil)
}
