package enforcement

import (
	"errors"
	"time"

	"github.com/coder/quartz"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// Action names an enforcement action.
type Action string

const (
	ActionDeactivate Action = "deactivate"
	ActionReactivate Action = "reactivate"
)

// Step names one stage of an action.
type Step string

const (
	StepCapturePassword Step = "capture_original_password"
	StepRotatePassword  Step = "rotate_password"
	StepDisableUsers    Step = "disable_users"
	StepRestorePassword Step = "restore_password"
	StepEnableUsers     Step = "enable_users"
	StepPersistStatus   Step = "persist_status"
	StepAuditLog        Step = "audit_log"
	StepNotify          Step = "notify"
)

// Config configures a Controller.
type Config struct {
	// UserCallInterval spaces consecutive per-user calls. Zero disables
	// throttling.
	UserCallInterval time.Duration

	// RestorePause is waited after a password restore before users are
	// enabled again.
	RestorePause time.Duration

	// PasswordLength is the number of hex characters in a generated
	// password. Defaults to 10.
	PasswordLength int

	// Locker serializes actions per panel. Defaults to a MemoryLocker.
	Locker Locker

	// Warnings, when set, is cleared for a panel whenever its status
	// changes so warnings start over after reactivation.
	Warnings *limits.WarningTracker

	Clock   quartz.Clock
	Metrics *metrics.Collector
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step Step `json:"step"`

	// Skipped is set when the step did not apply, e.g. no original password
	// to restore.
	Skipped bool   `json:"skipped,omitempty"`
	Note    string `json:"note,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Result describes one completed action.
type Result struct {
	Action   Action `json:"action"`
	PanelID  int64  `json:"panel_id"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`

	// PasswordRotated is set when a new password is live on the remote
	// panel. NewPassword holds it and is never serialized.
	PasswordRotated bool   `json:"password_rotated,omitempty"`
	NewPassword     string `json:"-"`

	// PasswordRestored is false when reactivation could not put the
	// original password back.
	PasswordRestored bool `json:"password_restored"`

	// Users toggled and failed during the bulk step.
	Succeeded int `json:"users_succeeded"`
	Failed    int `json:"users_failed"`

	Steps []StepResult `json:"steps"`
}

func (r *Result) record(step Step, err error) {
	sr := StepResult{Step: step, Err: err}
	if err != nil {
		sr.Error = err.Error()
	}
	r.Steps = append(r.Steps, sr)
}

func (r *Result) skip(step Step, note string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Skipped: true, Note: note})
}

// OK reports whether every step succeeded.
func (r *Result) OK() bool {
	return r.Err() == nil
}

// Err joins the errors of all failed steps.
func (r *Result) Err() error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// StepErr returns the error recorded for step, if any.
func (r *Result) StepErr(step Step) error {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Err
		}
	}
	return nil
}

func (r *Result) outcome() string {
	switch {
	case r.OK():
		return "ok"
	case r.StepErr(StepPersistStatus) != nil:
		return "error"
	default:
		return "partial"
	}
}
