package panelstest

import (
	"context"
	"sync"

	"resellerhq/warden/pkg/panels"
)

// RecordingNotifier records every notification it receives.
type RecordingNotifier struct {
	mu sync.Mutex

	Warnings      []panels.Warning
	Deactivations []panels.Deactivation
	Reactivations []panels.Reactivation
	Operator      []string
}

func (r *RecordingNotifier) NotifyWarning(ctx context.Context, ownerID int64, w panels.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, w)
}

func (r *RecordingNotifier) NotifyDeactivated(ctx context.Context, ownerID int64, d panels.Deactivation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deactivations = append(r.Deactivations, d)
}

func (r *RecordingNotifier) NotifyReactivated(ctx context.Context, ownerID int64, re panels.Reactivation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reactivations = append(r.Reactivations, re)
}

func (r *RecordingNotifier) NotifyOperators(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Operator = append(r.Operator, message)
}

// WarningCount returns the number of warnings received.
func (r *RecordingNotifier) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Warnings)
}

var _ panels.Notifier = (*RecordingNotifier)(nil)
