package panels

import (
	"context"
	"time"
)

// Client is the remote panel service. All methods return a
// *TransientAPIError on failure.
type Client interface {
	// GetStats returns the live usage of the delegated admin.
	GetStats(ctx context.Context, admin string) (Stats, error)

	// ListUsers returns every user owned by the delegated admin.
	ListUsers(ctx context.Context, admin string) ([]RemoteUser, error)

	// RotatePassword sets a new password for the delegated admin.
	RotatePassword(ctx context.Context, admin, password string) error

	// SetUserStatus enables or disables one delegated user.
	SetUserStatus(ctx context.Context, username string, status UserStatus) error

	// DeleteUser removes one delegated user.
	DeleteUser(ctx context.Context, username string) error
}

// Store persists panels, samples and the audit log.
type Store interface {
	// CreatePanel inserts a new panel and returns its id.
	CreatePanel(ctx context.Context, p *AdminPanel) (int64, error)

	// GetPanel returns ErrPanelNotFound when id does not exist.
	GetPanel(ctx context.Context, id int64) (*AdminPanel, error)

	// GetPanelByUsername returns ErrPanelNotFound when no panel matches.
	GetPanelByUsername(ctx context.Context, username string) (*AdminPanel, error)

	// ActivePanels returns all panels with StatusActive ordered by id.
	ActivePanels(ctx context.Context) ([]AdminPanel, error)

	// ListPanels returns all panels ordered by id.
	ListPanels(ctx context.Context) ([]AdminPanel, error)

	// UpdatePanel applies upd atomically. It returns ErrPanelNotFound when
	// id does not exist.
	UpdatePanel(ctx context.Context, id int64, upd *Update) error

	AppendSample(ctx context.Context, s UsageSample) error
	AppendLog(ctx context.Context, e LogEntry) error

	// RecentSamples and RecentLogs return the newest records first.
	RecentSamples(ctx context.Context, panelID int64, limit int) ([]UsageSample, error)
	RecentLogs(ctx context.Context, panelID int64, limit int) ([]LogEntry, error)

	// PruneSamples and PruneLogs delete records older than before and
	// return the number removed.
	PruneSamples(ctx context.Context, before time.Time) (int64, error)
	PruneLogs(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Warning is a quota warning for one resource.
type Warning struct {
	Resource Resource
	Ratio    float64
	Bracket  float64
}

// Deactivation describes a completed deactivation for notification.
type Deactivation struct {
	PanelID  int64
	Username string
	Reason   string

	// NewPassword is set only when the rotation succeeded.
	NewPassword string

	Disabled int
	Failed   int
}

// Reactivation describes a completed reactivation for notification.
type Reactivation struct {
	PanelID          int64
	Username         string
	PasswordRestored bool
	Enabled          int
	Failed           int
}

// Notifier delivers messages to panel owners and operators. Delivery is
// fire-and-forget: implementations log failures and never return them.
type Notifier interface {
	NotifyWarning(ctx context.Context, ownerID int64, w Warning)
	NotifyDeactivated(ctx context.Context, ownerID int64, d Deactivation)
	NotifyReactivated(ctx context.Context, ownerID int64, r Reactivation)
	NotifyOperators(ctx context.Context, message string)
}
