package panels

import (
	"fmt"
	"time"
)

// Status is the enforcement state of an admin panel.
type Status string

const (
	// StatusActive means the panel's credentials and users are live.
	StatusActive Status = "active"

	// StatusDeactivated means the panel was shut down for exceeding a quota
	// or by an operator.
	StatusDeactivated Status = "deactivated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDeactivated
}

// Resource names one of the three quota dimensions.
type Resource string

const (
	ResourceUsers   Resource = "users"
	ResourceTraffic Resource = "traffic"
	ResourceTime    Resource = "time"
)

// Resources lists the quota dimensions in reporting order.
var Resources = []Resource{ResourceUsers, ResourceTraffic, ResourceTime}

// Label returns a human readable label for notifications.
func (r Resource) Label() string {
	switch r {
	case ResourceUsers:
		return "user count"
	case ResourceTraffic:
		return "traffic"
	case ResourceTime:
		return "validity time"
	default:
		return string(r)
	}
}

// Deactivation reasons recorded on the panel and in the audit log.
const (
	ReasonUsersLimit   = "user limit reached"
	ReasonTrafficLimit = "traffic limit reached"
	ReasonTimeLimit    = "time limit reached"
	ReasonNonPayment   = "non-payment"
	ReasonManual       = "manual deactivation"
)

// AdminPanel is one delegated sub-account on the Marzban panel, owned by a
// reseller.
type AdminPanel struct {
	// ID is the internal identifier.
	ID int64 `json:"id"`

	// OwnerID is the reseller's chat id, used as the notification target.
	OwnerID int64 `json:"owner_id"`

	// Username is the delegated admin username on the remote panel (unique).
	Username string `json:"username"`

	// Password is the credential currently set on the remote panel.
	Password string `json:"-"`

	// OriginalPassword is the last known-good password captured before the
	// first forced rotation. Empty means unset.
	OriginalPassword string `json:"-"`

	// Quotas. A value <= 0 disables that dimension.
	MaxUsers        int64 `json:"max_users"`
	MaxTotalTraffic int64 `json:"max_total_traffic"`
	MaxTotalTime    int64 `json:"max_total_time"`

	// CreatedAt anchors the elapsed-time ratio.
	CreatedAt time.Time `json:"created_at"`

	// UsersHistoricalPeak is the highest user count ever observed.
	UsersHistoricalPeak int64 `json:"users_historical_peak"`

	// Usage baseline from the most recent sample.
	CurrentUsers   int64 `json:"current_users"`
	CurrentTraffic int64 `json:"current_traffic"`
	CurrentTime    int64 `json:"current_time"`

	Status            Status     `json:"status"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
	DeactivatedReason string     `json:"deactivated_reason,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasOriginalPassword reports whether a pre-rotation password was captured.
func (p *AdminPanel) HasOriginalPassword() bool {
	return p.OriginalPassword != ""
}

// IsActive reports whether the panel is in the Active state.
func (p *AdminPanel) IsActive() bool {
	return p.Status == StatusActive
}

// Elapsed returns the validity time consumed since creation.
func (p *AdminPanel) Elapsed(now time.Time) time.Duration {
	if p.CreatedAt.IsZero() || now.Before(p.CreatedAt) {
		return 0
	}
	return now.Sub(p.CreatedAt)
}

func (p *AdminPanel) String() string {
	return fmt.Sprintf("panel %d (%s)", p.ID, p.Username)
}

// UsageSample is an append-only point-in-time observation of a panel.
type UsageSample struct {
	ID             int64     `json:"id"`
	PanelID        int64     `json:"panel_id"`
	Timestamp      time.Time `json:"timestamp"`
	Users          int64     `json:"users"`
	PeakUsers      int64     `json:"peak_users"`
	ActiveUsers    int64     `json:"active_users"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	TrafficUsed    int64     `json:"traffic_used"`
}

// Audit log actions.
const (
	ActionDeactivated    = "deactivated"
	ActionReactivated    = "reactivated"
	ActionWarning        = "warning"
	ActionQuotaChanged   = "quota_changed"
	ActionExpiredCleanup = "expired_cleanup"
)

// LogEntry is an append-only audit record.
type LogEntry struct {
	ID        string    `json:"id"`
	PanelID   int64     `json:"panel_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStatus is the status of a delegated user on the remote panel.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// RemoteUser is a delegated user as reported by the remote panel.
type RemoteUser struct {
	Username            string     `json:"username"`
	Status              UserStatus `json:"status"`
	UsedTraffic         int64      `json:"used_traffic"`
	LifetimeUsedTraffic int64      `json:"lifetime_used_traffic"`
	DataLimit           *int64     `json:"data_limit"`
	Expire              *int64     `json:"expire"`
	Admin               string     `json:"admin,omitempty"`
}

// Expired reports whether the user has an expiry at or before now.
func (u RemoteUser) Expired(now time.Time) bool {
	return u.Expire != nil && *u.Expire <= now.Unix()
}

// Stats is the live usage summary of one delegated admin.
type Stats struct {
	TotalUsers  int64 `json:"total_users"`
	ActiveUsers int64 `json:"active_users"`
	TrafficUsed int64 `json:"traffic_used"`
}
