package panels

import (
	"sort"
	"time"
)

// Update is an explicit set of field changes for one panel. Only fields set
// through its methods are written; everything else is left untouched.
type Update struct {
	password        *string
	captureOriginal *string
	clearOriginal   bool

	raisePeak *int64

	currentUsers   *int64
	currentTraffic *int64
	currentTime    *int64

	maxUsers        *int64
	maxTotalTraffic *int64
	maxTotalTime    *int64
	createdAt       *time.Time

	status            *Status
	deactivatedAt     *time.Time
	deactivatedReason string
}

// NewUpdate returns an empty update.
func NewUpdate() *Update {
	return &Update{}
}

// SetPassword replaces the current password.
func (u *Update) SetPassword(password string) *Update {
	u.password = &password
	return u
}

// CaptureOriginalPassword stores password as the original password only if
// none is stored yet.
func (u *Update) CaptureOriginalPassword(password string) *Update {
	u.captureOriginal = &password
	return u
}

// ClearOriginalPassword removes the stored original password.
func (u *Update) ClearOriginalPassword() *Update {
	u.clearOriginal = true
	return u
}

// RaisePeak sets the historical peak to max(current peak, n).
func (u *Update) RaisePeak(n int64) *Update {
	u.raisePeak = &n
	return u
}

// SetCurrentUsage records the usage baseline of the latest sample.
func (u *Update) SetCurrentUsage(users, traffic, elapsedSeconds int64) *Update {
	u.currentUsers = &users
	u.currentTraffic = &traffic
	u.currentTime = &elapsedSeconds
	return u
}

// SetMaxUsers changes the user quota.
func (u *Update) SetMaxUsers(n int64) *Update {
	u.maxUsers = &n
	return u
}

// SetMaxTotalTraffic changes the traffic quota in bytes.
func (u *Update) SetMaxTotalTraffic(n int64) *Update {
	u.maxTotalTraffic = &n
	return u
}

// SetMaxTotalTime changes the validity quota in seconds.
func (u *Update) SetMaxTotalTime(n int64) *Update {
	u.maxTotalTime = &n
	return u
}

// SetCreatedAt moves the elapsed-time anchor.
func (u *Update) SetCreatedAt(t time.Time) *Update {
	u.createdAt = &t
	return u
}

// SetStatus changes the status. Deactivation records the reason and time;
// activation clears both.
func (u *Update) SetStatus(status Status, reason string, at time.Time) *Update {
	u.status = &status
	if status == StatusDeactivated {
		u.deactivatedAt = &at
		u.deactivatedReason = reason
	} else {
		u.deactivatedAt = nil
		u.deactivatedReason = ""
	}
	return u
}

// Empty reports whether the update changes nothing.
func (u *Update) Empty() bool {
	return len(u.Fields()) == 0
}

// Audited reports whether the update touches a field whose change must be
// written to the audit log.
func (u *Update) Audited() bool {
	return u.maxTotalTime != nil || u.createdAt != nil
}

// Fields lists the column names the update writes, sorted.
func (u *Update) Fields() []string {
	var f []string
	add := func(set bool, name string) {
		if set {
			f = append(f, name)
		}
	}
	add(u.password != nil, "password")
	add(u.captureOriginal != nil || u.clearOriginal, "original_password")
	add(u.raisePeak != nil, "users_historical_peak")
	add(u.currentUsers != nil, "current_users")
	add(u.currentTraffic != nil, "current_traffic")
	add(u.currentTime != nil, "current_time")
	add(u.maxUsers != nil, "max_users")
	add(u.maxTotalTraffic != nil, "max_total_traffic")
	add(u.maxTotalTime != nil, "max_total_time")
	add(u.createdAt != nil, "created_at")
	if u.status != nil {
		f = append(f, "status", "deactivated_at", "deactivated_reason")
	}
	sort.Strings(f)
	return f
}

// Apply mutates p the way a store would. Stores without a query language use
// it directly; SQL stores mirror its rules in their statements.
func (u *Update) Apply(p *AdminPanel, now time.Time) {
	if u.password != nil {
		p.Password = *u.password
	}
	if u.clearOriginal {
		p.OriginalPassword = ""
	} else if u.captureOriginal != nil && p.OriginalPassword == "" {
		p.OriginalPassword = *u.captureOriginal
	}
	if u.raisePeak != nil && *u.raisePeak > p.UsersHistoricalPeak {
		p.UsersHistoricalPeak = *u.raisePeak
	}
	if u.currentUsers != nil {
		p.CurrentUsers = *u.currentUsers
	}
	if u.currentTraffic != nil {
		p.CurrentTraffic = *u.currentTraffic
	}
	if u.currentTime != nil {
		p.CurrentTime = *u.currentTime
	}
	if u.maxUsers != nil {
		p.MaxUsers = *u.maxUsers
	}
	if u.maxTotalTraffic != nil {
		p.MaxTotalTraffic = *u.maxTotalTraffic
	}
	if u.maxTotalTime != nil {
		p.MaxTotalTime = *u.maxTotalTime
	}
	if u.createdAt != nil {
		p.CreatedAt = *u.createdAt
	}
	if u.status != nil {
		p.Status = *u.status
		if u.deactivatedAt != nil {
			t := *u.deactivatedAt
			p.DeactivatedAt = &t
		} else {
			p.DeactivatedAt = nil
		}
		p.DeactivatedReason = u.deactivatedReason
	}
	p.UpdatedAt = now
}

// Values exposes the update to SQL stores. Nil pointers mean "not set".
type Values struct {
	Password          *string
	CaptureOriginal   *string
	ClearOriginal     bool
	RaisePeak         *int64
	CurrentUsers      *int64
	CurrentTraffic    *int64
	CurrentTime       *int64
	MaxUsers          *int64
	MaxTotalTraffic   *int64
	MaxTotalTime      *int64
	CreatedAt         *time.Time
	Status            *Status
	DeactivatedAt     *time.Time
	DeactivatedReason string
}

// Values returns a copy of the update's fields.
func (u *Update) Values() Values {
	return Values{
		Password:          u.password,
		CaptureOriginal:   u.captureOriginal,
		ClearOriginal:     u.clearOriginal,
		RaisePeak:         u.raisePeak,
		CurrentUsers:      u.currentUsers,
		CurrentTraffic:    u.currentTraffic,
		CurrentTime:       u.currentTime,
		MaxUsers:          u.maxUsers,
		MaxTotalTraffic:   u.maxTotalTraffic,
		MaxTotalTime:      u.maxTotalTime,
		CreatedAt:         u.createdAt,
		Status:            u.status,
		DeactivatedAt:     u.deactivatedAt,
		DeactivatedReason: u.deactivatedReason,
	}
}
