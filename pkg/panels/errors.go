package panels

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPanelNotFound is returned when a panel id does not exist.
	ErrPanelNotFound = errors.New("panel not found")

	// ErrAuth is wrapped by TransientAPIError when the remote panel rejects
	// our credentials.
	ErrAuth = errors.New("remote panel authentication failed")

	// ErrNetwork is wrapped by TransientAPIError for transport failures and
	// server-side errors.
	ErrNetwork = errors.New("remote panel unreachable")

	// ErrRejected is wrapped by TransientAPIError when the remote panel
	// answers with a non-retryable client error.
	ErrRejected = errors.New("remote panel rejected request")

	// ErrLocked is returned when another action holds the panel lock.
	ErrLocked = errors.New("panel is locked by another action")
)

// TransientAPIError is a failed call to the remote panel. The engine skips
// the panel for the current sweep and tries again on the next tick.
type TransientAPIError struct {
	// Op is the client operation, e.g. "list_users".
	Op string

	// Username is the delegated admin or user the call targeted.
	Username string

	// StatusCode is the HTTP status, 0 for transport errors.
	StatusCode int

	Err error
}

func (e *TransientAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.Username, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Username, e.Err)
}

func (e *TransientAPIError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed Store write. Processing of the affected panel
// stops for the current sweep.
type PersistenceError struct {
	Op      string
	PanelID int64
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for panel %d: %v", e.Op, e.PanelID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialEnforcementFailure reports a bulk user toggle where some calls
// failed. It is informational: enforcement still completes.
type PartialEnforcementFailure struct {
	Action    string
	Succeeded int
	Failed    int
	Errors    []error
}

func (e *PartialEnforcementFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d user calls failed", e.Action, e.Failed, e.Succeeded+e.Failed)
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, " (first: %v)", e.Errors[0])
	}
	return b.String()
}

func (e *PartialEnforcementFailure) Unwrap() []error {
	return e.Errors
}

// IsTransient reports whether err came from a remote panel call.
func IsTransient(err error) bool {
	var t *TransientAPIError
	return errors.As(err, &t)
}

// IsPersistence reports whether err came from a Store write.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
