package cli

import (
	"errors"
	"fmt"

	"resellerhq/warden/pkg/config"
	"resellerhq/warden/pkg/panels"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitConfig   = 2
	ExitNotFound = 3
	ExitPartial  = 4
)

// CommandError wraps a command failure with its exit code.
type CommandError struct {
	Command string
	Code    int
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err for command, deriving the exit code from it.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Code: codeFor(err), Err: err}
}

// ErrPartial marks an action that completed with failed steps.
var ErrPartial = errors.New("completed with failures")

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return codeFor(err)
}

func codeFor(err error) int {
	var verr config.ValidationError
	switch {
	case errors.As(err, &verr):
		return ExitConfig
	case errors.Is(err, panels.ErrPanelNotFound):
		return ExitNotFound
	case errors.Is(err, ErrPartial):
		return ExitPartial
	default:
		return ExitError
	}
}
