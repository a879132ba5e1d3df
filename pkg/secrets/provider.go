package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that does not hold the secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from one backend.
type Provider interface {
	// Name identifies the backend in errors and logs.
	Name() string

	// Lookup returns the secret value. It returns an error wrapping
	// ErrNotFound when the backend does not hold name.
	Lookup(ctx context.Context, name string) (string, error)
}
