package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\$\{secret:([A-Za-z0-9._-]+)\}`)

// Resolver looks secrets up across providers in order.
type Resolver struct {
	providers []Provider
}

// NewResolver creates a resolver. Nil providers are skipped.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Lookup returns the value from the first provider holding name.
func (r *Resolver) Lookup(ctx context.Context, name string) (string, error) {
	tried := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		v, err := p.Lookup(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
		tried = append(tried, p.Name())
	}
	return "", fmt.Errorf("%w: %s (tried %s)", ErrNotFound, name, strings.Join(tried, ", "))
}

// Expand replaces every ${secret:name} reference in s.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	if !strings.Contains(s, "${secret:") {
		return s, nil
	}
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.Lookup(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// HasReference reports whether s contains a secret reference.
func HasReference(s string) bool {
	return refPattern.MatchString(s)
}
