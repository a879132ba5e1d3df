package config

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"resellerhq/warden/pkg/secrets"
)

// SecretExpander replaces ${secret:name} references in a value.
type SecretExpander interface {
	Expand(ctx context.Context, s string) (string, error)
}

// NewSecretResolver builds the resolver for cfg: environment first, then
// the secrets directory when one is configured.
func NewSecretResolver(cfg SecretsConfig) (*secrets.Resolver, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(secrets.DefaultEnvPrefix)}
	if cfg.Dir != "" {
		fp, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return secrets.NewResolver(providers...), nil
}

// credentials returns the fields that may hold secret references.
func (c *Config) credentials() map[string]*string {
	return map[string]*string{
		"marzban.username":                &c.Marzban.Username,
		"marzban.password":                &c.Marzban.Password,
		"enforcement.lock.redis_password": &c.Enforcement.Lock.RedisPassword,
		"notify.telegram.bot_token":       &c.Notify.Telegram.BotToken,
		"notify.email.username":           &c.Notify.Email.Username,
		"notify.email.password":           &c.Notify.Email.Password,
		"server.api_token":                &c.Server.APIToken,
	}
}

// ResolveSecrets expands secret references in credential fields in place.
// Every unresolved field is reported in one ValidationError.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretExpander) error {
	var errs []FieldError
	for field, ptr := range c.credentials() {
		if !secrets.HasReference(*ptr) {
			continue
		}
		v, err := r.Expand(ctx, *ptr)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("secret not resolved: %v", err)})
			continue
		}
		*ptr = v
	}
	if len(errs) > 0 {
		sortFieldErrors(errs)
		return ValidationError{Errors: errs}
	}
	return nil
}

func sortFieldErrors(errs []FieldError) {
	slices.SortFunc(errs, func(a, b FieldError) int {
		return cmp.Compare(a.Field, b.Field)
	})
}
