package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "WARDEN_SECRET_"

// EnvProvider loads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. The secret "bot-token"
// is read from prefix + "BOT_TOKEN".
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	key := p.envVar(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, key)
	}
	return value, nil
}

func (p *EnvProvider) envVar(name string) string {
	return p.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
