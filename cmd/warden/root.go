package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"resellerhq/warden/pkg/cli"
	"resellerhq/warden/pkg/config"
)

const defaultConfigFile = "warden.yaml"

// flags binds global flags to WARDEN_* environment variables. Flags win over
// the environment, which wins over the defaults.
var flags = viper.New()

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Quota monitor and enforcer for resold Marzban admin panels",
	Long: `Warden periodically samples the usage of every delegated Marzban admin,
warns resellers as they approach their user, traffic and time quotas, and
deactivates panels that exceed them.

Deactivation rotates the admin password and disables all of the admin's
users. Reactivation restores the original password and re-enables them.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", defaultConfigFile, "config file path (env WARDEN_CONFIG)")
	pf.String("log-level", "", "override log level: debug, info, warn, error (env WARDEN_LOG_LEVEL)")
	pf.StringP("output", "o", "text", "output format: text or json (env WARDEN_OUTPUT)")

	flags.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	flags.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	flags.AutomaticEnv()
	for _, name := range []string{"config", "log-level", "output"} {
		_ = flags.BindPFlag(name, pf.Lookup(name))
	}
}

func configPath() string {
	return flags.GetString("config")
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(flags.GetString("output"))
}

// loadConfig reads and validates the configuration, applying the
// --log-level override, and resolves secret references. raw is the
// configuration before secret resolution, as the file watcher sees it.
func loadConfig(ctx context.Context) (cfg, raw *config.Config, err error) {
	raw, err = config.LoadConfigWithEnvOverrides(configPath())
	if err != nil {
		return nil, nil, err
	}
	if lvl := flags.GetString("log-level"); lvl != "" {
		raw.Telemetry.Logging.Level = lvl
	}

	resolver, err := config.NewSecretResolver(raw.Secrets)
	if err != nil {
		return nil, nil, fmt.Errorf("secrets: %w", err)
	}
	resolved := *raw
	if err := resolved.ResolveSecrets(ctx, resolver); err != nil {
		return nil, nil, err
	}
	config.SetConfig(&resolved)
	return &resolved, raw, nil
}
