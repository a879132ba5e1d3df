package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"resellerhq/warden/pkg/cli"
	"resellerhq/warden/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file with environment overrides applied and report
every validation error. No connection is made to Marzban or the store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		cfg, _, err := loadConfig(cmd.Context())
		if err != nil {
			var verr config.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(w, "✗ %s has %d error(s):\n", configPath(), len(verr.Errors))
				for _, fe := range verr.Errors {
					fmt.Fprintf(w, "  - %s\n", fe.Error())
				}
			}
			return cli.NewCommandError("validate", err)
		}

		fmt.Fprintf(w, "✓ %s is valid\n", configPath())
		fmt.Fprintf(w, "  marzban:     %s\n", cfg.Marzban.URL)
		fmt.Fprintf(w, "  interval:    %s\n", cfg.Monitoring.Interval)
		fmt.Fprintf(w, "  brackets:    %v\n", cfg.Monitoring.WarningBrackets)
		fmt.Fprintf(w, "  storage:     %s\n", cfg.Storage.Backend)
		fmt.Fprintf(w, "  lock:        %s\n", cfg.Enforcement.Lock.Backend)
		fmt.Fprintf(w, "  telegram:    %t\n", cfg.Notify.Telegram.Enabled)
		fmt.Fprintf(w, "  email:       %t\n", cfg.Notify.Email.Enabled)
		fmt.Fprintf(w, "  server:      %t\n", cfg.Server.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
