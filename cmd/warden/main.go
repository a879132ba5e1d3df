// Warden watches resold Marzban admin panels and enforces their quotas.
//
// It samples each delegated admin's usage on a fixed interval, warns owners
// as they approach their limits, and deactivates panels that exceed them by
// rotating the admin password and disabling every user. Operators reactivate
// panels from the CLI or the HTTP API.
//
// Usage:
//
//	# Start the monitor with the default warden.yaml
//	warden run
//
//	# Run a single sweep and print the report
//	warden sweep
//
//	# Inspect and act on panels
//	warden panel list
//	warden panel check 3
//	warden panel deactivate 3 --non-payment
//	warden panel reactivate 3
//
//	# Validate a configuration file
//	warden validate -c /etc/warden/warden.yaml
package main

import (
	"fmt"
	"os"

	"resellerhq/warden/pkg/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
