package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resellerhq/warden/pkg/cli"
	"resellerhq/warden/pkg/monitor"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one sweep over all active panels and exit",
	Long: `Run one sweep: clean up expired users when enabled, then sample,
evaluate and enforce every active panel, exactly as a scheduled tick would.

Do not run this next to a "warden run" process that uses the memory lock
backend; use the redis backend so both processes share panel locks.`,
	Args: cobra.NoArgs,
	RunE: withApp("sweep", func(ctx context.Context, a *app, p *cli.Printer, _ []string) error {
		report := a.sweeper.Sweep(ctx)
		if err := p.Report(report); err != nil {
			return err
		}
		if report.Err != nil {
			return report.Err
		}
		if n := report.Count(monitor.OutcomeError); n > 0 {
			return fmt.Errorf("%w: %d panels failed", cli.ErrPartial, n)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
