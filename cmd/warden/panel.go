package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"resellerhq/warden/pkg/cli"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/panels"
)

const recentLimit = 10

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Inspect and act on admin panels",
}

var panelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all panels",
	Args:  cobra.NoArgs,
	RunE: withApp("panel list", func(ctx context.Context, a *app, p *cli.Printer, _ []string) error {
		list, err := a.store.ListPanels(ctx)
		if err != nil {
			return err
		}
		return p.Panels(list)
	}),
}

var panelShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a panel with its recent samples and audit log",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("panel show", func(ctx context.Context, a *app, p *cli.Printer, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		pn, err := a.store.GetPanel(ctx, id)
		if err != nil {
			return err
		}
		samples, err := a.store.RecentSamples(ctx, id, recentLimit)
		if err != nil {
			return err
		}
		logs, err := a.store.RecentLogs(ctx, id, recentLimit)
		if err != nil {
			return err
		}
		return p.Panel(pn, samples, logs)
	}),
}

var panelCheckCmd = &cobra.Command{
	Use:   "check ID",
	Short: "Sample a panel now and evaluate it without enforcing",
	Args:  cobra.ExactArgs(1),
	RunE: withApp("panel check", func(ctx context.Context, a *app, p *cli.Printer, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		res, err := a.sweeper.Check(ctx, id)
		if err != nil {
			return err
		}
		return p.Check(res)
	}),
}

var deactivateFlags struct {
	reason     string
	nonPayment bool
}

var panelDeactivateCmd = &cobra.Command{
	Use:   "deactivate ID",
	Short: "Deactivate a panel",
	Long: `Deactivate a panel: capture its password, rotate it, disable every user
and notify the owner and operators. The new password is sent to operators only.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp("panel deactivate", func(ctx context.Context, a *app, p *cli.Printer, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reason := deactivateFlags.reason
		switch {
		case deactivateFlags.nonPayment && reason != "":
			return errors.New("--reason and --non-payment are mutually exclusive")
		case deactivateFlags.nonPayment:
			reason = panels.ReasonNonPayment
		case reason == "":
			reason = panels.ReasonManual
		}
		return printResult(p, func() (*enforcement.Result, error) {
			return a.controller.Deactivate(ctx, id, reason)
		})
	}),
}

var panelReactivateCmd = &cobra.Command{
	Use:   "reactivate ID",
	Short: "Reactivate a panel",
	Long: `Reactivate a panel: restore its original password, re-enable users that
were disabled and notify the owner and operators.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp("panel reactivate", func(ctx context.Context, a *app, p *cli.Printer, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return printResult(p, func() (*enforcement.Result, error) {
			return a.controller.Reactivate(ctx, id)
		})
	}),
}

var quotaFlags struct {
	maxUsers   int64
	maxTraffic string
	maxTime    time.Duration
	resetClock bool
}

var panelQuotasCmd = &cobra.Command{
	Use:   "quotas ID",
	Short: "Change a panel's quotas",
	Long: `Change a panel's quotas. Only the flags given are changed; 0 removes a limit.

Examples:
  warden panel quotas 3 --max-users 50
  warden panel quotas 3 --max-traffic 200GiB --max-time 720h
  warden panel quotas 3 --max-time 720h --reset-clock`,
	Args: cobra.ExactArgs(1),
}

func init() {
	panelQuotasCmd.RunE = withApp("panel quotas", runQuotas)

	rootCmd.AddCommand(panelCmd)
	panelCmd.AddCommand(panelListCmd, panelShowCmd, panelCheckCmd,
		panelDeactivateCmd, panelReactivateCmd, panelQuotasCmd)

	panelDeactivateCmd.Flags().StringVar(&deactivateFlags.reason, "reason", "", "reason recorded and sent to the owner")
	panelDeactivateCmd.Flags().BoolVar(&deactivateFlags.nonPayment, "non-payment", false, "deactivate for non-payment")

	f := panelQuotasCmd.Flags()
	f.Int64Var(&quotaFlags.maxUsers, "max-users", 0, "maximum users")
	f.StringVar(&quotaFlags.maxTraffic, "max-traffic", "", "maximum total traffic, e.g. 100GiB")
	f.DurationVar(&quotaFlags.maxTime, "max-time", 0, "validity period from creation, e.g. 720h")
	f.BoolVar(&quotaFlags.resetClock, "reset-clock", false, "restart the validity period now")
}

func runQuotas(ctx context.Context, a *app, p *cli.Printer, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	upd, err := quotaUpdate(panelQuotasCmd, time.Now())
	if err != nil {
		return err
	}
	if err := a.controller.UpdateQuotas(ctx, id, upd); err != nil {
		return err
	}
	pn, err := a.store.GetPanel(ctx, id)
	if err != nil {
		return err
	}
	return p.Panel(pn, nil, nil)
}

// quotaUpdate builds an update from the flags that were set on cmd.
func quotaUpdate(cmd *cobra.Command, now time.Time) (*panels.Update, error) {
	upd := panels.NewUpdate()
	f := cmd.Flags()
	if f.Changed("max-users") {
		if quotaFlags.maxUsers < 0 {
			return nil, errors.New("--max-users must not be negative")
		}
		upd.SetMaxUsers(quotaFlags.maxUsers)
	}
	if f.Changed("max-traffic") {
		n, err := humanize.ParseBytes(quotaFlags.maxTraffic)
		if err != nil {
			return nil, fmt.Errorf("--max-traffic: %w", err)
		}
		upd.SetMaxTotalTraffic(int64(n))
	}
	if f.Changed("max-time") {
		if quotaFlags.maxTime < 0 {
			return nil, errors.New("--max-time must not be negative")
		}
		upd.SetMaxTotalTime(int64(quotaFlags.maxTime / time.Second))
	}
	if quotaFlags.resetClock {
		upd.SetCreatedAt(now.UTC())
	}
	if upd.Empty() {
		return nil, errors.New("no quota flags given")
	}
	return upd, nil
}

// printResult prints an enforcement result and maps step failures to
// ErrPartial.
func printResult(p *cli.Printer, action func() (*enforcement.Result, error)) error {
	res, err := action()
	if res != nil {
		if perr := p.Result(res); perr != nil {
			return perr
		}
		if err == nil && !res.OK() {
			return fmt.Errorf("%w: %v", cli.ErrPartial, res.Err())
		}
	}
	return err
}

// withApp loads the config, builds the app and runs fn under a signal-aware
// context.
func withApp(name string, fn func(ctx context.Context, a *app, p *cli.Printer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat()
		if err != nil {
			return cli.NewCommandError(name, err)
		}
		cfg, _, err := loadConfig(cmd.Context())
		if err != nil {
			return cli.NewCommandError(name, err)
		}

		ctx, stop := cli.SignalContext(cmd.Context())
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return cli.NewCommandError(name, err)
		}
		defer a.Close()

		if err := fn(ctx, a, cli.NewPrinter(cmd.OutOrStdout(), format), args); err != nil {
			return cli.NewCommandError(name, err)
		}
		return nil
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid panel id %q", s)
	}
	return id, nil
}
