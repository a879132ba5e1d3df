package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"resellerhq/warden/pkg/cli"
	"resellerhq/warden/pkg/config"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/server"
	"resellerhq/warden/pkg/storage/retention"
	"resellerhq/warden/pkg/telemetry/health"
)

var runFlags struct {
	listenAddress string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitor",
	Long: `Start the monitoring scheduler, the retention pruner and, when enabled,
the operator HTTP API.

A sweep runs every monitoring.interval. Each sweep samples every active panel,
warns owners nearing their quotas and deactivates panels over them. Changes to
the log level and operator list in the config file are applied without a
restart.

Examples:
  # Start with the default warden.yaml
  warden run

  # Start with a custom config and expose the API on all interfaces
  warden run --config /etc/warden/warden.yaml --listen 0.0.0.0:8089

  # Validate config and connectivity without starting
  warden run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override server listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "build every component and exit")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

// staleAfter is how many missed intervals make readiness fail.
const staleAfter = 3

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, raw, err := loadConfig(cmd.Context())
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	if runFlags.dryRun {
		if err := a.client.Ping(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("marzban unreachable: %w", err))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid, Marzban reachable")
		return nil
	}

	slog.Info("starting warden",
		"version", Version,
		"config", configPath(),
		"interval", cfg.Monitoring.Interval,
		"storage", cfg.Storage.Backend,
		"lock", cfg.Enforcement.Lock.Backend,
	)

	scheduler := monitor.NewScheduler(a.sweeper, monitor.SchedulerConfig{
		Interval:   cfg.Monitoring.Interval,
		RunOnStart: cfg.Monitoring.ShouldRunOnStart(),
		Metrics:    a.metrics,
	})
	if err := scheduler.Start(); err != nil {
		return cli.NewCommandError("run", err)
	}

	if rs, ok := a.store.(retention.Store); ok {
		pruner := retention.NewPruner(rs, retentionConfig(cfg.Storage.Retention), a.metrics)
		if err := pruner.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				slog.Debug("retention scheduler started", "next_pruning", next)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv := server.New(serverConfig(cfg), server.Deps{
			Store:    a.store,
			Operator: a.controller,
			Checker:  a.sweeper,
			Sweeps:   scheduler,
			Health:   healthChecks(a, scheduler, cfg.Monitoring.Interval),
			Metrics:  a.metrics,
		})
		g.Go(func() error {
			slog.Info("starting HTTP server", "address", cfg.Server.ListenAddress)
			return srv.Run(gctx)
		})
	}

	if !runFlags.noWatch {
		w := config.NewWatcher(configPath(), raw, 0, func(old, updated *config.Config) {
			if err := a.logger.SetLevel(updated.Telemetry.Logging.Level); err != nil {
				slog.Warn("log level not applied", "error", err)
			}
			a.dispatcher.SetOperators(updated.Notify.Operators)
		})
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	<-gctx.Done()
	slog.Info("shutting down")

	scheduler.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := scheduler.Wait(waitCtx); err != nil {
		slog.Warn("in-flight sweep did not finish before shutdown", "error", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return cli.NewCommandError("run", err)
	}
	slog.Info("warden stopped")
	return nil
}

func serverConfig(cfg *config.Config) server.Config {
	sc := server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		APIToken:        cfg.Server.APIToken,
		RateLimit:       cfg.Server.RateLimit,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         Version,
		Commit:          GitCommit,
		BuildTime:       BuildDate,
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		sc.MetricsPath = cfg.Telemetry.Metrics.Path
	}
	return sc
}

// healthChecks registers readiness checks for the store, Marzban and sweep
// freshness.
func healthChecks(a *app, scheduler *monitor.Scheduler, interval time.Duration) *health.Checker {
	h := health.New(0)
	if p, ok := a.store.(health.Pinger); ok {
		h.Register("store", health.PingCheck(p))
	}
	h.Register("marzban", health.PingCheck(a.client))
	h.Register("sweep", health.FreshnessCheck(func() time.Time {
		if last := scheduler.Status().Last; last != nil {
			return last.Started
		}
		return time.Time{}
	}, staleAfter*interval))
	return h
}
