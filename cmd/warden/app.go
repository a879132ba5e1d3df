package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"resellerhq/warden/pkg/config"
	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/marzban"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/notify"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/storage"
	"resellerhq/warden/pkg/storage/retention"
	"resellerhq/warden/pkg/telemetry/logging"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// app is the wired component graph shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *metrics.Collector
	store      panels.Store
	client     *marzban.Client
	dispatcher *notify.Dispatcher
	locker     enforcement.Locker
	controller *enforcement.Controller
	sweeper    *monitor.Sweeper

	closers []io.Closer
}

// newLogger installs the configured logger as the slog default. It must run
// before any component is built, since components capture slog.Default.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: cfg.AddSource,
		Redact:    cfg.RedactEnabled(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Install()
	return logger, nil
}

// buildApp wires storage, the Marzban client, notifications and the
// enforcement engine from cfg.
func buildApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg, metrics: metrics.NewCollector(nil)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.logger, err = newLogger(cfg.Telemetry.Logging); err != nil {
		return nil, err
	}

	a.store, err = storage.Open(cfg.Storage.Backend, storage.SQLiteConfig{
		Path:        cfg.Storage.SQLite.Path,
		BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		WALMode:     cfg.Storage.SQLite.WALEnabled(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if c, ok := a.store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.client, err = marzban.New(marzban.Config{
		BaseURL:    cfg.Marzban.URL,
		Username:   cfg.Marzban.Username,
		Password:   cfg.Marzban.Password,
		Timeout:    cfg.Marzban.Timeout,
		MaxRetries: cfg.Marzban.MaxRetries,
		PageSize:   cfg.Marzban.PageSize,
	}, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create marzban client: %w", err)
	}

	if a.dispatcher, err = newDispatcher(cfg.Notify, a.metrics); err != nil {
		return nil, err
	}

	if a.locker, err = newLocker(ctx, cfg.Enforcement.Lock); err != nil {
		return nil, err
	}
	if c, ok := a.locker.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var warnings *limits.WarningTracker
	if cfg.Monitoring.DedupeWarnings {
		warnings = limits.NewWarningTracker()
	}

	a.controller = enforcement.NewController(a.store, a.client, a.dispatcher, enforcement.Config{
		UserCallInterval: cfg.Enforcement.UserCallInterval,
		RestorePause:     cfg.Enforcement.RestorePause,
		PasswordLength:   cfg.Enforcement.PasswordLength,
		Locker:           a.locker,
		Warnings:         warnings,
		Metrics:          a.metrics,
	})

	a.sweeper = monitor.NewSweeper(a.store, a.client, a.dispatcher, a.controller, monitor.SweepConfig{
		PanelDelay:        cfg.Monitoring.PanelDelay,
		UserCallInterval:  cfg.Enforcement.UserCallInterval,
		AutoDeleteExpired: cfg.Monitoring.AutoDeleteExpiredUsers,
		DedupeWarnings:    cfg.Monitoring.DedupeWarnings,
		Warnings:          warnings,
		Brackets:          cfg.Monitoring.WarningBrackets,
		Metrics:           a.metrics,
	})

	return a, nil
}

// Close releases the store and the lock backend.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// newDispatcher builds the notification channels. The log channel is always
// present so that deactivations leave a trace even with no transport
// configured.
func newDispatcher(cfg config.NotifyConfig, collector *metrics.Collector) (*notify.Dispatcher, error) {
	logCh := notify.NewLogChannel()
	owner := []notify.Channel{logCh}
	operator := []notify.Channel{logCh}

	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			APIURL:   cfg.Telegram.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram channel: %w", err)
		}
		owner = append(owner, tg)
		operator = append(operator, tg)
	}

	if cfg.Email.Enabled {
		em, err := notify.NewEmail(notify.EmailConfig{
			Addr:     cfg.Email.SMTPAddr,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create email channel: %w", err)
		}
		operator = append(operator, em)
	}

	return notify.NewDispatcher(notify.DispatcherConfig{
		OwnerChannels:    owner,
		OperatorChannels: operator,
		Operators:        cfg.Operators,
	}, collector), nil
}

func newLocker(ctx context.Context, cfg config.LockConfig) (enforcement.Locker, error) {
	switch cfg.Backend {
	case "", "memory":
		return enforcement.NewMemoryLocker(), nil
	case "redis":
		l, err := enforcement.NewRedisLocker(ctx, enforcement.RedisLockerConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect lock backend: %w", err)
		}
		return l, nil
	default:
		return nil, errors.New("unsupported lock backend: " + cfg.Backend)
	}
}

// retentionConfig maps the configured retention to the pruner's. A negative
// day count keeps records forever.
func retentionConfig(cfg config.RetentionConfig) *retention.Config {
	days := func(n int) int {
		if n < 0 {
			return 0
		}
		return n
	}
	rc := retention.DefaultConfig()
	rc.SampleDays = days(cfg.SampleDays)
	rc.LogDays = days(cfg.LogDays)
	rc.Schedule = cfg.Schedule
	return rc
}
