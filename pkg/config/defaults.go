package config

import "time"

// Default values for configuration fields.
const (
	// Marzban defaults
	DefaultMarzbanTimeout    = 30 * time.Second
	DefaultMarzbanMaxRetries = 3
	DefaultMarzbanPageSize   = 200

	// Monitoring defaults
	DefaultInterval   = 600 * time.Second
	DefaultRunOnStart = true
	DefaultPanelDelay = time.Second

	// Enforcement defaults
	DefaultUserCallInterval = 100 * time.Millisecond
	DefaultRestorePause     = 500 * time.Millisecond
	DefaultPasswordLength   = 10
	DefaultLockBackend      = "memory"
	DefaultLockTTL          = 5 * time.Minute

	// Storage defaults
	DefaultStorageBackend      = "sqlite"
	DefaultSQLitePath          = "warden.db"
	DefaultSQLiteBusyTimeout   = 5 * time.Second
	DefaultSQLiteWALMode       = true
	DefaultRetentionSampleDays = 90
	DefaultRetentionLogDays    = 365
	DefaultRetentionSchedule   = "0 3 * * *"

	// Notify defaults
	DefaultTelegramAPIURL = "https://api.telegram.org"

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8089"
	DefaultRateLimit       = 60
	DefaultShutdownTimeout = 15 * time.Second

	// Telemetry defaults
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultLogRedact      = true
	DefaultMetricsEnabled = true
	DefaultMetricsPath    = "/metrics"
)

// DefaultWarningBrackets is the only accepted bracket list.
var DefaultWarningBrackets = []float64{0.6, 0.7, 0.8, 0.9}

// ApplyDefaults fills every zero-valued field with its default. Fields that
// are already set are left alone.
func ApplyDefaults(cfg *Config) {
	m := &cfg.Marzban
	if m.Timeout == 0 {
		m.Timeout = DefaultMarzbanTimeout
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = DefaultMarzbanMaxRetries
	}
	if m.PageSize == 0 {
		m.PageSize = DefaultMarzbanPageSize
	}

	mon := &cfg.Monitoring
	if mon.Interval == 0 {
		mon.Interval = DefaultInterval
	}
	if mon.WarningBrackets == nil {
		mon.WarningBrackets = append([]float64(nil), DefaultWarningBrackets...)
	}
	if mon.PanelDelay == 0 {
		mon.PanelDelay = DefaultPanelDelay
	}

	enf := &cfg.Enforcement
	if enf.UserCallInterval == 0 {
		enf.UserCallInterval = DefaultUserCallInterval
	}
	if enf.RestorePause == 0 {
		enf.RestorePause = DefaultRestorePause
	}
	if enf.PasswordLength == 0 {
		enf.PasswordLength = DefaultPasswordLength
	}
	if enf.Lock.Backend == "" {
		enf.Lock.Backend = DefaultLockBackend
	}
	if enf.Lock.TTL == 0 {
		enf.Lock.TTL = DefaultLockTTL
	}

	st := &cfg.Storage
	if st.Backend == "" {
		st.Backend = DefaultStorageBackend
	}
	if st.SQLite.Path == "" {
		st.SQLite.Path = DefaultSQLitePath
	}
	if st.SQLite.BusyTimeout == 0 {
		st.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if st.Retention.SampleDays == 0 {
		st.Retention.SampleDays = DefaultRetentionSampleDays
	}
	if st.Retention.LogDays == 0 {
		st.Retention.LogDays = DefaultRetentionLogDays
	}
	if st.Retention.Schedule == "" {
		st.Retention.Schedule = DefaultRetentionSchedule
	}

	if cfg.Notify.Telegram.APIURL == "" {
		cfg.Notify.Telegram.APIURL = DefaultTelegramAPIURL
	}

	srv := &cfg.Server
	if srv.ListenAddress == "" {
		srv.ListenAddress = DefaultListenAddress
	}
	if srv.RateLimit == 0 {
		srv.RateLimit = DefaultRateLimit
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = DefaultShutdownTimeout
	}

	tel := &cfg.Telemetry
	if tel.Logging.Level == "" {
		tel.Logging.Level = DefaultLogLevel
	}
	if tel.Logging.Format == "" {
		tel.Logging.Format = DefaultLogFormat
	}
	if tel.Metrics.Path == "" {
		tel.Metrics.Path = DefaultMetricsPath
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
