package config

import "time"

// Config is the root configuration structure for warden.
type Config struct {
	// Marzban holds the sudo credentials and client settings for the panel API.
	Marzban MarzbanConfig `yaml:"marzban"`

	// Monitoring controls the periodic sweep.
	Monitoring MonitoringConfig `yaml:"monitoring"`

	// Enforcement controls deactivation and reactivation.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Storage selects and configures the admin store.
	Storage StorageConfig `yaml:"storage"`

	// Notify configures owner and operator notifications.
	Notify NotifyConfig `yaml:"notify"`

	// Server configures the operator HTTP API.
	Server ServerConfig `yaml:"server"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures where ${secret:name} references are looked up.
	Secrets SecretsConfig `yaml:"secrets"`
}

// MarzbanConfig configures the Marzban panel client.
type MarzbanConfig struct {
	// URL is the panel root, e.g. "https://panel.example.com:8000".
	URL string `yaml:"url"`

	// Username and Password are the sudo admin credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Timeout bounds each HTTP request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of retries for network errors and 5xx responses.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// PageSize is the page length used when listing users.
	// Default: 200
	PageSize int `yaml:"page_size"`
}

// MonitoringConfig controls the sweep schedule and its behaviour.
type MonitoringConfig struct {
	// Interval is the time between sweeps.
	// Default: 600s
	Interval time.Duration `yaml:"interval"`

	// RunOnStart runs one sweep immediately when the scheduler starts.
	// Default: true
	RunOnStart *bool `yaml:"run_on_start"`

	// WarningBrackets are the warning thresholds. Only the fixed list
	// [0.6, 0.7, 0.8, 0.9] is accepted.
	WarningBrackets []float64 `yaml:"warning_brackets"`

	// DedupeWarnings suppresses a warning until the bracket rises.
	// Default: false
	DedupeWarnings bool `yaml:"dedupe_warnings"`

	// AutoDeleteExpiredUsers runs the expired-user cleanup before each sweep.
	// Default: false
	AutoDeleteExpiredUsers bool `yaml:"auto_delete_expired_users"`

	// PanelDelay is the pause between panels in one sweep.
	// Default: 1s
	PanelDelay time.Duration `yaml:"panel_delay"`
}

// ShouldRunOnStart reports the effective run_on_start value.
func (m MonitoringConfig) ShouldRunOnStart() bool {
	return boolValue(m.RunOnStart, DefaultRunOnStart)
}

// EnforcementConfig controls the enforcement controller.
type EnforcementConfig struct {
	// UserCallInterval is the minimum gap between per-user panel API calls.
	// Default: 100ms
	UserCallInterval time.Duration `yaml:"user_call_interval"`

	// RestorePause is the pause after restoring a password before users are
	// re-enabled.
	// Default: 500ms
	RestorePause time.Duration `yaml:"restore_pause"`

	// PasswordLength is the number of hex characters in a rotated password.
	// Default: 10
	PasswordLength int `yaml:"password_length"`

	// Lock selects the per-panel lock backend.
	Lock LockConfig `yaml:"lock"`
}

// LockConfig configures the per-panel lock.
type LockConfig struct {
	// Backend is "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// RedisAddr is the Redis address when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`

	// RedisPassword and RedisDB select the Redis database.
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// TTL bounds how long a crashed holder keeps a Redis lock.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig selects the admin store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`

	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "warden.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables the write-ahead log.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`
}

// RetentionConfig configures pruning of old samples and log entries.
type RetentionConfig struct {
	// SampleDays is how long usage samples are kept. A negative value keeps
	// them forever.
	// Default: 90
	SampleDays int `yaml:"sample_days"`

	// LogDays is how long log entries are kept. A negative value keeps them
	// forever.
	// Default: 365
	LogDays int `yaml:"log_days"`

	// Schedule is a cron expression. Empty disables pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// NotifyConfig configures the notification channels.
type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`

	// Operators are the Telegram chat ids that receive operator notifications.
	Operators []int64 `yaml:"operators"`

	Email EmailConfig `yaml:"email"`
}

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`

	// APIURL overrides the Bot API root.
	// Default: "https://api.telegram.org"
	APIURL string `yaml:"api_url"`
}

// EmailConfig configures the SMTP operator channel.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPAddr string   `yaml:"smtp_addr"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	// Enabled starts the API in "warden run".
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the "host:port" to listen on.
	// Default: "127.0.0.1:8089"
	ListenAddress string `yaml:"listen_address"`

	// APIToken, when set, is required as a bearer token on every API call.
	APIToken string `yaml:"api_token"`

	// RateLimit is the number of requests allowed per IP per minute.
	// Default: 60
	RateLimit int `yaml:"rate_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SecretsConfig configures secret resolution. WARDEN_SECRET_<NAME>
// environment variables are always consulted first.
type SecretsConfig struct {
	// Dir holds one file per secret, e.g. a mounted Kubernetes secret.
	// Empty disables file lookups.
	Dir string `yaml:"dir"`
}

// TelemetryConfig configures logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource adds file:line to each record.
	AddSource bool `yaml:"add_source"`

	// Redact masks credentials in log attributes.
	// Default: true
	Redact *bool `yaml:"redact"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled exposes metrics on the API server.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// boolValue returns *b, or def when b is nil.
func boolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// WALEnabled reports the effective wal_mode value.
func (s SQLiteConfig) WALEnabled() bool { return boolValue(s.WALMode, DefaultSQLiteWALMode) }

// RedactEnabled reports the effective redact value.
func (l LoggingConfig) RedactEnabled() bool { return boolValue(l.Redact, DefaultLogRedact) }

// IsEnabled reports the effective metrics.enabled value.
func (m MetricsConfig) IsEnabled() bool { return boolValue(m.Enabled, DefaultMetricsEnabled) }
