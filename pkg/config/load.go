package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WARDEN_"

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment overrides on top. A missing file is not an error: the service
// can be configured from the environment alone.
//
// The loading sequence is:
// 1. Load YAML from file (if present)
// 2. Apply default values
// 3. Apply legacy environment names (MARZBAN_URL, BOT_TOKEN, ...)
// 4. Apply WARDEN_SECTION_FIELD overrides
// 5. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	ApplyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return &cfg, nil
}

// envReader collects parse failures so a typo in one variable is reported
// instead of silently ignored.
type envReader struct {
	errs []FieldError
}

func (r *envReader) string(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) bool(name string, dst *bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.fail(name, "must be a boolean")
	}
}

func (r *envReader) boolPtr(name string, dst **bool) {
	if _, ok := os.LookupEnv(name); !ok {
		return
	}
	var b bool
	if *dst != nil {
		b = **dst
	}
	before := len(r.errs)
	r.bool(name, &b)
	if len(r.errs) == before {
		*dst = &b
	}
}

func (r *envReader) int(name string, dst *int) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(name, "must be an integer")
		return
	}
	*dst = i
}

// duration accepts a Go duration ("10m") or a bare number of seconds ("600").
func (r *envReader) duration(name string, dst *time.Duration) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		r.fail(name, "must be a duration or a number of seconds")
		return
	}
	*dst = d
}

func (r *envReader) int64List(name string, dst *[]int64) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	ids, err := parseIDList(v)
	if err != nil {
		r.fail(name, err.Error())
		return
	}
	*dst = ids
}

func (r *envReader) stringList(name string, dst *[]string) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (r *envReader) fail(name, msg string) {
	r.errs = append(r.errs, FieldError{Field: "env." + name, Message: msg})
}

func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func parseIDList(v string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// applyEnvOverrides applies legacy names first and WARDEN_* names second,
// so the prefixed form wins when both are set.
func applyEnvOverrides(cfg *Config) error {
	r := &envReader{}
	applyLegacyEnv(r, cfg)
	applyPrefixedEnv(r, cfg)
	if len(r.errs) > 0 {
		return ValidationError{Errors: r.errs}
	}
	return nil
}

// applyLegacyEnv reads the variable names used by existing deployments.
func applyLegacyEnv(r *envReader, cfg *Config) {
	r.string("MARZBAN_URL", &cfg.Marzban.URL)
	r.string("MARZBAN_USERNAME", &cfg.Marzban.Username)
	r.string("MARZBAN_PASSWORD", &cfg.Marzban.Password)
	r.duration("API_TIMEOUT", &cfg.Marzban.Timeout)
	r.int("MAX_RETRIES", &cfg.Marzban.MaxRetries)

	r.duration("MONITORING_INTERVAL", &cfg.Monitoring.Interval)
	r.bool("AUTO_DELETE_EXPIRED_USERS", &cfg.Monitoring.AutoDeleteExpiredUsers)

	r.string("DATABASE_PATH", &cfg.Storage.SQLite.Path)
	r.int64List("SUDO_ADMINS", &cfg.Notify.Operators)

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Notify.Telegram.BotToken = v
		cfg.Notify.Telegram.Enabled = true
	}
}

func applyPrefixedEnv(r *envReader, cfg *Config) {
	p := EnvPrefix

	// Marzban
	r.string(p+"MARZBAN_URL", &cfg.Marzban.URL)
	r.string(p+"MARZBAN_USERNAME", &cfg.Marzban.Username)
	r.string(p+"MARZBAN_PASSWORD", &cfg.Marzban.Password)
	r.duration(p+"MARZBAN_TIMEOUT", &cfg.Marzban.Timeout)
	r.int(p+"MARZBAN_MAX_RETRIES", &cfg.Marzban.MaxRetries)
	r.int(p+"MARZBAN_PAGE_SIZE", &cfg.Marzban.PageSize)

	// Monitoring
	r.duration(p+"MONITORING_INTERVAL", &cfg.Monitoring.Interval)
	r.boolPtr(p+"MONITORING_RUN_ON_START", &cfg.Monitoring.RunOnStart)
	r.bool(p+"MONITORING_DEDUPE_WARNINGS", &cfg.Monitoring.DedupeWarnings)
	r.bool(p+"MONITORING_AUTO_DELETE_EXPIRED_USERS", &cfg.Monitoring.AutoDeleteExpiredUsers)
	r.duration(p+"MONITORING_PANEL_DELAY", &cfg.Monitoring.PanelDelay)

	// Enforcement
	r.duration(p+"ENFORCEMENT_USER_CALL_INTERVAL", &cfg.Enforcement.UserCallInterval)
	r.duration(p+"ENFORCEMENT_RESTORE_PAUSE", &cfg.Enforcement.RestorePause)
	r.int(p+"ENFORCEMENT_PASSWORD_LENGTH", &cfg.Enforcement.PasswordLength)
	r.string(p+"ENFORCEMENT_LOCK_BACKEND", &cfg.Enforcement.Lock.Backend)
	r.string(p+"ENFORCEMENT_LOCK_REDIS_ADDR", &cfg.Enforcement.Lock.RedisAddr)
	r.string(p+"ENFORCEMENT_LOCK_REDIS_PASSWORD", &cfg.Enforcement.Lock.RedisPassword)
	r.int(p+"ENFORCEMENT_LOCK_REDIS_DB", &cfg.Enforcement.Lock.RedisDB)
	r.duration(p+"ENFORCEMENT_LOCK_TTL", &cfg.Enforcement.Lock.TTL)

	// Storage
	r.string(p+"STORAGE_BACKEND", &cfg.Storage.Backend)
	r.string(p+"STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	r.duration(p+"STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)
	r.boolPtr(p+"STORAGE_SQLITE_WAL_MODE", &cfg.Storage.SQLite.WALMode)
	r.int(p+"STORAGE_RETENTION_SAMPLE_DAYS", &cfg.Storage.Retention.SampleDays)
	r.int(p+"STORAGE_RETENTION_LOG_DAYS", &cfg.Storage.Retention.LogDays)
	r.string(p+"STORAGE_RETENTION_SCHEDULE", &cfg.Storage.Retention.Schedule)

	// Notify
	r.bool(p+"NOTIFY_TELEGRAM_ENABLED", &cfg.Notify.Telegram.Enabled)
	r.string(p+"NOTIFY_TELEGRAM_BOT_TOKEN", &cfg.Notify.Telegram.BotToken)
	r.string(p+"NOTIFY_TELEGRAM_API_URL", &cfg.Notify.Telegram.APIURL)
	r.int64List(p+"NOTIFY_OPERATORS", &cfg.Notify.Operators)
	r.bool(p+"NOTIFY_EMAIL_ENABLED", &cfg.Notify.Email.Enabled)
	r.string(p+"NOTIFY_EMAIL_SMTP_ADDR", &cfg.Notify.Email.SMTPAddr)
	r.string(p+"NOTIFY_EMAIL_USERNAME", &cfg.Notify.Email.Username)
	r.string(p+"NOTIFY_EMAIL_PASSWORD", &cfg.Notify.Email.Password)
	r.string(p+"NOTIFY_EMAIL_FROM", &cfg.Notify.Email.From)
	r.stringList(p+"NOTIFY_EMAIL_TO", &cfg.Notify.Email.To)

	// Server
	r.bool(p+"SERVER_ENABLED", &cfg.Server.Enabled)
	r.string(p+"SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	r.string(p+"SERVER_API_TOKEN", &cfg.Server.APIToken)
	r.int(p+"SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	r.duration(p+"SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Telemetry
	r.string(p+"TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	r.string(p+"TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	r.bool(p+"TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	r.boolPtr(p+"TELEMETRY_LOGGING_REDACT", &cfg.Telemetry.Logging.Redact)
	r.boolPtr(p+"TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	r.string(p+"TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	r.string(p+"SECRETS_DIR", &cfg.Secrets.Dir)
}
