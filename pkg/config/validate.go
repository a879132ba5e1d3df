package config

import (
	"fmt"
	"math"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "marzban.url").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any rule fails. All field errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateMarzban(&cfg.Marzban)...)
	errs = append(errs, validateMonitoring(&cfg.Monitoring)...)
	errs = append(errs, validateEnforcement(&cfg.Enforcement)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateMarzban(cfg *MarzbanConfig) []FieldError {
	var errs []FieldError

	if cfg.URL == "" {
		errs = append(errs, FieldError{Field: "marzban.url", Message: "URL is required"})
	} else if u, err := url.Parse(cfg.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{Field: "marzban.url", Message: fmt.Sprintf("invalid URL %q: must be http(s)://host", cfg.URL)})
	}
	if cfg.Username == "" {
		errs = append(errs, FieldError{Field: "marzban.username", Message: "username is required"})
	}
	if cfg.Password == "" {
		errs = append(errs, FieldError{Field: "marzban.password", Message: "password is required"})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "marzban.timeout", Message: "must be positive"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "marzban.max_retries", Message: "must be non-negative"})
	}
	if cfg.PageSize <= 0 {
		errs = append(errs, FieldError{Field: "marzban.page_size", Message: "must be positive"})
	}

	return errs
}

func validateMonitoring(cfg *MonitoringConfig) []FieldError {
	var errs []FieldError

	if cfg.Interval <= 0 {
		errs = append(errs, FieldError{Field: "monitoring.interval", Message: "must be positive"})
	}
	if !sameBrackets(cfg.WarningBrackets, DefaultWarningBrackets) {
		errs = append(errs, FieldError{
			Field:   "monitoring.warning_brackets",
			Message: fmt.Sprintf("only %v is supported, got %v", DefaultWarningBrackets, cfg.WarningBrackets),
		})
	}
	if cfg.PanelDelay < 0 {
		errs = append(errs, FieldError{Field: "monitoring.panel_delay", Message: "must be non-negative"})
	}

	return errs
}

func sameBrackets(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func validateEnforcement(cfg *EnforcementConfig) []FieldError {
	var errs []FieldError

	if cfg.UserCallInterval < 0 {
		errs = append(errs, FieldError{Field: "enforcement.user_call_interval", Message: "must be non-negative"})
	}
	if cfg.RestorePause < 0 {
		errs = append(errs, FieldError{Field: "enforcement.restore_pause", Message: "must be non-negative"})
	}
	if cfg.PasswordLength < 8 || cfg.PasswordLength > 64 {
		errs = append(errs, FieldError{Field: "enforcement.password_length", Message: "must be between 8 and 64"})
	}

	switch cfg.Lock.Backend {
	case "memory":
	case "redis":
		if cfg.Lock.RedisAddr == "" {
			errs = append(errs, FieldError{Field: "enforcement.lock.redis_addr", Message: "required when backend is redis"})
		}
		if cfg.Lock.TTL <= 0 {
			errs = append(errs, FieldError{Field: "enforcement.lock.ttl", Message: "must be positive"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "enforcement.lock.backend",
			Message: fmt.Sprintf("invalid backend %q: must be one of [memory, redis]", cfg.Lock.Backend),
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "must be non-negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be one of [sqlite, memory]", cfg.Backend),
		})
	}

	if cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "storage.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateNotify(cfg *NotifyConfig) []FieldError {
	var errs []FieldError

	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken == "" {
			errs = append(errs, FieldError{Field: "notify.telegram.bot_token", Message: "required when telegram is enabled"})
		}
		if u, err := url.Parse(cfg.Telegram.APIURL); err != nil || u.Host == "" {
			errs = append(errs, FieldError{Field: "notify.telegram.api_url", Message: fmt.Sprintf("invalid URL %q", cfg.Telegram.APIURL)})
		}
	}

	if cfg.Email.Enabled {
		if cfg.Email.SMTPAddr == "" {
			errs = append(errs, FieldError{Field: "notify.email.smtp_addr", Message: "required when email is enabled"})
		} else if _, _, err := net.SplitHostPort(cfg.Email.SMTPAddr); err != nil {
			errs = append(errs, FieldError{Field: "notify.email.smtp_addr", Message: fmt.Sprintf("invalid address: %v", err)})
		}
		if _, err := mail.ParseAddress(cfg.Email.From); err != nil {
			errs = append(errs, FieldError{Field: "notify.email.from", Message: fmt.Sprintf("invalid address %q", cfg.Email.From)})
		}
		if len(cfg.Email.To) == 0 {
			errs = append(errs, FieldError{Field: "notify.email.to", Message: "at least one recipient is required"})
		}
		for i, to := range cfg.Email.To {
			if _, err := mail.ParseAddress(to); err != nil {
				errs = append(errs, FieldError{Field: fmt.Sprintf("notify.email.to[%d]", i), Message: fmt.Sprintf("invalid address %q", to)})
			}
		}
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, FieldError{Field: "server.rate_limit", Message: "must be non-negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q: must be one of [debug, info, warn, error]", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be one of [json, text]", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	return errs
}
