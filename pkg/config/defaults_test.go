package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"marzban timeout", cfg.Marzban.Timeout, 30 * time.Second},
		{"marzban page size", cfg.Marzban.PageSize, 200},
		{"interval", cfg.Monitoring.Interval, 600 * time.Second},
		{"run on start", cfg.Monitoring.ShouldRunOnStart(), true},
		{"panel delay", cfg.Monitoring.PanelDelay, time.Second},
		{"dedupe", cfg.Monitoring.DedupeWarnings, false},
		{"auto delete", cfg.Monitoring.AutoDeleteExpiredUsers, false},
		{"user call interval", cfg.Enforcement.UserCallInterval, 100 * time.Millisecond},
		{"restore pause", cfg.Enforcement.RestorePause, 500 * time.Millisecond},
		{"password length", cfg.Enforcement.PasswordLength, 10},
		{"lock backend", cfg.Enforcement.Lock.Backend, "memory"},
		{"storage backend", cfg.Storage.Backend, "sqlite"},
		{"wal", cfg.Storage.SQLite.WALEnabled(), true},
		{"sample days", cfg.Storage.Retention.SampleDays, 90},
		{"log days", cfg.Storage.Retention.LogDays, 365},
		{"listen", cfg.Server.ListenAddress, "127.0.0.1:8089"},
		{"rate limit", cfg.Server.RateLimit, 60},
		{"log level", cfg.Telemetry.Logging.Level, "info"},
		{"redact", cfg.Telemetry.Logging.RedactEnabled(), true},
		{"metrics", cfg.Telemetry.Metrics.IsEnabled(), true},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}

	if len(cfg.Monitoring.WarningBrackets) != 4 || cfg.Monitoring.WarningBrackets[0] != 0.6 {
		t.Errorf("Expected default brackets, got %v", cfg.Monitoring.WarningBrackets)
	}
}

func TestApplyDefaults_KeepsSetValues(t *testing.T) {
	off := false
	cfg := &Config{
		Monitoring: MonitoringConfig{Interval: time.Minute, RunOnStart: &off},
		Storage:    StorageConfig{Backend: "memory"},
	}
	ApplyDefaults(cfg)

	if cfg.Monitoring.Interval != time.Minute {
		t.Errorf("Expected interval 1m, got %v", cfg.Monitoring.Interval)
	}
	if cfg.Monitoring.ShouldRunOnStart() {
		t.Error("Expected run_on_start to stay false")
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Expected backend memory, got %q", cfg.Storage.Backend)
	}
}

func TestApplyDefaults_BracketsNotShared(t *testing.T) {
	cfg := Default()
	cfg.Monitoring.WarningBrackets[0] = 0.1
	if DefaultWarningBrackets[0] != 0.6 {
		t.Error("Expected DefaultWarningBrackets to be unaffected")
	}
}
