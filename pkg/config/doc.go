// Package config provides configuration management for warden.
//
// Configuration is read from a YAML file, completed with defaults and then
// overridden from the environment:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("warden.yaml")
//
// # Environment Variable Overrides
//
// Variables follow the naming convention WARDEN_SECTION_FIELD, for example:
//
//   - WARDEN_MARZBAN_URL overrides marzban.url
//   - WARDEN_MONITORING_INTERVAL overrides monitoring.interval
//   - WARDEN_NOTIFY_OPERATORS overrides notify.operators (comma separated)
//
// The names used by earlier deployments are also read: MARZBAN_URL,
// MARZBAN_USERNAME, MARZBAN_PASSWORD, API_TIMEOUT, MAX_RETRIES,
// MONITORING_INTERVAL, AUTO_DELETE_EXPIRED_USERS, DATABASE_PATH, SUDO_ADMINS
// and BOT_TOKEN. Durations given as bare integers are seconds. When both
// forms are set the WARDEN_ form wins.
//
// # Configuration Precedence
//
//  1. Values from YAML file
//  2. Default values for anything left unset (defaults.go)
//  3. Legacy environment names
//  4. WARDEN_* environment names
//  5. Validation (fails fast with every field error at once)
//
// # Hot Reload
//
// Watcher reloads the file when it changes. Only the log level and the
// operator list are applied at runtime; RestartRequired reports the sections
// whose changes need a restart.
package config
