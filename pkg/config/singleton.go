package config

import (
	"fmt"
	"sync"
)

var (
	current   *Config
	currentMu sync.RWMutex
	initOnce  sync.Once
)

// Initialize loads configuration (with environment overrides) once and
// stores it as the process-wide configuration. Later calls are no-ops.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})
	return initErr
}

// GetConfig returns the process-wide configuration, or nil before Initialize.
func GetConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// SetConfig replaces the process-wide configuration. Tests and the reload
// path use it; everything else should go through Initialize.
func SetConfig(cfg *Config) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = cfg
}

// ReloadConfig re-reads path and swaps the process-wide configuration. On
// failure the previous configuration stays in place.
func ReloadConfig(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return cfg, nil
}

// MustGetConfig is GetConfig that panics before Initialize.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
