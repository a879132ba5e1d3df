package storage

import (
	"fmt"

	"resellerhq/warden/pkg/panels"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the store selected by backend.
func Open(backend string, cfg SQLiteConfig) (panels.Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
