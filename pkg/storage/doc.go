// Package storage implements panels.Store.
//
// Two backends are provided:
//
//   - SQLiteStore: durable storage through sqlx on the pure-Go modernc
//     SQLite driver, for production
//   - MemoryStore: a mutex-guarded map, for tests and dry runs
//
// Both apply a panels.Update as one atomic write. In SQLite that is a single
// UPDATE statement whose conditional clauses (COALESCE for the original
// password, MAX for the historical peak) enforce the write-once and
// never-decrease rules inside the database.
//
// # Schema
//
// Timestamps are stored as unix seconds.
//
//	admin_panels   one row per delegated admin
//	usage_samples  append-only usage observations
//	audit_logs     append-only enforcement and quota audit trail
package storage
