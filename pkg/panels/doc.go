// Package panels defines the domain model shared by the limit-monitoring
// engine: admin panels resold to resellers, the usage samples taken from
// them, the audit log, and the collaborators the engine consumes.
//
// # Collaborators
//
// The engine never talks to a concrete backend directly. It depends on three
// interfaces declared here:
//
//   - Client: the remote Marzban panel (stats, password rotation, user toggles)
//   - Store: persistence for panels, samples and log entries
//   - Notifier: fire-and-forget delivery to panel owners and operators
//
// # Partial updates
//
// Panel records are never written back whole. Callers describe the fields
// they intend to change with an Update, and the Store applies exactly those
// fields in a single atomic write:
//
//	upd := panels.NewUpdate().
//	    CaptureOriginalPassword(p.Password).
//	    SetStatus(panels.StatusDeactivated, reason, now)
//	err := store.UpdatePanel(ctx, p.ID, upd)
//
// CaptureOriginalPassword and RaisePeak are conditional writes, so the
// "set at most once" and "never decreases" rules hold at the storage layer
// regardless of what the caller read earlier.
package panels
