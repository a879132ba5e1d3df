// Package cli holds helpers shared by the warden commands: signal-aware
// contexts, text and JSON output for panels, checks and sweep reports, and
// exit-code mapping for command errors.
package cli
