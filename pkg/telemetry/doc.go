// Package telemetry groups the observability packages used by warden.
//
//   - logging: slog setup with credential redaction and sweep/panel context
//   - metrics: Prometheus collectors for sweeps, enforcement and panel API calls
//   - health: liveness and readiness checks for the operator API
package telemetry
