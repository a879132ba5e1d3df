// Package metrics provides Prometheus metrics for the warden engine.
//
// # Overview
//
// A single Collector owns every warden_* metric and registers them on its
// own registry, so tests can create as many collectors as they need. All
// recording methods are safe on a nil *Collector, which lets components
// treat metrics as optional.
//
// # Metrics
//
//   - warden_sweeps_total{result}
//   - warden_sweep_duration_seconds
//   - warden_sweep_skipped_total
//   - warden_panels_checked_total{outcome}
//   - warden_limit_ratio{panel,resource}
//   - warden_enforcements_total{action,result}
//   - warden_user_toggles_total{status,result}
//   - warden_marzban_requests_total{method,code}
//   - warden_retention_deleted_total{kind}
//   - warden_notifications_total{channel,result}
//
// # Usage
//
//	collector := metrics.NewCollector(nil)
//	collector.RecordSweep("ok", 3*time.Second)
//	http.Handle("/metrics", collector.Handler())
package metrics
