package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus collectors for the engine.
type Collector struct {
	registry *prometheus.Registry

	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepSkipped  prometheus.Counter

	panelsChecked *prometheus.CounterVec
	limitRatio    *prometheus.GaugeVec

	enforcements *prometheus.CounterVec
	userToggles  *prometheus.CounterVec

	marzbanRequests *prometheus.CounterVec
	retention       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewCollector creates a collector registered on registry. A nil registry
// gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	f := promauto.With(registry)

	return &Collector{
		registry: registry,

		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_sweeps_total",
			Help: "Completed monitoring sweeps by result",
		}, []string{"result"}),

		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_sweep_duration_seconds",
			Help:    "Duration of monitoring sweeps",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		sweepSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_sweep_skipped_total",
			Help: "Ticks skipped because a sweep was still running",
		}),

		panelsChecked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_panels_checked_total",
			Help: "Panels processed by sweeps, by outcome",
		}, []string{"outcome"}),

		limitRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_limit_ratio",
			Help: "Latest usage ratio per panel and resource (1.0 = quota)",
		}, []string{"panel", "resource"}),

		enforcements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_enforcements_total",
			Help: "Deactivations and reactivations by result",
		}, []string{"action", "result"}),

		userToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_user_toggles_total",
			Help: "Per-user enable/disable calls by result",
		}, []string{"status", "result"}),

		marzbanRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_marzban_requests_total",
			Help: "Requests sent to the Marzban API by method and status code",
		}, []string{"method", "code"}),

		retention: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_retention_deleted_total",
			Help: "Rows removed by the retention pruner",
		}, []string{"kind"}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_notifications_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordSweep records a finished sweep.
func (c *Collector) RecordSweep(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.sweeps.WithLabelValues(result).Inc()
	c.sweepDuration.Observe(d.Seconds())
}

// RecordSweepSkipped records a tick dropped by single-flight.
func (c *Collector) RecordSweepSkipped() {
	if c == nil {
		return
	}
	c.sweepSkipped.Inc()
}

// RecordPanelChecked records the outcome of one panel in a sweep.
func (c *Collector) RecordPanelChecked(outcome string) {
	if c == nil {
		return
	}
	c.panelsChecked.WithLabelValues(outcome).Inc()
}

// SetLimitRatio publishes the latest ratio for a panel resource.
func (c *Collector) SetLimitRatio(panelID int64, resource string, ratio float64) {
	if c == nil {
		return
	}
	c.limitRatio.WithLabelValues(strconv.FormatInt(panelID, 10), resource).Set(ratio)
}

// RecordEnforcement records a deactivation or reactivation.
func (c *Collector) RecordEnforcement(action, result string) {
	if c == nil {
		return
	}
	c.enforcements.WithLabelValues(action, result).Inc()
}

// RecordUserToggle records one per-user status call.
func (c *Collector) RecordUserToggle(status string, ok bool) {
	if c == nil {
		return
	}
	c.userToggles.WithLabelValues(status, result(ok)).Inc()
}

// RecordMarzbanRequest records one HTTP exchange. code is 0 for transport
// errors.
func (c *Collector) RecordMarzbanRequest(method string, code int) {
	if c == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.marzbanRequests.WithLabelValues(method, label).Inc()
}

// RecordRetention records rows removed by the pruner.
func (c *Collector) RecordRetention(kind string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.retention.WithLabelValues(kind).Add(float64(n))
}

// RecordNotification records one delivery attempt.
func (c *Collector) RecordNotification(channel string, ok bool) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(channel, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
