package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// DefaultSendTimeout bounds a single channel send.
const DefaultSendTimeout = 15 * time.Second

// Dispatcher fans notifications out to channels. Owner channels receive
// messages addressed to a panel owner, operator channels receive messages
// addressed to the operator list.
type Dispatcher struct {
	owner     []Channel
	operator  []Channel
	operators atomic.Pointer[[]int64]
	timeout   time.Duration
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	OwnerChannels    []Channel
	OperatorChannels []Channel
	Operators        []int64
	SendTimeout      time.Duration
}

// NewDispatcher creates a dispatcher. collector may be nil.
func NewDispatcher(cfg DispatcherConfig, collector *metrics.Collector) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	d := &Dispatcher{
		owner:    cfg.OwnerChannels,
		operator: cfg.OperatorChannels,
		timeout:  cfg.SendTimeout,
		metrics:  collector,
		logger:   slog.Default().With("component", "notify"),
	}
	d.SetOperators(cfg.Operators)
	return d
}

// SetOperators replaces the operator chat ids. Safe for concurrent use.
func (d *Dispatcher) SetOperators(ids []int64) {
	cp := slices.Clone(ids)
	d.operators.Store(&cp)
}

// Operators returns the current operator chat ids.
func (d *Dispatcher) Operators() []int64 {
	return slices.Clone(*d.operators.Load())
}

func (d *Dispatcher) NotifyWarning(ctx context.Context, ownerID int64, w panels.Warning) {
	msg := warningMessage(w)
	msg.Recipients = []int64{ownerID}
	d.dispatch(ctx, d.owner, msg, "warning")
}

func (d *Dispatcher) NotifyDeactivated(ctx context.Context, ownerID int64, dd panels.Deactivation) {
	msg := ownerDeactivatedMessage(dd)
	msg.Recipients = []int64{ownerID}
	d.dispatch(ctx, d.owner, msg, "deactivated")
	d.NotifyOperators(ctx, operatorDeactivatedMessage(dd))
}

func (d *Dispatcher) NotifyReactivated(ctx context.Context, ownerID int64, r panels.Reactivation) {
	msg := ownerReactivatedMessage(r)
	msg.Recipients = []int64{ownerID}
	d.dispatch(ctx, d.owner, msg, "reactivated")
	d.NotifyOperators(ctx, operatorReactivatedMessage(r))
}

func (d *Dispatcher) NotifyOperators(ctx context.Context, message string) {
	msg := Message{
		Recipients: d.Operators(),
		Subject:    "Warden operator notice",
		Text:       message,
	}
	d.dispatch(ctx, d.operator, msg, "operator")
}

func (d *Dispatcher) dispatch(ctx context.Context, channels []Channel, msg Message, kind string) {
	for _, ch := range channels {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		err := ch.Send(sctx, msg)
		cancel()

		d.metrics.RecordNotification(ch.Name(), err == nil)
		if err != nil {
			d.logger.WarnContext(ctx, "notification failed",
				"channel", ch.Name(),
				"kind", kind,
				"recipients", len(msg.Recipients),
				"error", err,
			)
		}
	}
}

var _ panels.Notifier = (*Dispatcher)(nil)
