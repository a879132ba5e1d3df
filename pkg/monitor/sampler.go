package monitor

import (
	"context"

	"github.com/coder/quartz"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/panels"
)

// Sampler takes usage samples of panels.
type Sampler struct {
	store  panels.Store
	client panels.Client
	clock  quartz.Clock
}

// NewSampler creates a sampler.
func NewSampler(store panels.Store, client panels.Client, clock quartz.Clock) *Sampler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Sampler{store: store, client: client, clock: clock}
}

// Sample reads live usage for p, persists the sample and the usage
// baseline, and raises p's historical peak in place.
//
// A remote failure returns a *panels.TransientAPIError and nothing is
// written. A store failure returns a *panels.PersistenceError.
func (s *Sampler) Sample(ctx context.Context, p *panels.AdminPanel) (panels.UsageSample, error) {
	stats, err := s.client.GetStats(ctx, p.Username)
	if err != nil {
		return panels.UsageSample{}, err
	}

	now := s.clock.Now()
	elapsed := int64(p.Elapsed(now).Seconds())

	upd := panels.NewUpdate().SetCurrentUsage(stats.TotalUsers, stats.TrafficUsed, elapsed)
	if stats.TotalUsers > p.UsersHistoricalPeak {
		upd.RaisePeak(stats.TotalUsers)
	}
	if err := s.store.UpdatePanel(ctx, p.ID, upd); err != nil {
		return panels.UsageSample{}, &panels.PersistenceError{Op: "update_usage", PanelID: p.ID, Err: err}
	}
	upd.Apply(p, now)

	sample := panels.UsageSample{
		PanelID:        p.ID,
		Timestamp:      now,
		Users:          stats.TotalUsers,
		PeakUsers:      p.UsersHistoricalPeak,
		ActiveUsers:    stats.ActiveUsers,
		ElapsedSeconds: elapsed,
		TrafficUsed:    stats.TrafficUsed,
	}
	if err := s.store.AppendSample(ctx, sample); err != nil {
		return sample, &panels.PersistenceError{Op: "append_sample", PanelID: p.ID, Err: err}
	}
	return sample, nil
}

// UsageOf converts a sample into evaluator input.
func UsageOf(s panels.UsageSample) limits.Usage {
	return limits.Usage{
		PeakUsers:      s.PeakUsers,
		TrafficUsed:    s.TrafficUsed,
		ElapsedSeconds: s.ElapsedSeconds,
	}
}
