// Package limits evaluates admin panel usage against its quotas.
//
// # Overview
//
// Each panel has three quota dimensions: user count, traffic and validity
// time. The Evaluator turns a usage observation into one ratio per
// dimension and derives two flags from them:
//
//   - exceeded: at least one ratio is >= 1.0
//   - warning: nothing is exceeded and at least one ratio falls in a bracket
//
// Brackets are the fixed thresholds 0.6, 0.7, 0.8 and 0.9. For each
// resource the highest bracket at or below its ratio is reported, so a
// ratio of 0.87 reports 0.8.
//
// # Usage
//
//	ev := limits.NewEvaluator(nil)
//	res := ev.Evaluate(p.ID, limits.QuotasOf(p), limits.Usage{
//	    PeakUsers:      p.UsersHistoricalPeak,
//	    TrafficUsed:    stats.TrafficUsed,
//	    ElapsedSeconds: elapsed,
//	})
//	if res.Exceeded {
//	    controller.Deactivate(ctx, p.ID, res.Reason())
//	}
//
// The evaluator keeps no state between calls. Warnings are re-sent on every
// sweep unless a WarningTracker is placed in front of the notifier.
//
// # Sub-packages
//
//   - ratelimit: token bucket throttle for bulk per-user calls
//   - enforcement: deactivation and reactivation of panels
package limits
