// Package monitor runs the periodic limit sweep.
//
// A sweep walks every Active panel in id order. For each panel the Sampler
// reads live usage from the remote panel and raises the historical user
// peak, the limits.Evaluator compares the sample against the quotas, and
// the result is acted on:
//
//   - exceeded: the panel is deactivated
//   - warning: the owner is notified for each crossed bracket
//
// Panels are processed one at a time. A failure on one panel is logged and
// the sweep moves on. The Scheduler runs sweeps on a fixed interval with at
// most one sweep in flight.
package monitor
