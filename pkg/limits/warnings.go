package limits

import (
	"sync"

	"resellerhq/warden/pkg/panels"
)

// WarningTracker suppresses warnings for brackets already reported. A
// warning passes when its bracket is higher than the last one sent for the
// same panel and resource. When a resource drops out of every bracket its
// memory is cleared, so a later climb is reported again.
type WarningTracker struct {
	mu   sync.Mutex
	last map[int64]map[panels.Resource]float64
}

// NewWarningTracker creates an empty tracker.
func NewWarningTracker() *WarningTracker {
	return &WarningTracker{last: make(map[int64]map[panels.Resource]float64)}
}

// Filter returns the subset of warnings that should be sent for panelID
// and records them as sent.
func (t *WarningTracker) Filter(panelID int64, warnings []panels.Warning) []panels.Warning {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := t.last[panelID]
	if seen == nil {
		seen = make(map[panels.Resource]float64)
		t.last[panelID] = seen
	}

	current := make(map[panels.Resource]bool, len(warnings))
	var out []panels.Warning
	for _, w := range warnings {
		current[w.Resource] = true
		if w.Bracket > seen[w.Resource] {
			out = append(out, w)
		}
		seen[w.Resource] = w.Bracket
	}
	for r := range seen {
		if !current[r] {
			delete(seen, r)
		}
	}
	return out
}

// Reset forgets every warning sent for panelID.
func (t *WarningTracker) Reset(panelID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, panelID)
}

// Retain forgets every panel not in ids.
func (t *WarningTracker) Retain(ids []int64) {
	keep := make(map[int64]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.last {
		if !keep[id] {
			delete(t.last, id)
		}
	}
}
