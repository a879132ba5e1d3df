package limits

import (
	"testing"

	"resellerhq/warden/pkg/panels"
)

func TestWarningTracker_Filter(t *testing.T) {
	tr := NewWarningTracker()
	w := func(b float64) []panels.Warning {
		return []panels.Warning{{Resource: panels.ResourceUsers, Ratio: b, Bracket: b}}
	}

	steps := []struct {
		name     string
		warnings []panels.Warning
		want     int
	}{
		{"first warning", w(0.6), 1},
		{"same bracket", w(0.6), 0},
		{"higher bracket", w(0.8), 1},
		{"same again", w(0.8), 0},
		{"dropped below", nil, 0},
		{"climbs again", w(0.6), 1},
	}

	for _, s := range steps {
		got := tr.Filter(1, s.warnings)
		if len(got) != s.want {
			t.Errorf("%s: expected %d warnings, got %d", s.name, s.want, len(got))
		}
	}
}

func TestWarningTracker_Reset(t *testing.T) {
	tr := NewWarningTracker()
	ws := []panels.Warning{{Resource: panels.ResourceTime, Bracket: 0.7}}

	tr.Filter(5, ws)
	if got := tr.Filter(5, ws); len(got) != 0 {
		t.Fatalf("Expected suppression, got %+v", got)
	}

	tr.Reset(5)
	if got := tr.Filter(5, ws); len(got) != 1 {
		t.Errorf("Expected warning after reset, got %+v", got)
	}
}

func TestWarningTracker_PanelsAreIndependent(t *testing.T) {
	tr := NewWarningTracker()
	ws := []panels.Warning{{Resource: panels.ResourceTraffic, Bracket: 0.9}}

	if got := tr.Filter(1, ws); len(got) != 1 {
		t.Errorf("Expected panel 1 warning, got %d", len(got))
	}
	if got := tr.Filter(2, ws); len(got) != 1 {
		t.Errorf("Expected panel 2 warning, got %d", len(got))
	}
}

func TestWarningTracker_Retain(t *testing.T) {
	tr := NewWarningTracker()
	ws := []panels.Warning{{Resource: panels.ResourceUsers, Bracket: 0.8}}
	tr.Filter(1, ws)
	tr.Filter(2, ws)

	tr.Retain([]int64{2})

	if got := tr.Filter(1, ws); len(got) != 1 {
		t.Errorf("Expected dropped panel to warn again, got %d", len(got))
	}
	if got := tr.Filter(2, ws); len(got) != 0 {
		t.Errorf("Expected retained panel suppressed, got %d", len(got))
	}
}
