package limits

import (
	"testing"

	"resellerhq/warden/pkg/panels"
)

const (
	gb  = int64(1 << 30)
	day = int64(24 * 60 * 60)
)

func TestEvaluator_Bracket(t *testing.T) {
	ev := NewEvaluator(nil)

	tests := []struct {
		ratio float64
		want  float64
	}{
		{0, 0},
		{0.59, 0},
		{0.6, 0.6},
		{0.65, 0.6},
		{0.7, 0.7},
		{0.87, 0.8},
		{0.9, 0.9},
		{0.999, 0.9},
		{1.0, 0},
		{1.5, 0},
	}

	for _, tt := range tests {
		if got := ev.Bracket(tt.ratio); got != tt.want {
			t.Errorf("Bracket(%v): expected %v, got %v", tt.ratio, tt.want, got)
		}
	}
}

func TestEvaluator_ExceededIffAnyRatioAtLeastOne(t *testing.T) {
	ev := NewEvaluator(nil)
	q := Quotas{MaxUsers: 10, MaxTotalTraffic: 100, MaxTotalTime: 1000}

	tests := []struct {
		name  string
		usage Usage
		want  bool
	}{
		{"all low", Usage{PeakUsers: 1, TrafficUsed: 1, ElapsedSeconds: 1}, false},
		{"users at limit", Usage{PeakUsers: 10}, true},
		{"traffic over", Usage{TrafficUsed: 101}, true},
		{"time at limit", Usage{ElapsedSeconds: 1000}, true},
		{"just below everywhere", Usage{PeakUsers: 9, TrafficUsed: 99, ElapsedSeconds: 999}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ev.Evaluate(1, q, tt.usage)
			if res.Exceeded != tt.want {
				t.Errorf("Expected exceeded=%v, got %v (checks %+v)", tt.want, res.Exceeded, res.Checks)
			}

			anyOver := false
			for _, c := range res.Checks {
				if c.Ratio >= 1.0 {
					anyOver = true
				}
			}
			if res.Exceeded != anyOver {
				t.Errorf("Exceeded flag %v disagrees with ratios %+v", res.Exceeded, res.Checks)
			}
			if res.Exceeded && res.Warning {
				t.Error("Expected no warning when exceeded")
			}
		})
	}
}

func TestEvaluator_ZeroQuotaDisablesDimension(t *testing.T) {
	ev := NewEvaluator(nil)
	res := ev.Evaluate(1, Quotas{}, Usage{PeakUsers: 1000, TrafficUsed: 1000, ElapsedSeconds: 1000})

	if res.Exceeded || res.Warning {
		t.Errorf("Expected no flags with zero quotas, got %+v", res)
	}
	for _, c := range res.Checks {
		if c.Ratio != 0 {
			t.Errorf("Expected ratio 0 for %s, got %v", c.Resource, c.Ratio)
		}
	}
}

func TestEvaluator_WarningScenario(t *testing.T) {
	ev := NewEvaluator(nil)
	q := Quotas{MaxUsers: 10, MaxTotalTraffic: 100 * gb, MaxTotalTime: 30 * day}
	u := Usage{PeakUsers: 9, TrafficUsed: 50 * gb, ElapsedSeconds: 10 * day}

	res := ev.Evaluate(7, q, u)

	if res.Exceeded {
		t.Fatal("Expected not exceeded")
	}
	if !res.Warning {
		t.Fatal("Expected warning")
	}

	warnings := res.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d: %+v", len(warnings), warnings)
	}
	if warnings[0].Resource != panels.ResourceUsers {
		t.Errorf("Expected users warning, got %s", warnings[0].Resource)
	}
	if warnings[0].Bracket != 0.9 {
		t.Errorf("Expected bracket 0.9, got %v", warnings[0].Bracket)
	}
	if got := res.Ratio(panels.ResourceTraffic); got != 0.5 {
		t.Errorf("Expected traffic ratio 0.5, got %v", got)
	}
}

func TestEvaluator_TimeExceededReason(t *testing.T) {
	ev := NewEvaluator(nil)
	q := Quotas{MaxUsers: 10, MaxTotalTraffic: 100 * gb, MaxTotalTime: 30 * day}

	res := ev.Evaluate(1, q, Usage{PeakUsers: 1, TrafficUsed: gb, ElapsedSeconds: 31 * day})

	if !res.Exceeded {
		t.Fatal("Expected exceeded")
	}
	if res.Reason() != panels.ReasonTimeLimit {
		t.Errorf("Expected reason %q, got %q", panels.ReasonTimeLimit, res.Reason())
	}
	if w := res.Warnings(); len(w) != 0 {
		t.Errorf("Expected no warnings when exceeded, got %+v", w)
	}
}

func TestEvaluator_MultipleReasons(t *testing.T) {
	ev := NewEvaluator(nil)
	res := ev.Evaluate(1, Quotas{MaxUsers: 1, MaxTotalTraffic: 1}, Usage{PeakUsers: 2, TrafficUsed: 2})

	want := panels.ReasonUsersLimit + ", " + panels.ReasonTrafficLimit
	if res.Reason() != want {
		t.Errorf("Expected reason %q, got %q", want, res.Reason())
	}
}

func TestNewEvaluator_SortsBrackets(t *testing.T) {
	ev := NewEvaluator([]float64{0.9, 0.6, 0.8, 0.7})
	got := ev.Brackets()
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("Expected ascending brackets, got %v", got)
		}
	}
	if ev.Bracket(0.85) != 0.8 {
		t.Errorf("Expected 0.8, got %v", ev.Bracket(0.85))
	}
}
