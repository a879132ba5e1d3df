package limits

import (
	"sort"
	"strings"

	"resellerhq/warden/pkg/panels"
)

// DefaultBrackets are the warning thresholds.
var DefaultBrackets = []float64{0.6, 0.7, 0.8, 0.9}

// Quotas are the limits of one panel. A value <= 0 disables the dimension.
type Quotas struct {
	MaxUsers        int64
	MaxTotalTraffic int64
	MaxTotalTime    int64
}

// QuotasOf extracts the quotas from a panel record.
func QuotasOf(p *panels.AdminPanel) Quotas {
	return Quotas{
		MaxUsers:        p.MaxUsers,
		MaxTotalTraffic: p.MaxTotalTraffic,
		MaxTotalTime:    p.MaxTotalTime,
	}
}

// Usage is the observed consumption to compare against Quotas.
type Usage struct {
	// PeakUsers is the historical peak, not the live count.
	PeakUsers      int64
	TrafficUsed    int64
	ElapsedSeconds int64
}

// ResourceCheck is the evaluation of one quota dimension.
type ResourceCheck struct {
	Resource panels.Resource `json:"resource"`
	Used     int64           `json:"used"`
	Limit    int64           `json:"limit"`
	Ratio    float64         `json:"ratio"`
	Exceeded bool            `json:"exceeded"`

	// Bracket is the highest bracket at or below Ratio, or 0 when the ratio
	// is below every bracket or the resource is exceeded.
	Bracket float64 `json:"bracket,omitempty"`
}

// CheckResult is the outcome of evaluating one panel. It is never persisted.
type CheckResult struct {
	PanelID  int64           `json:"panel_id"`
	Checks   []ResourceCheck `json:"checks"`
	Exceeded bool            `json:"exceeded"`
	Warning  bool            `json:"warning"`
}

// Check returns the evaluation of one resource.
func (r CheckResult) Check(res panels.Resource) ResourceCheck {
	for _, c := range r.Checks {
		if c.Resource == res {
			return c
		}
	}
	return ResourceCheck{Resource: res}
}

// Ratio returns the ratio of one resource.
func (r CheckResult) Ratio(res panels.Resource) float64 {
	return r.Check(res).Ratio
}

// ExceededResources lists the resources at or above their quota.
func (r CheckResult) ExceededResources() []panels.Resource {
	var out []panels.Resource
	for _, c := range r.Checks {
		if c.Exceeded {
			out = append(out, c.Resource)
		}
	}
	return out
}

// Warnings lists the bracket crossings to report. It is empty whenever any
// resource is exceeded.
func (r CheckResult) Warnings() []panels.Warning {
	if r.Exceeded {
		return nil
	}
	var out []panels.Warning
	for _, c := range r.Checks {
		if c.Bracket > 0 {
			out = append(out, panels.Warning{Resource: c.Resource, Ratio: c.Ratio, Bracket: c.Bracket})
		}
	}
	return out
}

// Reason describes why the panel is exceeded, e.g. "time limit reached".
func (r CheckResult) Reason() string {
	var reasons []string
	for _, res := range r.ExceededResources() {
		reasons = append(reasons, ReasonFor(res))
	}
	return strings.Join(reasons, ", ")
}

// ReasonFor returns the deactivation reason for an exceeded resource.
func ReasonFor(res panels.Resource) string {
	switch res {
	case panels.ResourceUsers:
		return panels.ReasonUsersLimit
	case panels.ResourceTraffic:
		return panels.ReasonTrafficLimit
	case panels.ResourceTime:
		return panels.ReasonTimeLimit
	default:
		return string(res) + " limit reached"
	}
}

// Evaluator computes CheckResults. It is a pure function of its inputs and
// safe for concurrent use.
type Evaluator struct {
	brackets []float64
}

// NewEvaluator creates an evaluator. A nil or empty bracket list selects
// DefaultBrackets.
func NewEvaluator(brackets []float64) *Evaluator {
	if len(brackets) == 0 {
		brackets = DefaultBrackets
	}
	b := append([]float64(nil), brackets...)
	sort.Float64s(b)
	return &Evaluator{brackets: b}
}

// Brackets returns the thresholds in ascending order.
func (e *Evaluator) Brackets() []float64 {
	return append([]float64(nil), e.brackets...)
}

// Evaluate compares usage against quotas.
func (e *Evaluator) Evaluate(panelID int64, q Quotas, u Usage) CheckResult {
	res := CheckResult{PanelID: panelID}

	add := func(r panels.Resource, used, limit int64) {
		c := ResourceCheck{
			Resource: r,
			Used:     used,
			Limit:    limit,
			Ratio:    Ratio(used, limit),
		}
		c.Exceeded = c.Ratio >= 1.0
		if !c.Exceeded {
			c.Bracket = e.Bracket(c.Ratio)
		}
		res.Checks = append(res.Checks, c)
		if c.Exceeded {
			res.Exceeded = true
		}
	}

	add(panels.ResourceUsers, u.PeakUsers, q.MaxUsers)
	add(panels.ResourceTraffic, u.TrafficUsed, q.MaxTotalTraffic)
	add(panels.ResourceTime, u.ElapsedSeconds, q.MaxTotalTime)

	if !res.Exceeded {
		for _, c := range res.Checks {
			if c.Bracket > 0 {
				res.Warning = true
				break
			}
		}
	}
	return res
}

// Bracket returns the highest bracket at or below ratio. Ratios >= 1.0 and
// ratios below the lowest bracket return 0.
func (e *Evaluator) Bracket(ratio float64) float64 {
	if ratio >= 1.0 {
		return 0
	}
	var hit float64
	for _, b := range e.brackets {
		if ratio >= b {
			hit = b
		}
	}
	return hit
}

// Ratio returns used/limit, or 0 when limit <= 0.
func Ratio(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit)
}
