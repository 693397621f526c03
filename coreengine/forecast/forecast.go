// Package forecast projects how delivery risk evolves over the coming months
// for a scenario's constraints.
package forecast

import (
	"fmt"
	"math"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

const (
	// DefaultMonths is the forecast horizon.
	DefaultMonths = 6
	// DefaultBaseRisk is used when no current risk is known.
	DefaultBaseRisk = 20.0
	// CriticalRisk is the score above which a month is critical.
	CriticalRisk = 80
)

// Month is one projected month.
type Month struct {
	Label               string `json:"label"`
	Index               int    `json:"index"` // 1-based
	RiskScore           int    `json:"risk_score"`
	ResourceUtilization int    `json:"resource_utilization"`
	Velocity            int    `json:"velocity"`
	Critical            bool   `json:"critical"`
}

// Forecast is the full projection.
type Forecast struct {
	Months []Month `json:"months"`
	// CriticalMonth is the 1-based index of the first critical month, 0 when none.
	CriticalMonth           int `json:"critical_month"`
	EstimatedCompletionDays int `json:"estimated_completion_days"`
}

// HasCriticalMonth reports whether any month crosses CriticalRisk.
func (f Forecast) HasCriticalMonth() bool {
	return f.CriticalMonth > 0
}

// Project computes the forecast. Risk grows 5 points a month, faster when the
// budget is under 50000 (+3) or the timeline under 30 days (+8).
func Project(c scenario.Constraints, currentRisk float64, months int) Forecast {
	if months <= 0 {
		months = DefaultMonths
	}
	base := currentRisk
	if base == 0 {
		base = DefaultBaseRisk
	}

	out := Forecast{
		Months:                  make([]Month, 0, months),
		EstimatedCompletionDays: int(math.Round(c.Timeline * 1.2)),
	}
	for m := 1; m <= months; m++ {
		i := float64(m - 1)
		growth := 5 * i
		if c.Budget < 50000 {
			growth += 3 * i
		}
		if c.Timeline < 30 {
			growth += 8 * i
		}

		month := Month{
			Label:               fmt.Sprintf("Month %d", m),
			Index:               m,
			RiskScore:           int(math.Min(100, math.Round(base+growth))),
			ResourceUtilization: min(120, 60+10*(m-1)),
			Velocity:            max(0, 100-12*(m-1)),
		}
		month.Critical = month.RiskScore > CriticalRisk
		if month.Critical && out.CriticalMonth == 0 {
			out.CriticalMonth = m
		}
		out.Months = append(out.Months, month)
	}
	return out
}
