package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

func TestProjectComfortableScenario(t *testing.T) {
	f := Project(scenario.Constraints{Budget: 100000, Timeline: 90}, 0, 0)

	require.Len(t, f.Months, DefaultMonths)
	assert.Equal(t, []int{20, 25, 30, 35, 40, 45}, riskScores(f))
	assert.Equal(t, "Month 1", f.Months[0].Label)
	assert.Equal(t, 60, f.Months[0].ResourceUtilization)
	assert.Equal(t, 110, f.Months[5].ResourceUtilization)
	assert.Equal(t, 100, f.Months[0].Velocity)
	assert.Equal(t, 40, f.Months[5].Velocity)
	assert.False(t, f.HasCriticalMonth())
	assert.Equal(t, 108, f.EstimatedCompletionDays)
}

func TestProjectTightScenario(t *testing.T) {
	// budget < 50000 and timeline < 30: 16 points a month
	f := Project(scenario.Constraints{Budget: 40000, Timeline: 20}, 35, 6)

	assert.Equal(t, []int{35, 51, 67, 83, 99, 100}, riskScores(f))
	assert.True(t, f.HasCriticalMonth())
	assert.Equal(t, 4, f.CriticalMonth)
	assert.False(t, f.Months[2].Critical)
	assert.True(t, f.Months[3].Critical)
	assert.Equal(t, 24, f.EstimatedCompletionDays)
}

func TestProjectClamps(t *testing.T) {
	f := Project(scenario.Constraints{Budget: 100000, Timeline: 90}, 10, 12)

	require.Len(t, f.Months, 12)
	assert.Equal(t, 120, f.Months[11].ResourceUtilization)
	assert.Equal(t, 0, f.Months[11].Velocity)
	assert.Equal(t, 65, f.Months[11].RiskScore)
}

func TestProjectRoundsRisk(t *testing.T) {
	f := Project(scenario.Constraints{Budget: 100000, Timeline: 90}, 12.6, 1)
	assert.Equal(t, 13, f.Months[0].RiskScore)
}

func riskScores(f Forecast) []int {
	out := make([]int, len(f.Months))
	for i, m := range f.Months {
		out[i] = m.RiskScore
	}
	return out
}
