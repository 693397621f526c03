package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

func vendorScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Title:       "Vendors",
		Module:      scenario.ModuleVendorEval,
		Constraints: scenario.Constraints{Budget: 100000, Timeline: 90, QualityMin: 70, RiskMax: 30},
		Priorities:  scenario.Priorities{Budget: 5, Timeline: 4, Quality: 7, Risk: 8},
		Vendors: []scenario.VendorProposal{
			{ID: "a", VendorName: "A", Metrics: scenario.ProposalVector{Budget: 90000, Timeline: 60, Quality: 85, Risk: 10}},
			{ID: "b", VendorName: "B", Metrics: scenario.ProposalVector{Budget: 130000, Timeline: 120, Quality: 60, Risk: 50}},
		},
	}
}

func votesFor(decisions ...agents.Decision) []Vote {
	votes := make([]Vote, len(decisions))
	for i, role := range agents.EvaluatorRoles() {
		votes[i] = Vote{Role: role, Response: agents.Response{Decision: decisions[i]}}
	}
	return votes
}

// =============================================================================
// WEIGHTED VOTE POLICY
// =============================================================================

func TestWeightedVotePolicy(t *testing.T) {
	scn := vendorScenario()
	accept, reject := agents.DecisionAccept, agents.DecisionReject

	tests := []struct {
		name   string
		vendor int
		votes  []Vote
		want   map[agents.Role]float64
	}{
		{
			name:   "accepts reward a compliant vendor",
			vendor: 0,
			votes:  votesFor(accept, accept, accept, accept),
			want: map[agents.Role]float64{
				agents.RoleBudget: 5, agents.RoleTimeline: 4, agents.RoleQuality: 7, agents.RoleRisk: 8,
				agents.RoleCoordinator: 8,
			},
		},
		{
			name:   "rejects leave a compliant vendor alone",
			vendor: 0,
			votes:  votesFor(reject, reject, reject, reject),
			want:   map[agents.Role]float64{agents.RoleCoordinator: 8},
		},
		{
			name:   "rejects penalise a violating vendor",
			vendor: 1,
			votes:  votesFor(reject, reject, reject, reject),
			want: map[agents.Role]float64{
				agents.RoleBudget: -5, agents.RoleTimeline: -4, agents.RoleQuality: -7, agents.RoleRisk: -8,
				agents.RoleCoordinator: -8,
			},
		},
		{
			name:   "accepts leave a violating vendor alone",
			vendor: 1,
			votes:  votesFor(accept, accept, accept, accept),
			want:   map[agents.Role]float64{agents.RoleCoordinator: -8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedVotePolicy{}.Deltas(scn, scn.Vendors[tt.vendor], tt.votes)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// RANKINGS
// =============================================================================

func TestNewAccumulators(t *testing.T) {
	acc := newAccumulators(vendorScenario().Vendors)
	assert.Len(t, acc, 2)
	for _, scores := range acc {
		assert.Len(t, scores, 5)
		assert.Equal(t, 50.0, scores[agents.RoleCoordinator])
		assert.Equal(t, 0.0, scores[agents.RoleRisk])
	}
}

func TestRankVendors_OrderAndTies(t *testing.T) {
	vendors := []scenario.VendorProposal{
		{ID: "x", VendorName: "X"},
		{ID: "y", VendorName: "Y"},
		{ID: "z", VendorName: "Z"},
	}
	acc := newAccumulators(vendors)
	acc["z"][agents.RoleBudget] = 10

	rankings := rankVendors(vendors, acc, 77)
	names := []string{rankings[0].VendorName, rankings[1].VendorName, rankings[2].VendorName}
	assert.Equal(t, []string{"Z", "X", "Y"}, names)
	assert.Equal(t, 12.0, rankings[0].Score)
	assert.Equal(t, 10.0, rankings[1].Score)
	for i, r := range rankings {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, 77, r.Confidence)
	}

	// Returned accumulators are copies.
	rankings[0].Accumulators[agents.RoleBudget] = 99
	assert.Equal(t, 10.0, acc["z"][agents.RoleBudget])
}

// =============================================================================
// CONFIDENCE
// =============================================================================

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name   string
		rounds int
		p      scenario.ProposalVector
		want   int
	}{
		{"not started", 0, scenario.ProposalVector{Quality: 100}, 0},
		{"ideal proposal", 1, scenario.ProposalVector{Quality: 95, Risk: 5}, 98},
		{"seeded proposal", 1, scenario.ProposalVector{Budget: 120000, Timeline: 72, Quality: 63, Risk: 45}, 36},
		{"clamped low", 30, scenario.ProposalVector{Quality: 0, Risk: 100}, 10},
		{"rounds half-up", 1, scenario.ProposalVector{Quality: 89.5, Risk: 10}, 98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confidenceScore(tt.rounds, tt.p))
		})
	}
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestFallbackResponse(t *testing.T) {
	c := scenario.Constraints{Budget: 100000}

	within := fallbackResponse(2, scenario.ProposalVector{Budget: 100000}, c)
	assert.Equal(t, agents.DecisionAccept, within.Decision)
	assert.Equal(t, 2, within.Round)
	assert.True(t, within.Fallback)
	assert.Equal(t, FallbackAgentContent, within.Content)

	over := fallbackResponse(2, scenario.ProposalVector{Budget: 100001}, c)
	assert.Equal(t, agents.DecisionReject, over.Decision)
}

func TestFallbackVerdict(t *testing.T) {
	assert.Equal(t, Verdict{Summary: FallbackConsensusSummary, Converged: true}, fallbackVerdict(0))
	assert.Equal(t, Verdict{Summary: "Conflict detected (1 objections)."}, fallbackVerdict(1))
}

func TestIsValidTransition(t *testing.T) {
	assert.True(t, IsValidTransition(StateIdle, StateActive))
	assert.True(t, IsValidTransition(StateActive, StateConverged))
	assert.False(t, IsValidTransition(StateIdle, StateConverged))
	assert.False(t, IsValidTransition(StateConverged, StateActive))
	assert.True(t, StateConverged.IsTerminal())
	assert.False(t, StateActive.IsTerminal())
}
