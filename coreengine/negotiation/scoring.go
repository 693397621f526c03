package negotiation

import (
	"math"
	"sort"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// Accumulator baselines for a freshly ingested vendor.
const (
	neutralEvaluatorScore   = 0
	neutralCoordinatorScore = 50
)

// ScoringPolicy turns one round of votes into per-vendor accumulator deltas.
type ScoringPolicy interface {
	Deltas(scn *scenario.Scenario, vendor scenario.VendorProposal, votes []Vote) map[agents.Role]float64
}

// WeightedVotePolicy is the default ScoringPolicy.
//
// For an evaluator voting on metric m with priority w: accept adds w to every
// vendor that satisfies the constraint on m, reject subtracts w from every
// vendor that violates it. The coordinator accumulator moves by
// 2*(met-violated) across all four constraints each round.
type WeightedVotePolicy struct{}

// Deltas implements ScoringPolicy.
func (WeightedVotePolicy) Deltas(scn *scenario.Scenario, vendor scenario.VendorProposal, votes []Vote) map[agents.Role]float64 {
	deltas := make(map[agents.Role]float64, len(votes)+1)
	c := scn.Constraints

	for _, v := range votes {
		metric := v.Role.Metric()
		if metric == "" {
			continue
		}
		w := scn.Priorities.Weight(metric)
		ok := c.Satisfies(metric, vendor.Metrics.Get(metric))
		switch {
		case v.Response.Decision == agents.DecisionAccept && ok:
			deltas[v.Role] += w
		case v.Response.Decision == agents.DecisionReject && !ok:
			deltas[v.Role] -= w
		}
	}

	met, violated := c.Count(vendor.Metrics)
	deltas[agents.RoleCoordinator] += float64(2 * (met - violated))
	return deltas
}

func newAccumulators(vendors []scenario.VendorProposal) map[string]map[agents.Role]float64 {
	out := make(map[string]map[agents.Role]float64, len(vendors))
	for _, v := range vendors {
		acc := make(map[agents.Role]float64, 5)
		for _, r := range agents.EvaluatorRoles() {
			acc[r] = neutralEvaluatorScore
		}
		acc[agents.RoleCoordinator] = neutralCoordinatorScore
		out[v.ID] = acc
	}
	return out
}

// =============================================================================
// RANKINGS
// =============================================================================

// VendorRanking is one row of the final comparison.
type VendorRanking struct {
	Rank         int                     `json:"rank"`
	VendorID     string                  `json:"vendor_id"`
	VendorName   string                  `json:"vendor_name"`
	Score        float64                 `json:"score"`
	Confidence   int                     `json:"confidence"`
	Metrics      scenario.ProposalVector `json:"metrics"`
	Accumulators map[agents.Role]float64 `json:"accumulators"`
	Facts        []scenario.VendorFact   `json:"facts,omitempty"`
}

// rankVendors orders vendors by the mean of their five accumulators,
// descending. Equal scores keep input order.
func rankVendors(vendors []scenario.VendorProposal, acc map[string]map[agents.Role]float64, confidence int) []VendorRanking {
	out := make([]VendorRanking, 0, len(vendors))
	for _, v := range vendors {
		scores := acc[v.ID]
		copied := make(map[agents.Role]float64, len(scores))
		sum := 0.0
		for r, s := range scores {
			copied[r] = s
			sum += s
		}
		out = append(out, VendorRanking{
			VendorID:     v.ID,
			VendorName:   v.VendorName,
			Score:        sum / 5,
			Confidence:   confidence,
			Metrics:      v.Metrics,
			Accumulators: copied,
			Facts:        append([]scenario.VendorFact(nil), v.Facts...),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// =============================================================================
// CONFIDENCE
// =============================================================================

// confidenceScore is 0 before any round, otherwise clamped to [10,100].
func confidenceScore(rounds int, p scenario.ProposalVector) int {
	if rounds == 0 {
		return 0
	}
	score := 100.0
	score -= float64(2 * rounds)
	score -= math.Max(0, p.Risk-10)
	score -= math.Max(0, 90-p.Quality)
	return int(math.Max(10, math.Min(100, math.Round(score))))
}
