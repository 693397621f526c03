package negotiation

import (
	"fmt"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// Fallback texts shown in the transcript when the oracle could not be used.
const (
	FallbackAgentContent     = "Direct metric evaluation used as AI fallback."
	FallbackConsensusSummary = "Consensus reached via fallback."
	VendorConvergedSummary   = "Vendor Selection Converged"
)

// fallbackResponse is the deterministic agent rule: every role accepts iff
// the proposal budget is within the budget ceiling.
func fallbackResponse(round int, proposal scenario.ProposalVector, c scenario.Constraints) agents.Response {
	decision := agents.DecisionReject
	if proposal.Budget <= c.Budget {
		decision = agents.DecisionAccept
	}
	return agents.Response{
		Round:    round,
		Decision: decision,
		Content:  FallbackAgentContent,
		Fallback: true,
	}
}

// fallbackVerdict is the deterministic coordinator rule.
func fallbackVerdict(conflictCount int) Verdict {
	if conflictCount == 0 {
		return Verdict{Summary: FallbackConsensusSummary, Converged: true}
	}
	return Verdict{
		Summary:   fmt.Sprintf("Conflict detected (%d objections).", conflictCount),
		Converged: false,
	}
}

func countConflicts(votes []Vote) int {
	n := 0
	for _, v := range votes {
		if v.Response.Decision == agents.DecisionReject {
			n++
		}
	}
	return n
}
