// Package negotiation implements the consensus engine: the round-by-round
// state machine that drives four evaluator agents and a coordinator over a
// shared proposal until convergence.
package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// =============================================================================
// ERRORS
// =============================================================================

// Caller protocol errors.
var (
	// ErrConverged is returned by EvaluateRound once the negotiation is terminal.
	ErrConverged = errors.New("negotiation: already converged")
	// ErrNotStarted is returned by operations that need at least one round.
	ErrNotStarted = errors.New("negotiation: no round evaluated yet")
	// ErrNotComparisonMode is returned when rankings are requested outside vendor evaluation.
	ErrNotComparisonMode = errors.New("negotiation: scenario is not in comparison mode")
	// ErrInvalidTransition reports an illegal state change.
	ErrInvalidTransition = errors.New("negotiation: invalid state transition")
)

// Oracle failures. Both are recovered locally by the fallback rules.
var (
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the engine lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StateConverged State = "converged"
)

// IsTerminal reports whether no further rounds may run.
func (s State) IsTerminal() bool {
	return s == StateConverged
}

var validTransitions = map[State]map[State]bool{
	StateIdle:   {StateActive: true},
	StateActive: {StateConverged: true},
}

// IsValidTransition checks if a state transition is allowed.
func IsValidTransition(from, to State) bool {
	if targets, ok := validTransitions[from]; ok {
		return targets[to]
	}
	return false
}

// =============================================================================
// ORACLE PORT
// =============================================================================

// AgentRequest is everything the oracle needs to evaluate one agent.
type AgentRequest struct {
	Role     agents.Role             `json:"role"`
	Persona  agents.Persona          `json:"persona"`
	Scenario *scenario.Scenario      `json:"scenario"`
	Proposal scenario.ProposalVector `json:"current_proposal"`
	History  []Round                 `json:"round_history"`
	Round    int                     `json:"round"`
}

// CoordinatorRequest is everything the oracle needs to synthesize a round.
type CoordinatorRequest struct {
	Scenario      *scenario.Scenario      `json:"scenario"`
	Round         int                     `json:"round"`
	Votes         []Vote                  `json:"agent_responses"`
	Proposal      scenario.ProposalVector `json:"current_proposal"`
	ConflictCount int                     `json:"conflict_count"`
}

// Verdict is the coordinator's judgment on a round.
type Verdict struct {
	Summary      string                    `json:"summary"`
	Converged    bool                      `json:"converged"`
	NextProposal *scenario.PartialProposal `json:"next_proposal,omitempty"`
}

// Oracle supplies agent decisions and coordinator verdicts. Implementations
// must return an error rather than a malformed decision.
type Oracle interface {
	EvaluateAgent(ctx context.Context, req AgentRequest) (agents.Response, error)
	SynthesizeRound(ctx context.Context, req CoordinatorRequest) (Verdict, error)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Vote pairs an agent with its response for one round.
type Vote struct {
	AgentID   string          `json:"agent_id"`
	Role      agents.Role     `json:"role"`
	AgentName string          `json:"agent_name"`
	Response  agents.Response `json:"response"`
}

// Round is one append-only transcript entry.
type Round struct {
	Number              int                     `json:"round"`
	Votes               []Vote                  `json:"votes"`
	Summary             string                  `json:"summary"`
	ConflictCount       int                     `json:"conflict_count"`
	Converged           bool                    `json:"converged"`
	CoordinatorFallback bool                    `json:"coordinator_fallback,omitempty"`
	Proposal            scenario.ProposalVector `json:"proposal"`
	CompletedAt         time.Time               `json:"completed_at"`
}

func cloneRound(r Round) Round {
	votes := make([]Vote, len(r.Votes))
	for i, v := range r.Votes {
		v.Response = v.Response.Clone()
		votes[i] = v
	}
	r.Votes = votes
	return r
}

func cloneHistory(h []Round) []Round {
	out := make([]Round, len(h))
	for i, r := range h {
		out[i] = cloneRound(r)
	}
	return out
}

// RoundResult is returned to the caller of EvaluateRound.
type RoundResult struct {
	Round               int                     `json:"round"`
	Converged           bool                    `json:"converged"`
	Summary             string                  `json:"summary"`
	ConflictCount       int                     `json:"conflict_count"`
	FallbackAgents      []agents.Role           `json:"fallback_agents,omitempty"`
	CoordinatorFallback bool                    `json:"coordinator_fallback"`
	Proposal            scenario.ProposalVector `json:"proposal"`
	Duration            time.Duration           `json:"duration"`
}

// Snapshot is a consistent read of the whole engine.
type Snapshot struct {
	SessionID        string                  `json:"session_id"`
	State            State                   `json:"state"`
	Round            int                     `json:"round"`
	Proposal         scenario.ProposalVector `json:"proposal"`
	Confidence       int                     `json:"confidence"`
	Agents           []agents.AgentState     `json:"agents"`
	History          []Round                 `json:"history"`
	Scenario         *scenario.Scenario      `json:"scenario"`
	Rankings         []VendorRanking         `json:"rankings,omitempty"`
	ExecutiveSummary string                  `json:"executive_summary"`
}
