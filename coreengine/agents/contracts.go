// Package agents provides the negotiating agents and their response contracts.
//
// Each agent owns one evaluation role. Agents never own the proposal under
// negotiation; they only record what they decided about it.
package agents

import (
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// =============================================================================
// ENUMS
// =============================================================================

// Role identifies an agent's evaluation perspective.
type Role string

const (
	RoleBudget      Role = "budget"
	RoleTimeline    Role = "timeline"
	RoleQuality     Role = "quality"
	RoleRisk        Role = "risk"
	RoleCoordinator Role = "coordinator"
)

// EvaluatorRoles returns the four fixed evaluator roles in canonical order.
func EvaluatorRoles() []Role {
	return []Role{RoleBudget, RoleTimeline, RoleQuality, RoleRisk}
}

// RoleFromString parses a role string.
func RoleFromString(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "budget":
		return RoleBudget, nil
	case "timeline":
		return RoleTimeline, nil
	case "quality":
		return RoleQuality, nil
	case "risk":
		return RoleRisk, nil
	case "coordinator":
		return RoleCoordinator, nil
	default:
		return "", fmt.Errorf("invalid role '%s'. Must be one of: budget, timeline, quality, risk, coordinator", value)
	}
}

// Metric returns the proposal dimension an evaluator role guards.
// The coordinator has no metric and returns the empty string.
func (r Role) Metric() scenario.Metric {
	switch r {
	case RoleBudget:
		return scenario.MetricBudget
	case RoleTimeline:
		return scenario.MetricTimeline
	case RoleQuality:
		return scenario.MetricQuality
	case RoleRisk:
		return scenario.MetricRisk
	}
	return ""
}

// Status is the agent's activity indicator.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusAnalyzing Status = "analyzing"
	StatusProposing Status = "proposing"
	StatusVoting    Status = "voting"
	StatusWaiting   Status = "waiting"
)

// Decision is an agent's verdict on the current proposal.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// DecisionFromString parses a decision. Anything other than accept or
// reject is an error.
func DecisionFromString(value string) (Decision, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "accept":
		return DecisionAccept, nil
	case "reject":
		return DecisionReject, nil
	default:
		return "", fmt.Errorf("invalid decision '%s'. Must be one of: accept, reject", value)
	}
}

// IsValid reports whether d is accept or reject.
func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// StatusFor maps a decision onto the status it leaves the agent in.
func StatusFor(d Decision) Status {
	if d == DecisionAccept {
		return StatusVoting
	}
	return StatusProposing
}

// =============================================================================
// RESPONSE
// =============================================================================

// Evidence cites a document passage backing a decision.
type Evidence struct {
	DocumentID  string `json:"document_id,omitempty"`
	Quote       string `json:"quote"`
	Explanation string `json:"explanation,omitempty"`
}

// Response is one agent's evaluation outcome for one round.
type Response struct {
	Round    int        `json:"round"`
	Decision Decision   `json:"decision"`
	Content  string     `json:"content"`
	Evidence []Evidence `json:"evidence,omitempty"`
	// Fallback is set when the deterministic local rule produced the response.
	Fallback bool `json:"fallback,omitempty"`
}

// Clone returns a copy that shares no slices with r.
func (r Response) Clone() Response {
	r.Evidence = append([]Evidence(nil), r.Evidence...)
	return r
}

// Validate checks that the response is well formed.
func (r *Response) Validate() error {
	if r == nil {
		return fmt.Errorf("nil response")
	}
	if !r.Decision.IsValid() {
		return fmt.Errorf("invalid decision %q", r.Decision)
	}
	return nil
}
