package oracle

import (
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

var promptFuncs = template.FuncMap{
	"round": func(v float64) int64 { return int64(math.Round(v)) },
	"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
}

const agentPromptTemplate = `You are acting as the {{upper .Role}} agent in a multi-agent negotiation system called ConsensusAI.

CONTEXT:
Project: {{.Scenario.Title}}
Goal: {{.Scenario.Description}}

CONSTRAINTS:
- Budget: ${{round .Scenario.Constraints.Budget}}
- Timeline: {{round .Scenario.Constraints.Timeline}} Days
- Quality Min: {{round .Scenario.Constraints.QualityMin}}/100
- Risk Max: {{round .Scenario.Constraints.RiskMax}}%

PRIORITIES (1-10):
- Budget: {{.Scenario.Priorities.Budget}}
- Timeline: {{.Scenario.Priorities.Timeline}}
- Quality: {{.Scenario.Priorities.Quality}}
- Risk: {{.Scenario.Priorities.Risk}}

CURRENT PROPOSAL BEING EVALUATED:
- Budget: ${{round .Proposal.Budget}}
- Timeline: {{round .Proposal.Timeline}} Days
- Quality: {{round .Proposal.Quality}}/100
- Risk: {{round .Proposal.Risk}}%
{{if .Comparison}}
VENDORS INVOLVED:
{{range .Scenario.Vendors}}- {{.VendorName}}: ${{round .Metrics.Budget}}, {{round .Metrics.Timeline}}d, {{round .Metrics.Quality}} quality, {{round .Metrics.Risk}}% risk
{{end}}{{end}}
NEGOTIATION HISTORY:
{{range .History}}Round {{.Number}}: {{.Summary}}
{{else}}No previous rounds.
{{end}}
YOUR PERSONA:
{{.Persona.Name}}: {{.Persona.Brief}}

YOUR TASK:
Evaluate the current proposal based on your persona and priorities.
Decide whether to "accept" or "reject" the proposal.
Provide a concise, professional justification (under 50 words).
If you reject, explain what needs to change from your perspective.

Return your response in strictly JSON format:
{"decision": "accept" | "reject", "content": "your reasoning here", "evidence": []}
`

const coordinatorPromptTemplate = `You are the Executive Coordinator for ConsensusAI.

SCENARIO: {{.Scenario.Title}}

CONSTRAINTS: budget ${{round .Scenario.Constraints.Budget}}, timeline {{round .Scenario.Constraints.Timeline}} days, quality >= {{round .Scenario.Constraints.QualityMin}}, risk <= {{round .Scenario.Constraints.RiskMax}}%

CURRENT PROPOSAL: budget ${{round .Proposal.Budget}}, timeline {{round .Proposal.Timeline}} days, quality {{round .Proposal.Quality}}, risk {{round .Proposal.Risk}}%

AGENT FEEDBACK FOR ROUND {{.Round}} ({{.ConflictCount}} objections):
{{range .Votes}}- {{.Role}}: {{.Response.Decision}} - {{.Response.Content}}
{{end}}
YOUR TASK:
1. Summarize the state of the negotiation (under 30 words).
2. Determine if consensus has been reached (all agents must accept).
3. If no consensus, suggest numerical adjustments to the proposal (budget, timeline, quality, risk) to appease the objecting agents while staying within the project constraints.

Return your response in strictly JSON format:
{"summary": "your summary here", "converged": true | false, "nextProposal": {"budget": number, "timeline": number, "quality": number, "risk": number}}
`

var (
	agentTmpl       = template.Must(template.New("agent").Funcs(promptFuncs).Parse(agentPromptTemplate))
	coordinatorTmpl = template.Must(template.New("coordinator").Funcs(promptFuncs).Parse(coordinatorPromptTemplate))
)

type agentPromptData struct {
	negotiation.AgentRequest
	Comparison bool
}

// AgentPrompt renders the evaluation prompt for one agent.
func AgentPrompt(req negotiation.AgentRequest) (string, error) {
	if req.Scenario == nil {
		return "", fmt.Errorf("agent prompt: scenario is required")
	}
	if req.Persona.Name == "" {
		if p, ok := agents.PersonaFor(req.Role); ok {
			req.Persona = p
		}
	}

	var b strings.Builder
	data := agentPromptData{AgentRequest: req, Comparison: req.Scenario.IsComparison()}
	if err := agentTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render agent prompt: %w", err)
	}
	return b.String(), nil
}

// CoordinatorPrompt renders the synthesis prompt for one round.
func CoordinatorPrompt(req negotiation.CoordinatorRequest) (string, error) {
	if req.Scenario == nil {
		return "", fmt.Errorf("coordinator prompt: scenario is required")
	}

	var b strings.Builder
	if err := coordinatorTmpl.Execute(&b, req); err != nil {
		return "", fmt.Errorf("failed to render coordinator prompt: %w", err)
	}
	return b.String(), nil
}
