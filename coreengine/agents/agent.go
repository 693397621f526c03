package agents

import (
	"github.com/google/uuid"
)

// Persona is the fixed presentation and prompt identity of a role.
type Persona struct {
	Role  Role
	Name  string
	Color string
	Brief string
}

var personas = map[Role]Persona{
	RoleBudget: {
		Role:  RoleBudget,
		Name:  "Budget Overseer",
		Color: "success",
		Brief: "You guard cost efficiency and the budget ceiling. You are frugal and judge every proposal by return on investment.",
	},
	RoleTimeline: {
		Role:  RoleTimeline,
		Name:  "Timeline Enforcer",
		Color: "warning",
		Brief: "You guard deadlines and schedule feasibility. Delays are unacceptable to you and speed comes first.",
	},
	RoleQuality: {
		Role:  RoleQuality,
		Name:  "QA Sentinel",
		Color: "secondary",
		Brief: "You guard technical excellence and reliability. You refuse proposals that cut corners.",
	},
	RoleRisk: {
		Role:  RoleRisk,
		Name:  "Risk Guardian",
		Color: "danger",
		Brief: "You guard security, compliance, stability and SLA commitments. You are cautious and risk-averse.",
	},
	RoleCoordinator: {
		Role:  RoleCoordinator,
		Name:  "Executive Coordinator",
		Color: "primary",
		Brief: "You weigh every viewpoint and propose compromises that move the group toward consensus.",
	},
}

// PersonaFor returns the persona of role.
func PersonaFor(role Role) (Persona, bool) {
	p, ok := personas[role]
	return p, ok
}

// AgentState is a read-only snapshot of an agent.
type AgentState struct {
	ID             string    `json:"id"`
	Role           Role      `json:"role"`
	Name           string    `json:"name"`
	Color          string    `json:"color,omitempty"`
	Status         Status    `json:"status"`
	Reasoning      []string  `json:"reasoning"`
	LatestResponse *Response `json:"latest_response,omitempty"`
}

// Agent is one evaluator. It is mutated only by the engine that created it;
// callers observe it through Snapshot.
type Agent struct {
	id        string
	persona   Persona
	status    Status
	reasoning []string
	latest    *Response
}

// NewAgent creates an idle agent for role.
func NewAgent(role Role) *Agent {
	p, ok := personas[role]
	if !ok {
		p = Persona{Role: role, Name: string(role)}
	}
	return &Agent{
		id:      uuid.New().String(),
		persona: p,
		status:  StatusIdle,
	}
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Role returns the agent role.
func (a *Agent) Role() Role { return a.persona.Role }

// Name returns the display name.
func (a *Agent) Name() string { return a.persona.Name }

// Status returns the current status.
func (a *Agent) Status() Status { return a.status }

// MarkAnalyzing flags the agent as waiting on its evaluation.
func (a *Agent) MarkAnalyzing() { a.status = StatusAnalyzing }

// MarkWaiting flags the agent as idle between rounds after convergence.
func (a *Agent) MarkWaiting() { a.status = StatusWaiting }

// Record stores resp as the latest response, appends its justification to
// the reasoning log and updates the status from the decision.
func (a *Agent) Record(resp Response) {
	stored := resp.Clone()
	a.latest = &stored
	a.reasoning = append(a.reasoning, resp.Content)
	a.status = StatusFor(resp.Decision)
}

// Snapshot returns a copy safe to hand to callers.
func (a *Agent) Snapshot() AgentState {
	s := AgentState{
		ID:        a.id,
		Role:      a.persona.Role,
		Name:      a.persona.Name,
		Color:     a.persona.Color,
		Status:    a.status,
		Reasoning: append([]string(nil), a.reasoning...),
	}
	if a.latest != nil {
		latest := a.latest.Clone()
		s.LatestResponse = &latest
	}
	return s
}
