package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/config"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/observability"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/recovery"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

const tracerName = "github.com/jeeves-cluster-organization/consensusai/negotiation"

// Engine drives one negotiation.
//
// Rounds are strictly sequential: EvaluateRound holds a round lock for its
// whole duration, so concurrent callers queue rather than overlap. Getters
// never block on an in-flight round for longer than the final state update.
type Engine struct {
	sessionID string
	scenario  *scenario.Scenario
	oracle    Oracle
	config    *config.NegotiationConfig
	logger    logging.Logger
	bus       commbus.CommBus
	policy    ScoringPolicy
	now       func() time.Time
	tracer    trace.Tracer

	roundMu sync.Mutex

	mu          sync.RWMutex
	state       State
	round       int
	proposal    scenario.ProposalVector
	history     []Round
	agents      []*agents.Agent
	scores      map[string]map[agents.Role]float64
	lastSummary string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConfig overrides the process-wide negotiation config.
func WithConfig(cfg *config.NegotiationConfig) Option {
	return func(e *Engine) {
		if cfg != nil {
			e.config = cfg
		}
	}
}

// WithBus publishes round events to bus.
func WithBus(bus commbus.CommBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithSessionID sets the id stamped on events. Defaults to a new UUID.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// WithScoringPolicy replaces the vendor accumulator policy.
func WithScoringPolicy(p ScoringPolicy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates scn and creates an idle engine over a private copy of it.
func NewEngine(scn *scenario.Scenario, oracle Oracle, opts ...Option) (*Engine, error) {
	if scn == nil {
		return nil, errors.New("negotiation: scenario is required")
	}
	if oracle == nil {
		return nil, errors.New("negotiation: oracle is required")
	}

	own := scn.Clone()
	own.Normalize()
	if err := own.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		sessionID: uuid.New().String(),
		scenario:  own,
		oracle:    oracle,
		config:    config.GetNegotiationConfig(),
		logger:    logging.Nop(),
		policy:    WeightedVotePolicy{},
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("negotiation: %w", err)
	}
	e.logger = e.logger.Bind("session_id", e.sessionID, "module", string(own.Module))

	for _, role := range agents.EvaluatorRoles() {
		e.agents = append(e.agents, agents.NewAgent(role))
	}

	if own.IsComparison() {
		e.proposal = own.Vendors[0].Metrics
		e.scores = newAccumulators(own.Vendors)
	} else {
		c := own.Constraints
		e.proposal = scenario.ProposalVector{
			Budget:   c.Budget * 1.2,
			Timeline: c.Timeline * 0.8,
			Quality:  c.QualityMin * 0.9,
			Risk:     c.RiskMax * 1.5,
		}
	}
	return e, nil
}

// =============================================================================
// ROUNDS
// =============================================================================

// EvaluateRound runs one negotiation round.
//
// Oracle failures never surface here: each failed agent or coordinator call
// is replaced by its deterministic fallback. The only errors are ErrConverged
// and the context error when ctx is already done before the round starts; in
// both cases no state changes.
func (e *Engine) EvaluateRound(ctx context.Context) (*RoundResult, error) {
	e.roundMu.Lock()
	defer e.roundMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.state.IsTerminal() {
		e.mu.Unlock()
		return nil, ErrConverged
	}
	if e.state == StateIdle {
		if err := e.transitionLocked(StateActive); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}
	e.round++
	round := e.round
	proposal := e.proposal
	history := cloneHistory(e.history)
	for _, a := range e.agents {
		a.MarkAnalyzing()
	}
	e.mu.Unlock()

	start := e.now()
	comparison := e.scenario.IsComparison()
	mode := modeLabel(comparison)
	logger := e.logger.Bind("round", round)
	logger.Info("round_started", "mode", mode)
	e.publish(ctx, &commbus.RoundStarted{SessionID: e.sessionID, Round: round})

	ctx, span := e.tracer.Start(ctx, "negotiation.round", trace.WithAttributes(
		attribute.String("session.id", e.sessionID),
		attribute.Int("round", round),
		attribute.String("mode", mode),
	))
	defer span.End()

	votes := e.evaluateAgents(ctx, logger, round, proposal, history)
	conflicts := countConflicts(votes)

	verdict, coordFallback := e.synthesize(ctx, logger, CoordinatorRequest{
		Scenario:      e.scenario.Clone(),
		Round:         round,
		Votes:         cloneRound(Round{Votes: votes}).Votes,
		Proposal:      proposal,
		ConflictCount: conflicts,
	})

	converged := verdict.Converged
	if comparison {
		converged = round >= e.config.ComparisonRoundCap || verdict.Converged || conflicts == 0
	} else if e.config.GeneralRoundCap > 0 && round >= e.config.GeneralRoundCap {
		converged = true
	}

	returned := verdict.Summary
	if comparison && converged {
		returned = VendorConvergedSummary
	}

	var fallbackAgents []agents.Role
	for _, v := range votes {
		if v.Response.Fallback {
			fallbackAgents = append(fallbackAgents, v.Role)
		}
	}

	e.mu.Lock()
	for i, a := range e.agents {
		a.Record(votes[i].Response)
	}
	e.proposal = e.proposal.Apply(verdict.NextProposal)
	if comparison {
		for _, vendor := range e.scenario.Vendors {
			for role, d := range e.policy.Deltas(e.scenario, vendor, votes) {
				e.scores[vendor.ID][role] += d
			}
		}
	}
	record := Round{
		Number:              round,
		Votes:               votes,
		Summary:             verdict.Summary,
		ConflictCount:       conflicts,
		Converged:           converged,
		CoordinatorFallback: coordFallback,
		Proposal:            e.proposal,
		CompletedAt:         e.now(),
	}
	e.history = append(e.history, record)
	e.lastSummary = returned
	if converged {
		if err := e.transitionLocked(StateConverged); err != nil {
			logger.Error("state_transition_failed", "error", err.Error())
		}
		for _, a := range e.agents {
			a.MarkWaiting()
		}
	}
	newProposal := e.proposal
	confidence := confidenceScore(len(e.history), e.proposal)
	e.mu.Unlock()

	duration := e.now().Sub(start)
	observability.RecordRound(mode, converged, int(duration.Milliseconds()))
	span.SetAttributes(
		attribute.Int("conflicts", conflicts),
		attribute.Bool("converged", converged),
		attribute.Int("fallback_agents", len(fallbackAgents)),
	)

	logger.Info("round_completed",
		"conflicts", conflicts,
		"converged", converged,
		"fallback_agents", len(fallbackAgents),
		"coordinator_fallback", coordFallback,
		"duration_ms", duration.Milliseconds(),
	)

	for _, v := range votes {
		e.publish(ctx, &commbus.AgentEvaluated{
			SessionID: e.sessionID,
			Round:     round,
			Role:      string(v.Role),
			AgentName: v.AgentName,
			Decision:  string(v.Response.Decision),
			Content:   v.Response.Content,
			Fallback:  v.Response.Fallback,
		})
	}
	e.publish(ctx, &commbus.RoundCompleted{
		SessionID:           e.sessionID,
		Round:               round,
		Converged:           converged,
		Summary:             returned,
		ConflictCount:       conflicts,
		FallbackAgents:      roleStrings(fallbackAgents),
		CoordinatorFallback: coordFallback,
		Budget:              newProposal.Budget,
		Timeline:            newProposal.Timeline,
		Quality:             newProposal.Quality,
		Risk:                newProposal.Risk,
		DurationMS:          duration.Milliseconds(),
	})
	if converged {
		observability.RecordConvergence(mode, round)
		logger.Info("negotiation_converged", "rounds", round, "confidence", confidence)
		e.publish(ctx, &commbus.NegotiationConverged{
			SessionID:  e.sessionID,
			Rounds:     round,
			Summary:    returned,
			Confidence: confidence,
		})
	}

	return &RoundResult{
		Round:               round,
		Converged:           converged,
		Summary:             returned,
		ConflictCount:       conflicts,
		FallbackAgents:      fallbackAgents,
		CoordinatorFallback: coordFallback,
		Proposal:            newProposal,
		Duration:            duration,
	}, nil
}

// evaluateAgents fans out one oracle call per agent and joins them. Every
// slot is filled: failures are replaced by the fallback rule.
func (e *Engine) evaluateAgents(ctx context.Context, logger logging.Logger, round int, proposal scenario.ProposalVector, history []Round) []Vote {
	votes := make([]Vote, len(e.agents))

	var g errgroup.Group
	g.SetLimit(e.config.MaxParallelAgents)

	for i, a := range e.agents {
		id, role, name := a.ID(), a.Role(), a.Name()
		persona, _ := agents.PersonaFor(role)
		req := AgentRequest{
			Role:     role,
			Persona:  persona,
			Scenario: e.scenario.Clone(),
			Proposal: proposal,
			History:  cloneHistory(history),
			Round:    round,
		}

		g.Go(func() error {
			resp := e.evaluateAgent(ctx, logger, req)
			votes[i] = Vote{AgentID: id, Role: role, AgentName: name, Response: resp}
			return nil
		})
	}
	_ = g.Wait()
	return votes
}

func (e *Engine) evaluateAgent(ctx context.Context, logger logging.Logger, req AgentRequest) agents.Response {
	ctx, span := e.tracer.Start(ctx, "agent.evaluate", trace.WithAttributes(
		attribute.String("agent.role", string(req.Role)),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, e.config.AgentTimeoutDuration())
	defer cancel()

	resp, err := recovery.SafeExecuteWithResult(logger, "agent.evaluate", func() (agents.Response, error) {
		return e.oracle.EvaluateAgent(callCtx, req)
	})
	if err == nil {
		if verr := resp.Validate(); verr != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedResponse, verr)
		}
	}

	if err != nil {
		observability.RecordOracleCall("agent", oracleStatus(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback")
		logger.Warn("agent_fallback", "role", string(req.Role), "error", err.Error())

		fb := fallbackResponse(req.Round, req.Proposal, req.Scenario.Constraints)
		observability.RecordAgentEvaluation(string(req.Role), "fallback", string(fb.Decision))
		return fb
	}

	observability.RecordOracleCall("agent", "success")
	resp = resp.Clone()
	resp.Round = req.Round
	resp.Fallback = false
	observability.RecordAgentEvaluation(string(req.Role), "oracle", string(resp.Decision))
	span.SetAttributes(attribute.String("agent.decision", string(resp.Decision)))
	return resp
}

func (e *Engine) synthesize(ctx context.Context, logger logging.Logger, req CoordinatorRequest) (Verdict, bool) {
	ctx, span := e.tracer.Start(ctx, "coordinator.synthesize")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, e.config.CoordinatorTimeoutDuration())
	defer cancel()

	verdict, err := recovery.SafeExecuteWithResult(logger, "coordinator.synthesize", func() (Verdict, error) {
		return e.oracle.SynthesizeRound(callCtx, req)
	})
	if err == nil && verdict.Summary == "" {
		err = fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}

	if err != nil {
		observability.RecordOracleCall("coordinator", oracleStatus(err))
		observability.RecordCoordinatorSynthesis("fallback")
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback")
		logger.Warn("coordinator_fallback", "conflicts", req.ConflictCount, "error", err.Error())
		return fallbackVerdict(req.ConflictCount), true
	}

	observability.RecordOracleCall("coordinator", "success")
	observability.RecordCoordinatorSynthesis("oracle")
	return verdict, false
}

func (e *Engine) transitionLocked(to State) error {
	if !IsValidTransition(e.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.state, to)
	}
	e.state = to
	return nil
}

func (e *Engine) publish(ctx context.Context, event commbus.Message) {
	if e.bus == nil || !e.config.PublishEvents {
		return
	}
	if err := e.bus.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("event_publish_failed",
			"event_type", commbus.GetMessageType(event),
			"error", err.Error(),
		)
	}
}

func oracleStatus(err error) string {
	var perr *recovery.PanicError
	switch {
	case errors.As(err, &perr):
		return "panic"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func modeLabel(comparison bool) string {
	if comparison {
		return "comparison"
	}
	return "general"
}

func roleStrings(roles []agents.Role) []string {
	if len(roles) == 0 {
		return nil
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

// =============================================================================
// GETTERS
// =============================================================================

// SessionID returns the id stamped on events.
func (e *Engine) SessionID() string { return e.sessionID }

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Round returns the number of rounds started.
func (e *Engine) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// Proposal returns the current proposal.
func (e *Engine) Proposal() scenario.ProposalVector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.proposal
}

// History returns a deep copy of the transcript.
func (e *Engine) History() []Round {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneHistory(e.history)
}

// Agents returns snapshots of the four agents in canonical role order.
func (e *Engine) Agents() []agents.AgentState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.agentStatesLocked()
}

// Scenario returns a copy of the scenario.
func (e *Engine) Scenario() *scenario.Scenario {
	return e.scenario.Clone()
}

// LastSummary returns the summary returned by the latest round.
func (e *Engine) LastSummary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSummary
}

// ConfidenceScore returns 0 before the first round, else a value in [10,100].
func (e *Engine) ConfidenceScore() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return confidenceScore(len(e.history), e.proposal)
}

// VendorRankings ranks vendors by accumulated score.
func (e *Engine) VendorRankings() ([]VendorRanking, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rankingsLocked()
}

// ExecutiveSummary renders the module-specific report for the current state.
func (e *Engine) ExecutiveSummary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.summaryLocked()
}

// Snapshot returns every observable field under one read lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rankings, _ := e.rankingsLocked()
	return Snapshot{
		SessionID:        e.sessionID,
		State:            e.state,
		Round:            e.round,
		Proposal:         e.proposal,
		Confidence:       confidenceScore(len(e.history), e.proposal),
		Agents:           e.agentStatesLocked(),
		History:          cloneHistory(e.history),
		Scenario:         e.scenario.Clone(),
		Rankings:         rankings,
		ExecutiveSummary: e.summaryLocked(),
	}
}

func (e *Engine) agentStatesLocked() []agents.AgentState {
	out := make([]agents.AgentState, len(e.agents))
	for i, a := range e.agents {
		out[i] = a.Snapshot()
	}
	return out
}

func (e *Engine) rankingsLocked() ([]VendorRanking, error) {
	if !e.scenario.IsComparison() {
		return nil, ErrNotComparisonMode
	}
	if len(e.history) == 0 {
		return nil, ErrNotStarted
	}
	return rankVendors(e.scenario.Vendors, e.scores, confidenceScore(len(e.history), e.proposal)), nil
}

func (e *Engine) summaryLocked() string {
	in := reportInput{
		scenario:   e.scenario,
		proposal:   e.proposal,
		confidence: confidenceScore(len(e.history), e.proposal),
		rounds:     len(e.history),
	}
	if rankings, err := e.rankingsLocked(); err == nil {
		in.rankings = rankings
	}
	return buildSummary(in)
}
