// Package testutil provides shared mocks and fixtures for tests of the
// negotiation engine, the oracle and the transports.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider is a scripted LLM provider.
// Configure responses by prompt substring or use DefaultResponse.
type MockLLMProvider struct {
	// Responses maps prompt substrings to responses. Longest match wins.
	Responses map[string]string

	// DefaultResponse is returned when nothing matches.
	DefaultResponse string

	// Delay simulates latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// Calls records all calls for assertion.
	Calls []LLMCall

	// GenerateFunc, if set, replaces the scripted behavior.
	GenerateFunc func(ctx context.Context, model, prompt string, options map[string]any) (string, error)

	mu sync.Mutex
}

// LLMCall records a single LLM call for assertion.
type LLMCall struct {
	Model   string
	Prompt  string
	Options map[string]any
}

// NewMockLLMProvider creates a MockLLMProvider whose default reply is an accept.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses:       make(map[string]string),
		DefaultResponse: `{"decision": "accept", "content": "Mock evaluation."}`,
	}
}

// Generate implements the oracle's LLM provider port.
func (m *MockLLMProvider) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, LLMCall{Model: model, Prompt: prompt, Options: options})
	custom := m.GenerateFunc
	delay, failure := m.Delay, m.Error
	m.mu.Unlock()

	if custom != nil {
		return custom(ctx, model, prompt, options)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	best, bestLen := m.DefaultResponse, -1
	for key, response := range m.Responses {
		if strings.Contains(prompt, key) && len(key) > bestLen {
			best, bestLen = response, len(key)
		}
	}
	return best, nil
}

// WithResponse adds a substring-keyed response.
func (m *MockLLMProvider) WithResponse(substring, response string) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[substring] = response
	return m
}

// WithError configures the mock to fail every call.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delay = d
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockLLMProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// GetCalls returns a copy of the recorded calls.
func (m *MockLLMProvider) GetCalls() []LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LLMCall(nil), m.Calls...)
}

// =============================================================================
// MOCK ORACLE
// =============================================================================

// MockOracle is a scripted negotiation.Oracle.
//
// By default every agent accepts and the coordinator declares convergence
// when there are no conflicts. Decisions, verdicts and errors can be
// overridden per role or replaced entirely with AgentFunc/CoordinatorFunc.
type MockOracle struct {
	// Decisions overrides the decision per role.
	Decisions map[agents.Role]agents.Decision
	// AgentErrors fails the evaluation of specific roles.
	AgentErrors map[agents.Role]error
	// CoordinatorError fails every synthesis.
	CoordinatorError error
	// NextProposal is attached to every successful verdict.
	NextProposal *scenario.PartialProposal
	// Delay simulates oracle latency for agent calls.
	Delay time.Duration

	AgentFunc       func(ctx context.Context, req negotiation.AgentRequest) (agents.Response, error)
	CoordinatorFunc func(ctx context.Context, req negotiation.CoordinatorRequest) (negotiation.Verdict, error)

	agentCalls       []negotiation.AgentRequest
	coordinatorCalls []negotiation.CoordinatorRequest
	mu               sync.Mutex
}

// NewMockOracle creates a MockOracle with the default behavior.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		Decisions:   make(map[agents.Role]agents.Decision),
		AgentErrors: make(map[agents.Role]error),
	}
}

// EvaluateAgent implements negotiation.Oracle.
func (m *MockOracle) EvaluateAgent(ctx context.Context, req negotiation.AgentRequest) (agents.Response, error) {
	m.mu.Lock()
	m.agentCalls = append(m.agentCalls, req)
	custom := m.AgentFunc
	delay := m.Delay
	decision, hasDecision := m.Decisions[req.Role]
	failure := m.AgentErrors[req.Role]
	m.mu.Unlock()

	if custom != nil {
		return custom(ctx, req)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return agents.Response{}, ctx.Err()
		}
	}
	if failure != nil {
		return agents.Response{}, failure
	}
	if !hasDecision {
		decision = agents.DecisionAccept
	}
	return agents.Response{
		Round:    req.Round,
		Decision: decision,
		Content:  string(req.Role) + " " + string(decision) + "s the proposal.",
	}, nil
}

// SynthesizeRound implements negotiation.Oracle.
func (m *MockOracle) SynthesizeRound(ctx context.Context, req negotiation.CoordinatorRequest) (negotiation.Verdict, error) {
	m.mu.Lock()
	m.coordinatorCalls = append(m.coordinatorCalls, req)
	custom := m.CoordinatorFunc
	failure := m.CoordinatorError
	next := m.NextProposal
	m.mu.Unlock()

	if custom != nil {
		return custom(ctx, req)
	}
	if failure != nil {
		return negotiation.Verdict{}, failure
	}
	summary := "Agents remain divided."
	if req.ConflictCount == 0 {
		summary = "All agents aligned."
	}
	return negotiation.Verdict{
		Summary:      summary,
		Converged:    req.ConflictCount == 0,
		NextProposal: next,
	}, nil
}

// SetDecision sets the decision for role (thread-safe).
func (m *MockOracle) SetDecision(role agents.Role, d agents.Decision) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decisions[role] = d
	return m
}

// RejectAll makes every evaluator reject.
func (m *MockOracle) RejectAll() *MockOracle {
	for _, r := range agents.EvaluatorRoles() {
		m.SetDecision(r, agents.DecisionReject)
	}
	return m
}

// AgentCalls returns the recorded agent requests.
func (m *MockOracle) AgentCalls() []negotiation.AgentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]negotiation.AgentRequest(nil), m.agentCalls...)
}

// CoordinatorCalls returns the recorded coordinator requests.
func (m *MockOracle) CoordinatorCalls() []negotiation.CoordinatorRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]negotiation.CoordinatorRequest(nil), m.coordinatorCalls...)
}

// FailingOracle fails every call with Err.
type FailingOracle struct {
	Err error
}

func (f FailingOracle) EvaluateAgent(context.Context, negotiation.AgentRequest) (agents.Response, error) {
	return agents.Response{}, f.Err
}

func (f FailingOracle) SynthesizeRound(context.Context, negotiation.CoordinatorRequest) (negotiation.Verdict, error) {
	return negotiation.Verdict{}, f.Err
}

var (
	_ negotiation.Oracle = (*MockOracle)(nil)
	_ negotiation.Oracle = FailingOracle{}
)

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger captures log entries. Bound children share the parent's entries.
type MockLogger struct {
	store  *logStore
	fields []any
}

type logStore struct {
	mu   sync.Mutex
	logs []LogEntry
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{store: &logStore{}}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

// Bind returns a child that adds fields to every entry.
func (m *MockLogger) Bind(fields ...any) logging.Logger {
	merged := append(append([]any(nil), m.fields...), fields...)
	return &MockLogger{store: m.store, fields: merged}
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	all := append(append([]any(nil), m.fields...), keysAndValues...)
	fields := make(map[string]any)
	for i := 0; i < len(all)-1; i += 2 {
		if key, ok := all[i].(string); ok {
			fields[key] = all[i+1]
		}
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.logs = append(m.store.logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return append([]LogEntry(nil), m.store.logs...)
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	return m.CountLogs(level, message) > 0
}

// CountLogs counts entries with the given level and message.
func (m *MockLogger) CountLogs(level, message string) int {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	n := 0
	for _, entry := range m.store.logs {
		if entry.Level == level && entry.Message == message {
			n++
		}
	}
	return n
}

var _ logging.Logger = (*MockLogger)(nil)

// =============================================================================
// SCENARIO FIXTURES
// =============================================================================

// GeneralScenario returns a general-mode scenario with constraints
// 100000/90/70/30 and priorities 5/5/8/7.
func GeneralScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:          "scn-general",
		Title:       "Cloud Migration",
		Description: "Move the billing platform to managed infrastructure.",
		Module:      scenario.ModuleGeneral,
		Constraints: scenario.Constraints{Budget: 100000, Timeline: 90, QualityMin: 70, RiskMax: 30},
		Priorities:  scenario.Priorities{Budget: 5, Timeline: 5, Quality: 8, Risk: 7},
	}
}

// VendorScenario returns a vendor_eval scenario with three vendors:
// Acme meets every constraint, Globex exceeds the budget, Initech is late
// and risky.
func VendorScenario() *scenario.Scenario {
	s := GeneralScenario()
	s.ID = "scn-vendor"
	s.Title = "CRM Vendor Selection"
	s.Module = scenario.ModuleVendorEval
	s.Priorities = scenario.Priorities{Budget: 5, Timeline: 5, Quality: 7, Risk: 8}
	s.Vendors = []scenario.VendorProposal{
		{
			ID:         "v-acme",
			VendorName: "Acme",
			Metrics:    scenario.ProposalVector{Budget: 90000, Timeline: 60, Quality: 85, Risk: 10},
			Facts: []scenario.VendorFact{
				{Field: scenario.MetricBudget, Value: 90000, Quote: "Total fee of $90,000 fixed."},
			},
		},
		{
			ID:         "v-globex",
			VendorName: "Globex",
			Metrics:    scenario.ProposalVector{Budget: 130000, Timeline: 45, Quality: 92, Risk: 12},
		},
		{
			ID:         "v-initech",
			VendorName: "Initech",
			Metrics:    scenario.ProposalVector{Budget: 70000, Timeline: 120, Quality: 65, Risk: 40},
		},
	}
	return s
}

// ModuleScenario returns GeneralScenario switched to module.
func ModuleScenario(module scenario.ModuleKind) *scenario.Scenario {
	s := GeneralScenario()
	s.Module = module
	if module == scenario.ModuleVendorEval {
		return VendorScenario()
	}
	return s
}
