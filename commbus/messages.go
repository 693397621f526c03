// Package commbus provides the in-memory message bus and the negotiation
// event and query definitions that travel over it.
//
// Categories:
//   - EVENT: fire-and-forget, fan-out to subscribers
//   - QUERY: request-response, single handler
package commbus

// =============================================================================
// MESSAGE CATEGORIES
// =============================================================================

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	// MessageCategoryEvent represents fire-and-forget, fan-out to all subscribers.
	MessageCategoryEvent MessageCategory = "event"
	// MessageCategoryQuery represents request-response, single handler.
	MessageCategoryQuery MessageCategory = "query"
)

// Event type names.
const (
	TypeSessionCreated       = "SessionCreated"
	TypeRoundStarted         = "RoundStarted"
	TypeAgentEvaluated       = "AgentEvaluated"
	TypeRoundCompleted       = "RoundCompleted"
	TypeNegotiationConverged = "NegotiationConverged"
	TypeSessionClosed        = "SessionClosed"
)

// NegotiationEventTypes lists every session event type in emission order.
func NegotiationEventTypes() []string {
	return []string{
		TypeSessionCreated,
		TypeRoundStarted,
		TypeAgentEvaluated,
		TypeRoundCompleted,
		TypeNegotiationConverged,
		TypeSessionClosed,
	}
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

// SessionCreated is emitted when the kernel registers a new negotiation.
type SessionCreated struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Module    string `json:"module"`
	Vendors   int    `json:"vendors"`
}

func (m *SessionCreated) Category() string { return string(MessageCategoryEvent) }
func (m *SessionCreated) Session() string  { return m.SessionID }

// SessionClosed is emitted when a session is deleted.
type SessionClosed struct {
	SessionID string `json:"session_id"`
	Rounds    int    `json:"rounds"`
}

func (m *SessionClosed) Category() string { return string(MessageCategoryEvent) }
func (m *SessionClosed) Session() string  { return m.SessionID }

// =============================================================================
// ROUND EVENTS
// =============================================================================

// RoundStarted is emitted before the agents of a round are consulted.
type RoundStarted struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
}

func (m *RoundStarted) Category() string { return string(MessageCategoryEvent) }
func (m *RoundStarted) Session() string  { return m.SessionID }

// AgentEvaluated is emitted once per evaluator per round.
type AgentEvaluated struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	Role      string `json:"role"`
	AgentName string `json:"agent_name"`
	Decision  string `json:"decision"`
	Content   string `json:"content"`
	Fallback  bool   `json:"fallback"`
}

func (m *AgentEvaluated) Category() string { return string(MessageCategoryEvent) }
func (m *AgentEvaluated) Session() string  { return m.SessionID }

// RoundCompleted is emitted after the coordinator step has been applied.
type RoundCompleted struct {
	SessionID           string   `json:"session_id"`
	Round               int      `json:"round"`
	Converged           bool     `json:"converged"`
	Summary             string   `json:"summary"`
	ConflictCount       int      `json:"conflict_count"`
	FallbackAgents      []string `json:"fallback_agents,omitempty"`
	CoordinatorFallback bool     `json:"coordinator_fallback"`
	Budget              float64  `json:"budget"`
	Timeline            float64  `json:"timeline"`
	Quality             float64  `json:"quality"`
	Risk                float64  `json:"risk"`
	DurationMS          int64    `json:"duration_ms"`
}

func (m *RoundCompleted) Category() string { return string(MessageCategoryEvent) }
func (m *RoundCompleted) Session() string  { return m.SessionID }

// NegotiationConverged is emitted once, when a session reaches its terminal state.
type NegotiationConverged struct {
	SessionID  string `json:"session_id"`
	Rounds     int    `json:"rounds"`
	Summary    string `json:"summary"`
	Confidence int    `json:"confidence"`
}

func (m *NegotiationConverged) Category() string { return string(MessageCategoryEvent) }
func (m *NegotiationConverged) Session() string  { return m.SessionID }

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsTerminalEvent reports whether no further round events follow eventType
// for the same session.
func IsTerminalEvent(eventType string) bool {
	return eventType == TypeNegotiationConverged || eventType == TypeSessionClosed
}

// GetMessageType returns the type name of a message for routing.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *SessionCreated:
		return TypeSessionCreated
	case *SessionClosed:
		return TypeSessionClosed
	case *RoundStarted:
		return TypeRoundStarted
	case *AgentEvaluated:
		return TypeAgentEvaluated
	case *RoundCompleted:
		return TypeRoundCompleted
	case *NegotiationConverged:
		return TypeNegotiationConverged
	default:
		return "Unknown"
	}
}

var (
	_ SessionEvent = (*SessionCreated)(nil)
	_ SessionEvent = (*SessionClosed)(nil)
	_ SessionEvent = (*RoundStarted)(nil)
	_ SessionEvent = (*AgentEvaluated)(nil)
	_ SessionEvent = (*RoundCompleted)(nil)
	_ SessionEvent = (*NegotiationConverged)(nil)
)
