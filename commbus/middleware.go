package commbus

import (
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all message traffic at debug level and failures at warn.
type LoggingMiddleware struct {
	logger logging.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LoggingMiddleware{logger: logger.Bind("component", "commbus")}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.logger.Debug("message_received",
		"category", message.Category(),
		"message_type", GetMessageType(message),
	)
	return message, nil
}

// After logs message completion.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	msgType := GetMessageType(message)
	if err != nil {
		m.logger.Warn("message_failed", "message_type", msgType, "error", err.Error())
	} else {
		m.logger.Debug("message_completed", "message_type", msgType)
	}
	return result, nil
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

// Circuit states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
)

// CircuitBreakerState is the breaker state for one query type.
type CircuitBreakerState struct {
	Failures    int
	LastFailure time.Time
	State       string
}

// CircuitBreakerMiddleware trips per query type after consecutive failures.
//
// While open, queries fail fast with *CircuitOpenError. After resetTimeout a
// single probe is let through (half-open); success closes the circuit, failure
// reopens it. Events are never blocked.
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	excludedTypes    map[string]struct{}
	states           map[string]*CircuitBreakerState
	now              func() time.Time
	logger           logging.Logger
	mu               sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware.
// A threshold of 0 disables tripping.
func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, excludedTypes []string, logger logging.Logger) *CircuitBreakerMiddleware {
	excluded := make(map[string]struct{})
	for _, t := range excludedTypes {
		excluded[t] = struct{}{}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excludedTypes:    excluded,
		states:           make(map[string]*CircuitBreakerState),
		now:              time.Now,
		logger:           logger.Bind("component", "circuit_breaker"),
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *CircuitBreakerMiddleware) WithClock(now func() time.Time) *CircuitBreakerMiddleware {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *CircuitBreakerMiddleware) getState(msgType string) *CircuitBreakerState {
	if _, exists := m.states[msgType]; !exists {
		m.states[msgType] = &CircuitBreakerState{State: CircuitClosed}
	}
	return m.states[msgType]
}

func (m *CircuitBreakerMiddleware) applies(message Message) (string, bool) {
	if message.Category() != string(MessageCategoryQuery) {
		return "", false
	}
	msgType := GetMessageType(message)
	if _, excluded := m.excludedTypes[msgType]; excluded {
		return "", false
	}
	return msgType, true
}

// Before rejects queries while their circuit is open.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType, ok := m.applies(message)
	if !ok {
		return message, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)
	if state.State == CircuitOpen {
		elapsed := m.now().Sub(state.LastFailure)
		if elapsed < m.resetTimeout {
			return nil, &CircuitOpenError{MessageType: msgType, RetryAfter: m.resetTimeout - elapsed}
		}
		state.State = CircuitHalfOpen
		m.logger.Info("circuit_half_open", "message_type", msgType)
	}

	return message, nil
}

// After updates the circuit from the handler outcome.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, result any, err error) (any, error) {
	msgType, ok := m.applies(message)
	if !ok {
		return result, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.getState(msgType)

	if err != nil {
		state.Failures++
		state.LastFailure = m.now()

		switch {
		case state.State == CircuitHalfOpen:
			state.State = CircuitOpen
			m.logger.Warn("circuit_reopened", "message_type", msgType)
		case m.failureThreshold > 0 && state.Failures >= m.failureThreshold && state.State != CircuitOpen:
			state.State = CircuitOpen
			m.logger.Warn("circuit_opened", "message_type", msgType, "failures", state.Failures)
		}
		return result, nil
	}

	if state.State == CircuitHalfOpen {
		m.logger.Info("circuit_closed", "message_type", msgType)
	}
	state.State = CircuitClosed
	state.Failures = 0
	return result, nil
}

// GetStates returns the current state per query type.
func (m *CircuitBreakerMiddleware) GetStates() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]string, len(m.states))
	for k, v := range m.states {
		result[k] = v.State
	}
	return result
}

// Reset clears the state of one query type, or all when msgType is empty.
func (m *CircuitBreakerMiddleware) Reset(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msgType != "" {
		delete(m.states, msgType)
	} else {
		m.states = make(map[string]*CircuitBreakerState)
	}
}

var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
