// Package kernel owns negotiation sessions.
//
// Key concepts:
//   - SessionState: lifecycle of a session (idle -> active -> converged -> closed)
//   - Session: one negotiation engine plus its bookkeeping
//   - RateLimiter: sliding window limits for API clients and providers
package kernel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("kernel: session not found")
	// ErrSessionClosed is returned when a closed session is asked to run.
	ErrSessionClosed = errors.New("kernel: session closed")
	// ErrTooManySessions is returned when MaxSessions is reached.
	ErrTooManySessions = errors.New("kernel: session limit reached")
	// ErrInvalidScenario wraps scenario validation failures on CreateSession.
	ErrInvalidScenario = errors.New("kernel: invalid scenario")
)

// =============================================================================
// Session States
// =============================================================================

// SessionState represents the lifecycle state of a session.
// State transitions:
//
//	IDLE -> ACTIVE -> CONVERGED
//	any  -> CLOSED
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateActive    SessionState = "active"
	SessionStateConverged SessionState = "converged"
	SessionStateClosed    SessionState = "closed"
)

// IsTerminal returns true if no further rounds may run.
func (s SessionState) IsTerminal() bool {
	return s == SessionStateConverged || s == SessionStateClosed
}

var validTransitions = map[SessionState]map[SessionState]bool{
	SessionStateIdle: {
		SessionStateActive: true,
		SessionStateClosed: true,
	},
	SessionStateActive: {
		SessionStateConverged: true,
		SessionStateClosed:    true,
	},
	SessionStateConverged: {
		SessionStateClosed: true,
	},
	SessionStateClosed: {}, // Terminal state
}

// IsValidTransition checks if a session state transition is valid.
func IsValidTransition(from, to SessionState) bool {
	if targets, ok := validTransitions[from]; ok {
		return targets[to]
	}
	return false
}

func stateFromEngine(s negotiation.State) SessionState {
	switch s {
	case negotiation.StateActive:
		return SessionStateActive
	case negotiation.StateConverged:
		return SessionStateConverged
	default:
		return SessionStateIdle
	}
}

// =============================================================================
// Session
// =============================================================================

// Session is one negotiation owned by the kernel.
type Session struct {
	id        string
	engine    *negotiation.Engine
	createdAt time.Time

	// closeCtx is cancelled when the session closes, which stops auto-negotiation.
	closeCtx   context.Context
	closeFn    context.CancelFunc
	closed     bool
	closedAt   time.Time
	lastActive time.Time
	mu         sync.RWMutex
}

func newSession(id string, engine *negotiation.Engine, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		engine:     engine,
		createdAt:  now,
		closeCtx:   ctx,
		closeFn:    cancel,
		lastActive: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Engine returns the negotiation engine.
func (s *Session) Engine() *negotiation.Engine { return s.engine }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return SessionStateClosed
	}
	return stateFromEngine(s.engine.State())
}

// close marks the session closed. Returns false if it already was.
func (s *Session) close(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.closedAt = now
	s.closeFn()
	return true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = now
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.closedAt
	}
	return s.lastActive
}

// Info returns a summary row for listings.
func (s *Session) Info() SessionInfo {
	scn := s.engine.Scenario()
	return SessionInfo{
		ID:         s.id,
		Title:      scn.Title,
		Module:     scn.Module,
		State:      s.State(),
		Round:      s.engine.Round(),
		Confidence: s.engine.ConfidenceScore(),
		CreatedAt:  s.createdAt,
		LastActive: s.idleSince(),
	}
}

// SessionInfo is the listing view of a session.
type SessionInfo struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	Module     scenario.ModuleKind `json:"module"`
	State      SessionState        `json:"state"`
	Round      int                 `json:"round"`
	Confidence int                 `json:"confidence"`
	CreatedAt  time.Time           `json:"created_at"`
	LastActive time.Time           `json:"last_active"`
}
