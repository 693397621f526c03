package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/config"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/observability"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// =============================================================================
// Kernel Configuration
// =============================================================================

// KernelConfig configures the kernel.
type KernelConfig struct {
	// Engine settings for every new session
	Negotiation *config.NegotiationConfig `json:"negotiation"`
	// Default rate limit for API clients
	DefaultRateLimit *RateLimitConfig `json:"default_rate_limit"`
	// MaxSessions caps live sessions (0 = unlimited)
	MaxSessions int `json:"max_sessions"`
}

// DefaultKernelConfig returns default kernel configuration.
func DefaultKernelConfig() *KernelConfig {
	return &KernelConfig{
		Negotiation:      config.GetNegotiationConfig(),
		DefaultRateLimit: DefaultRateLimitConfig(),
	}
}

// =============================================================================
// Kernel
// =============================================================================

// Kernel owns negotiation sessions and the shared bus their events go to.
//
// Usage:
//
//	k := NewKernel(logger, bus, nil)
//	sess, err := k.CreateSession(scn, oracle)
//	result, err := k.EvaluateRound(ctx, sess.ID())
//	defer k.Shutdown(ctx)
type Kernel struct {
	config      *KernelConfig
	logger      logging.Logger
	bus         commbus.CommBus
	rateLimiter *RateLimiter
	now         func() time.Time

	sessions  map[string]*Session
	startedAt time.Time
	mu        sync.RWMutex
}

// NewKernel creates a kernel. A nil bus disables events, a nil config uses
// DefaultKernelConfig.
func NewKernel(logger logging.Logger, bus commbus.CommBus, cfg *KernelConfig) *Kernel {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg == nil {
		cfg = DefaultKernelConfig()
	}
	if cfg.Negotiation == nil {
		cfg.Negotiation = config.GetNegotiationConfig()
	}

	k := &Kernel{
		config:      cfg,
		logger:      logger.Bind("component", "kernel"),
		bus:         bus,
		rateLimiter: NewRateLimiter(cfg.DefaultRateLimit),
		now:         time.Now,
		sessions:    make(map[string]*Session),
		startedAt:   time.Now().UTC(),
	}

	k.logger.Info("kernel_initialized",
		"max_sessions", cfg.MaxSessions,
		"comparison_round_cap", cfg.Negotiation.ComparisonRoundCap,
	)
	return k
}

// WithClock replaces the time source of the kernel and its rate limiter.
func (k *Kernel) WithClock(now func() time.Time) *Kernel {
	k.now = now
	k.rateLimiter.WithClock(now)
	return k
}

// Bus returns the event bus, which may be nil.
func (k *Kernel) Bus() commbus.CommBus {
	return k.bus
}

// RateLimiter returns the rate limiter.
func (k *Kernel) RateLimiter() *RateLimiter {
	return k.rateLimiter
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// CreateSession validates scn and registers a new idle session driven by oracle.
// Extra options are applied after the kernel's own.
func (k *Kernel) CreateSession(scn *scenario.Scenario, oracle negotiation.Oracle, opts ...negotiation.Option) (*Session, error) {
	if scn == nil {
		return nil, fmt.Errorf("%w: scenario is required", ErrInvalidScenario)
	}
	probe := scn.Clone()
	probe.Normalize()
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	id := uuid.New().String()

	base := []negotiation.Option{
		negotiation.WithSessionID(id),
		negotiation.WithLogger(k.logger),
		negotiation.WithConfig(k.config.Negotiation),
	}
	if k.bus != nil {
		base = append(base, negotiation.WithBus(k.bus))
	}
	engine, err := negotiation.NewEngine(scn, oracle, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	if k.config.MaxSessions > 0 && k.liveCountLocked() >= k.config.MaxSessions {
		k.mu.Unlock()
		return nil, ErrTooManySessions
	}
	sess := newSession(engine.SessionID(), engine, k.now())
	k.sessions[sess.id] = sess
	count := len(k.sessions)
	k.mu.Unlock()

	observability.SetActiveSessions(count)

	own := engine.Scenario()
	k.logger.Info("session_created",
		"session_id", sess.id,
		"module", string(own.Module),
		"vendors", len(own.Vendors),
	)
	k.publish(&commbus.SessionCreated{
		SessionID: sess.id,
		Title:     own.Title,
		Module:    string(own.Module),
		Vendors:   len(own.Vendors),
	})
	return sess, nil
}

func (k *Kernel) liveCountLocked() int {
	n := 0
	for _, s := range k.sessions {
		if s.State() != SessionStateClosed {
			n++
		}
	}
	return n
}

// GetSession returns a session by id.
func (k *Kernel) GetSession(id string) (*Session, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	sess, ok := k.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// ListSessions returns sessions ordered by creation time. A nil state lists all.
func (k *Kernel) ListSessions(state *SessionState) []SessionInfo {
	k.mu.RLock()
	sessions := make([]*Session, 0, len(k.sessions))
	for _, s := range k.sessions {
		sessions = append(sessions, s)
	}
	k.mu.RUnlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := s.Info()
		if state != nil && info.State != *state {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseSession stops a session. Rounds and auto-negotiation on it end with
// ErrSessionClosed; its transcript stays readable until deleted or cleaned up.
func (k *Kernel) CloseSession(id string) error {
	sess, err := k.GetSession(id)
	if err != nil {
		return err
	}
	if !IsValidTransition(sess.State(), SessionStateClosed) || !sess.close(k.now()) {
		return fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}

	rounds := sess.engine.Round()
	k.logger.Info("session_closed", "session_id", id, "rounds", rounds)
	k.publish(&commbus.SessionClosed{SessionID: id, Rounds: rounds})
	return nil
}

// DeleteSession closes (if needed) and removes a session.
func (k *Kernel) DeleteSession(id string) error {
	sess, err := k.GetSession(id)
	if err != nil {
		return err
	}
	if sess.State() != SessionStateClosed {
		if err := k.CloseSession(id); err != nil {
			return err
		}
	}

	k.mu.Lock()
	delete(k.sessions, id)
	count := len(k.sessions)
	k.mu.Unlock()

	observability.SetActiveSessions(count)
	k.logger.Debug("session_deleted", "session_id", id)
	return nil
}

// =============================================================================
// Rounds
// =============================================================================

// EvaluateRound runs one round on session id.
func (k *Kernel) EvaluateRound(ctx context.Context, id string) (*negotiation.RoundResult, error) {
	sess, err := k.GetSession(id)
	if err != nil {
		return nil, err
	}
	return k.step(ctx, sess)
}

func (k *Kernel) step(ctx context.Context, sess *Session) (*negotiation.RoundResult, error) {
	if sess.State() == SessionStateClosed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sess.id)
	}
	result, err := sess.engine.EvaluateRound(ctx)
	if err != nil {
		return nil, err
	}
	sess.touch(k.now())
	return result, nil
}

type stepFunc func(ctx context.Context) (*negotiation.RoundResult, error)

func (f stepFunc) EvaluateRound(ctx context.Context) (*negotiation.RoundResult, error) {
	return f(ctx)
}

// AutoNegotiate runs rounds on session id at the configured interval until
// convergence, the configured round cap, ctx cancellation or session close.
func (k *Kernel) AutoNegotiate(ctx context.Context, id string, onRound func(*negotiation.RoundResult) error) (*negotiation.RoundResult, error) {
	sess, err := k.GetSession(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.closeCtx, cancel)
	defer stop()

	cfg := k.config.Negotiation
	k.logger.Info("auto_negotiate_started",
		"session_id", id,
		"interval_ms", cfg.AutoNegotiateIntervalMS,
		"max_rounds", cfg.AutoNegotiateMaxRounds,
	)

	last, err := negotiation.AutoNegotiate(ctx, stepFunc(func(ctx context.Context) (*negotiation.RoundResult, error) {
		return k.step(ctx, sess)
	}), cfg.AutoNegotiateInterval(), cfg.AutoNegotiateMaxRounds, onRound)

	if err != nil && sess.State() == SessionStateClosed {
		err = fmt.Errorf("%w: %s", ErrSessionClosed, id)
	}
	return last, err
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records a request from clientID on endpoint and reports
// whether it is within limits.
func (k *Kernel) CheckRateLimit(clientID, endpoint string) *RateLimitResult {
	result := k.rateLimiter.Allow(clientID, endpoint)
	if !result.Allowed {
		k.logger.Warn("rate_limit_exceeded",
			"client_id", clientID,
			"endpoint", endpoint,
			"limit_type", result.LimitType,
			"retry_after_ms", result.RetryAfter.Milliseconds(),
		)
	}
	return result
}

// =============================================================================
// Events
// =============================================================================

func (k *Kernel) publish(event commbus.Message) {
	if k.bus == nil || !k.config.Negotiation.PublishEvents {
		return
	}
	if err := k.bus.Publish(context.Background(), event); err != nil {
		k.logger.Warn("event_publish_failed",
			"event_type", commbus.GetMessageType(event),
			"error", err.Error(),
		)
	}
}

// =============================================================================
// System Status
// =============================================================================

// GetSystemStatus returns overall kernel status.
func (k *Kernel) GetSystemStatus() map[string]any {
	byState := make(map[string]int)
	for _, info := range k.ListSessions(nil) {
		byState[string(info.State)]++
	}

	return map[string]any{
		"sessions": map[string]any{
			"total":    k.SessionCount(),
			"by_state": byState,
		},
		"rate_limit_windows": k.rateLimiter.WindowCount(),
		"uptime_seconds":     time.Since(k.startedAt).Seconds(),
	}
}

// SessionCount returns the number of registered sessions.
func (k *Kernel) SessionCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.sessions)
}

// =============================================================================
// Shutdown
// =============================================================================

// ShutdownError aggregates multiple errors that occurred during shutdown.
type ShutdownError struct {
	Errors []error
}

// Error returns a string representation of the shutdown errors.
func (e *ShutdownError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("shutdown error: %v", e.Errors[0])
	}
	return fmt.Sprintf("shutdown completed with %d errors", len(e.Errors))
}

// Unwrap returns the aggregated errors for errors.Is/As.
func (e *ShutdownError) Unwrap() []error {
	return e.Errors
}

// Shutdown closes every open session.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.logger.Info("kernel_shutdown_initiated")

	var errs []error
	for _, info := range k.ListSessions(nil) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown cancelled: %w", err))
			break
		}
		if info.State == SessionStateClosed {
			continue
		}
		if err := k.CloseSession(info.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", info.ID, err))
		}
	}

	k.logger.Info("kernel_shutdown_completed", "errors", len(errs))
	if len(errs) > 0 {
		return &ShutdownError{Errors: errs}
	}
	return nil
}
