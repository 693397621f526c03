// Package oracle implements the reasoning oracle behind negotiation.Oracle:
// an LLM-backed oracle, a commbus-routed oracle and an always-unavailable
// oracle for offline runs.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

// LLMProvider generates text from a prompt.
type LLMProvider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// temporary is implemented by provider errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

// Config tunes an LLMOracle.
type Config struct {
	Model           string
	MaxRetries      int
	InitialInterval time.Duration
	Temperature     float64
}

// DefaultConfig returns the oracle defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		Temperature:     0.3,
	}
}

// LLMOracle asks an LLM to play each agent and the coordinator.
type LLMOracle struct {
	provider LLMProvider
	config   Config
	logger   logging.Logger
}

// NewLLMOracle creates an oracle over provider. A nil logger discards output.
func NewLLMOracle(provider LLMProvider, cfg Config, logger logging.Logger) *LLMOracle {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultConfig().InitialInterval
	}
	return &LLMOracle{
		provider: provider,
		config:   cfg,
		logger:   logger.Bind("component", "llm_oracle"),
	}
}

// EvaluateAgent implements negotiation.Oracle.
func (o *LLMOracle) EvaluateAgent(ctx context.Context, req negotiation.AgentRequest) (agents.Response, error) {
	prompt, err := AgentPrompt(req)
	if err != nil {
		return agents.Response{}, err
	}
	text, err := o.generate(ctx, "agent:"+string(req.Role), prompt)
	if err != nil {
		return agents.Response{}, err
	}
	resp, err := ParseAgentResponse(text)
	if err != nil {
		o.logger.Warn("agent_response_malformed", "role", string(req.Role), "error", err.Error())
		return agents.Response{}, err
	}
	resp.Round = req.Round
	return resp, nil
}

// SynthesizeRound implements negotiation.Oracle.
func (o *LLMOracle) SynthesizeRound(ctx context.Context, req negotiation.CoordinatorRequest) (negotiation.Verdict, error) {
	prompt, err := CoordinatorPrompt(req)
	if err != nil {
		return negotiation.Verdict{}, err
	}
	text, err := o.generate(ctx, "coordinator", prompt)
	if err != nil {
		return negotiation.Verdict{}, err
	}
	verdict, err := ParseVerdict(text)
	if err != nil {
		o.logger.Warn("coordinator_response_malformed", "round", req.Round, "error", err.Error())
		return negotiation.Verdict{}, err
	}
	return verdict, nil
}

// generate calls the provider, retrying temporary failures with exponential backoff.
func (o *LLMOracle) generate(ctx context.Context, kind, prompt string) (string, error) {
	options := map[string]any{
		"json_mode":   true,
		"temperature": o.config.Temperature,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.config.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(o.config.MaxRetries, 0))), ctx)

	attempt := 0
	var text string
	op := func() error {
		attempt++
		out, err := o.provider.Generate(ctx, o.config.Model, prompt, options)
		if err == nil {
			text = out
			return nil
		}
		if ctx.Err() != nil || !isTemporary(err) {
			return backoff.Permanent(err)
		}
		o.logger.Debug("llm_retry", "kind", kind, "attempt", attempt, "error", err.Error())
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		o.logger.Warn("llm_call_failed", "kind", kind, "attempts", attempt, "error", err.Error())
		return "", err
	}
	return text, nil
}

func isTemporary(err error) bool {
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	// Unclassified transport errors are worth one more try.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// =============================================================================
// UNAVAILABLE
// =============================================================================

// Unavailable fails every call, so negotiations run on the fallback rules only.
type Unavailable struct{}

func (Unavailable) EvaluateAgent(context.Context, negotiation.AgentRequest) (agents.Response, error) {
	return agents.Response{}, negotiation.ErrOracleUnavailable
}

func (Unavailable) SynthesizeRound(context.Context, negotiation.CoordinatorRequest) (negotiation.Verdict, error) {
	return negotiation.Verdict{}, negotiation.ErrOracleUnavailable
}

var (
	_ negotiation.Oracle = (*LLMOracle)(nil)
	_ negotiation.Oracle = Unavailable{}
)
