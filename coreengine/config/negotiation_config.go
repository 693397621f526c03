// Package config provides negotiation configuration.
//
// NegotiationConfig holds only what the engine itself needs:
//   - Round caps
//   - Oracle call timeouts
//   - Fan-out limits
//   - Auto-negotiate cadence
//
// Provider endpoints and server addresses live in OracleConfig and
// ServerConfig; the engine never reads them.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/typeutil"
)

// NegotiationConfig holds engine configuration.
type NegotiationConfig struct {
	// Round Caps
	ComparisonRoundCap int `json:"comparison_round_cap" mapstructure:"comparison_round_cap"` // Forced convergence in vendor mode
	GeneralRoundCap    int `json:"general_round_cap" mapstructure:"general_round_cap"`       // 0 = unbounded

	// Timeouts (seconds)
	AgentTimeout       int `json:"agent_timeout" mapstructure:"agent_timeout"`
	CoordinatorTimeout int `json:"coordinator_timeout" mapstructure:"coordinator_timeout"`

	// Fan-out
	MaxParallelAgents int `json:"max_parallel_agents" mapstructure:"max_parallel_agents"`

	// Auto-negotiate
	AutoNegotiateIntervalMS int `json:"auto_negotiate_interval_ms" mapstructure:"auto_negotiate_interval_ms"`
	AutoNegotiateMaxRounds  int `json:"auto_negotiate_max_rounds" mapstructure:"auto_negotiate_max_rounds"` // 0 = until converged

	// Events
	PublishEvents bool `json:"publish_events" mapstructure:"publish_events"`
}

// DefaultNegotiationConfig returns a NegotiationConfig with default values.
func DefaultNegotiationConfig() *NegotiationConfig {
	return &NegotiationConfig{
		// Round Caps
		ComparisonRoundCap: 5,
		GeneralRoundCap:    0,

		// Timeouts (seconds)
		AgentTimeout:       30,
		CoordinatorTimeout: 45,

		// Fan-out
		MaxParallelAgents: 4,

		// Auto-negotiate
		AutoNegotiateIntervalMS: 8000,
		AutoNegotiateMaxRounds:  0,

		// Events
		PublishEvents: true,
	}
}

// AgentTimeoutDuration returns the per-agent oracle timeout.
func (c *NegotiationConfig) AgentTimeoutDuration() time.Duration {
	return time.Duration(c.AgentTimeout) * time.Second
}

// CoordinatorTimeoutDuration returns the coordinator oracle timeout.
func (c *NegotiationConfig) CoordinatorTimeoutDuration() time.Duration {
	return time.Duration(c.CoordinatorTimeout) * time.Second
}

// AutoNegotiateInterval returns the auto-negotiate tick.
func (c *NegotiationConfig) AutoNegotiateInterval() time.Duration {
	return time.Duration(c.AutoNegotiateIntervalMS) * time.Millisecond
}

// Validate checks ranges.
func (c *NegotiationConfig) Validate() error {
	if c.ComparisonRoundCap < 1 {
		return fmt.Errorf("comparison_round_cap must be >= 1, got %d", c.ComparisonRoundCap)
	}
	if c.GeneralRoundCap < 0 {
		return fmt.Errorf("general_round_cap must be >= 0, got %d", c.GeneralRoundCap)
	}
	if c.AgentTimeout <= 0 || c.CoordinatorTimeout <= 0 {
		return fmt.Errorf("oracle timeouts must be positive")
	}
	if c.MaxParallelAgents < 1 {
		return fmt.Errorf("max_parallel_agents must be >= 1, got %d", c.MaxParallelAgents)
	}
	if c.AutoNegotiateIntervalMS < 0 || c.AutoNegotiateMaxRounds < 0 {
		return fmt.Errorf("auto-negotiate settings must be non-negative")
	}
	return nil
}

// NegotiationConfigFromMap creates NegotiationConfig from a map.
// Unknown keys are ignored.
func NegotiationConfigFromMap(config map[string]any) *NegotiationConfig {
	c := DefaultNegotiationConfig()

	setInt := func(key string, dst *int) {
		if v, ok := typeutil.SafeInt(config[key]); ok {
			*dst = v
		}
	}
	setInt("comparison_round_cap", &c.ComparisonRoundCap)
	setInt("general_round_cap", &c.GeneralRoundCap)
	setInt("agent_timeout", &c.AgentTimeout)
	setInt("coordinator_timeout", &c.CoordinatorTimeout)
	setInt("max_parallel_agents", &c.MaxParallelAgents)
	setInt("auto_negotiate_interval_ms", &c.AutoNegotiateIntervalMS)
	setInt("auto_negotiate_max_rounds", &c.AutoNegotiateMaxRounds)

	if v, ok := typeutil.SafeBool(config["publish_events"]); ok {
		c.PublishEvents = v
	}
	return c
}

// ToMap converts the config to a map.
func (c *NegotiationConfig) ToMap() map[string]any {
	return map[string]any{
		"comparison_round_cap":       c.ComparisonRoundCap,
		"general_round_cap":          c.GeneralRoundCap,
		"agent_timeout":              c.AgentTimeout,
		"coordinator_timeout":        c.CoordinatorTimeout,
		"max_parallel_agents":        c.MaxParallelAgents,
		"auto_negotiate_interval_ms": c.AutoNegotiateIntervalMS,
		"auto_negotiate_max_rounds":  c.AutoNegotiateMaxRounds,
		"publish_events":             c.PublishEvents,
	}
}

// =============================================================================
// GLOBAL CONFIG (set by the CLI bootstrap)
// =============================================================================

var (
	globalNegotiationConfig *NegotiationConfig
	configMu                sync.RWMutex
)

// GetNegotiationConfig returns the injected config or defaults.
func GetNegotiationConfig() *NegotiationConfig {
	configMu.RLock()
	defer configMu.RUnlock()

	if globalNegotiationConfig == nil {
		return DefaultNegotiationConfig()
	}
	return globalNegotiationConfig
}

// SetNegotiationConfig sets the process-wide config.
func SetNegotiationConfig(config *NegotiationConfig) {
	configMu.Lock()
	defer configMu.Unlock()

	globalNegotiationConfig = config
}

// ResetNegotiationConfig clears the process-wide config (useful for testing).
func ResetNegotiationConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	globalNegotiationConfig = nil
}
