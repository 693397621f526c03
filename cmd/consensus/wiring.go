package main

import (
	"context"
	"fmt"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/config"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/llm"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/oracle"
)

// engineStack is the kernel and the oracle its sessions use. Oracle calls go
// through the bus so its timeout, logging and circuit breaker apply.
type engineStack struct {
	bus      *commbus.InMemoryCommBus
	kernel   *kernel.Kernel
	oracle   negotiation.Oracle
	provider llm.Provider // nil when offline
}

func newEngineStack(ctx context.Context, cfg *config.Config, logger logging.Logger) (*engineStack, error) {
	provider, err := newProvider(ctx, cfg.Oracle, logger)
	if err != nil {
		return nil, err
	}

	var backend negotiation.Oracle = oracle.Unavailable{}
	if provider != nil {
		ocfg := oracle.DefaultConfig()
		ocfg.Model = cfg.Oracle.Model
		ocfg.MaxRetries = cfg.Oracle.MaxRetries
		ocfg.InitialInterval = cfg.Oracle.RetryInitialInterval()
		backend = oracle.NewLLMOracle(provider, ocfg, logger)
	}

	bus := commbus.NewInMemoryCommBus(cfg.Oracle.QueryTimeoutDuration(), logger)
	bus.AddMiddleware(commbus.NewLoggingMiddleware(logger))
	bus.AddMiddleware(commbus.NewCircuitBreakerMiddleware(
		cfg.Oracle.CircuitBreakerThreshold,
		cfg.Oracle.CircuitBreakerResetDuration(),
		nil,
		logger,
	))
	if err := oracle.RegisterHandlers(bus, backend); err != nil {
		return nil, fmt.Errorf("failed to register oracle: %w", err)
	}

	neg := cfg.Negotiation
	k := kernel.NewKernel(logger, bus, &kernel.KernelConfig{
		Negotiation:      &neg,
		DefaultRateLimit: kernel.DefaultRateLimitConfig(),
	})

	logger.Info("engine_stack_ready", "oracle", cfg.Oracle.Provider, "model", cfg.Oracle.Model)
	return &engineStack{
		bus:      bus,
		kernel:   k,
		oracle:   oracle.NewBusOracle(bus),
		provider: provider,
	}, nil
}

// newProvider builds the rate limited LLM provider for oc. It returns nil
// for the offline provider.
func newProvider(ctx context.Context, oc config.OracleConfig, logger logging.Logger) (llm.Provider, error) {
	apiKey := oc.ResolveAPIKey()

	var p llm.Provider
	switch oc.Provider {
	case config.ProviderOffline:
		return nil, nil
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: apiKey, Model: oc.Model, BaseURL: oc.BaseURL})
		if err != nil {
			return nil, err
		}
		p = g
	default:
		if apiKey == "" {
			logger.Warn("oracle_api_key_missing", "provider", oc.Provider)
		}
		p = llm.NewOpenAICompatible(
			llm.WithProviderName(oc.Provider),
			llm.WithBaseURL(oc.BaseURL),
			llm.WithAPIKey(apiKey),
			llm.WithDefaultModel(oc.Model),
			llm.WithLogger(logger),
		)
	}
	return llm.NewRateLimited(p, oc.Provider, oc.RequestsPerMinute), nil
}

// newParser uses the provider for fact extraction when there is one.
func newParser(provider llm.Provider, model string, logger logging.Logger) *intake.Parser {
	if provider == nil {
		return intake.NewParser(nil, logger)
	}
	return intake.NewParser(intake.NewGeminiExtractor(provider, model), logger)
}
