package llm

import (
	"context"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/observability"
)

// RateLimited caps the request rate of a provider with the kernel's sliding
// window limiter.
type RateLimited struct {
	inner   Provider
	name    string
	limiter *kernel.RateLimiter
}

// NewRateLimited wraps inner with a limit of perMinute requests. A
// non-positive perMinute returns inner unchanged.
func NewRateLimited(inner Provider, name string, perMinute int) Provider {
	if perMinute <= 0 {
		return inner
	}
	return NewRateLimitedWith(inner, name, kernel.NewRateLimiter(&kernel.RateLimitConfig{RequestsPerMinute: perMinute}))
}

// NewRateLimitedWith wraps inner with an existing limiter.
func NewRateLimitedWith(inner Provider, name string, limiter *kernel.RateLimiter) *RateLimited {
	return &RateLimited{inner: inner, name: name, limiter: limiter}
}

// Generate implements Provider.
func (r *RateLimited) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	result := r.limiter.Allow(r.name, "generate")
	if !result.Allowed {
		observability.RecordLLMCall(r.name, model, "rate_limited", 0)
		return "", &RateLimitError{Provider: r.name, LimitType: result.LimitType, RetryAfter: result.RetryAfter}
	}
	return r.inner.Generate(ctx, model, prompt, options)
}

var _ Provider = (*RateLimited)(nil)
