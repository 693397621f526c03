// Package llm provides LLM providers for the reasoning oracle: an
// OpenAI-compatible chat completions client (Groq by default), a Gemini
// client and a rate-limited wrapper.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/observability"
)

// Provider generates text from a prompt. Options understood by every
// provider: "json_mode" (bool), "temperature" (float64), "max_tokens" (int).
type Provider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.Status, body)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}

// RateLimitError is returned when the local request budget is exhausted.
// It is not temporary: the caller falls back instead of waiting.
type RateLimitError struct {
	Provider   string
	LimitType  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (%s), retry after %s", e.Provider, e.LimitType, e.RetryAfter)
}

func (e *RateLimitError) Temporary() bool { return false }

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("llm: empty response")

func recordCall(provider, model string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordLLMCall(provider, model, status, int(time.Since(start).Milliseconds()))
}

func boolOption(options map[string]any, key string) bool {
	v, _ := options[key].(bool)
	return v
}

func floatOption(options map[string]any, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intOption(options map[string]any, key string) (int, bool) {
	switch v := options[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
