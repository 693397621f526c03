package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
)

// Groq defaults.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	APIKeyEnv      = "GROQ_API_KEY"
)

// OpenAICompatible calls an OpenAI-compatible /chat/completions endpoint.
type OpenAICompatible struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  logging.Logger
}

// OpenAIOption configures an OpenAICompatible provider.
type OpenAIOption func(*OpenAICompatible)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(p *OpenAICompatible) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) OpenAIOption {
	return func(p *OpenAICompatible) { p.apiKey = key }
}

// WithDefaultModel sets the model used when Generate receives an empty one.
func WithDefaultModel(model string) OpenAIOption {
	return func(p *OpenAICompatible) { p.model = model }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAICompatible) { p.client = c }
}

// WithProviderName sets the name used in metrics and errors.
func WithProviderName(name string) OpenAIOption {
	return func(p *OpenAICompatible) { p.name = name }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) OpenAIOption {
	return func(p *OpenAICompatible) { p.logger = logger }
}

// NewOpenAICompatible creates a provider with Groq defaults. The API key
// falls back to GROQ_API_KEY.
func NewOpenAICompatible(opts ...OpenAIOption) *OpenAICompatible {
	p := &OpenAICompatible{
		name:    "groq",
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.apiKey == "" {
		p.apiKey = os.Getenv(APIKeyEnv)
	}
	p.logger = p.logger.Bind("provider", p.name)
	return p
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements Provider.
func (p *OpenAICompatible) Generate(ctx context.Context, model string, prompt string, options map[string]any) (text string, err error) {
	if model == "" {
		model = p.model
	}
	start := time.Now()
	defer func() { recordCall(p.name, model, start, err) }()

	req := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if t, ok := floatOption(options, "temperature"); ok {
		req.Temperature = &t
	}
	if n, ok := intOption(options, "max_tokens"); ok {
		req.MaxTokens = n
	}
	if boolOption(options, "json_mode") {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("llm_api_error", "model", model, "status", resp.StatusCode)
		return "", &APIError{Provider: p.name, Status: resp.StatusCode, Body: string(raw)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	p.logger.Debug("llm_call_completed", "model", model, "duration_ms", time.Since(start).Milliseconds())
	return decoded.Choices[0].Message.Content, nil
}

var _ Provider = (*OpenAICompatible)(nil)
