package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Gemini defaults.
const (
	DefaultGeminiModel = "gemini-1.5-flash"
	GeminiAPIKeyEnv    = "GEMINI_API_KEY"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the public one.
	BaseURL string
}

// Gemini generates text through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini provider. The API key falls back to GEMINI_API_KEY.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(GeminiAPIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %s is not set", GeminiAPIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate implements Provider. max_tokens is ignored. A "schema" option (*genai.Schema) requests
// structured output.
func (g *Gemini) Generate(ctx context.Context, model string, prompt string, options map[string]any) (text string, err error) {
	if model == "" {
		model = g.model
	}
	start := time.Now()
	defer func() { recordCall("gemini", model, start, err) }()

	cfg := &genai.GenerateContentConfig{}
	if boolOption(options, "json_mode") {
		cfg.ResponseMIMEType = "application/json"
	}
	if schema, ok := options["schema"].(*genai.Schema); ok {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	if t, ok := floatOption(options, "temperature"); ok {
		cfg.Temperature = genai.Ptr(float32(t))
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text = resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

var _ Provider = (*Gemini)(nil)
