package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// OracleConfig selects and tunes the reasoning oracle backend.
type OracleConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // groq, openai, gemini, offline
	Model    string `json:"model" mapstructure:"model"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	APIKey   string `json:"-" mapstructure:"api_key"`

	MaxRetries             int `json:"max_retries" mapstructure:"max_retries"`
	RetryInitialIntervalMS int `json:"retry_initial_interval_ms" mapstructure:"retry_initial_interval_ms"`
	RequestsPerMinute      int `json:"requests_per_minute" mapstructure:"requests_per_minute"` // 0 = unlimited

	// Bus routing
	QueryTimeout            int `json:"query_timeout" mapstructure:"query_timeout"` // seconds
	CircuitBreakerThreshold int `json:"circuit_breaker_threshold" mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerReset     int `json:"circuit_breaker_reset" mapstructure:"circuit_breaker_reset"` // seconds
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	GRPCAddr        string `json:"grpc_addr" mapstructure:"grpc_addr"`
	HTTPAddr        string `json:"http_addr" mapstructure:"http_addr"`
	OTLPEndpoint    string `json:"otlp_endpoint" mapstructure:"otlp_endpoint"` // empty disables tracing
	ServiceName     string `json:"service_name" mapstructure:"service_name"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// Config is the full application configuration.
type Config struct {
	Negotiation NegotiationConfig `json:"negotiation" mapstructure:"negotiation"`
	Oracle      OracleConfig      `json:"oracle" mapstructure:"oracle"`
	Server      ServerConfig      `json:"server" mapstructure:"server"`
	LogLevel    string            `json:"log_level" mapstructure:"log_level"`
	LogFormat   string            `json:"log_format" mapstructure:"log_format"`
}

// Provider defaults.
const (
	ProviderGroq    = "groq"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderOffline = "offline"

	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-4o-mini"
	EnvPrefix          = "CONSENSUS"

	groqAPIKeyEnv   = "GROQ_API_KEY"
	geminiAPIKeyEnv = "GEMINI_API_KEY"
	openAIAPIKeyEnv = "OPENAI_API_KEY"
)

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Negotiation: *DefaultNegotiationConfig(),
		Oracle: OracleConfig{
			Provider:                ProviderGroq,
			Model:                   DefaultGroqModel,
			BaseURL:                 DefaultGroqBaseURL,
			MaxRetries:              2,
			RetryInitialIntervalMS:  500,
			RequestsPerMinute:       30,
			QueryTimeout:            60,
			CircuitBreakerThreshold: 5,
			CircuitBreakerReset:     60,
		},
		Server: ServerConfig{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8080",
			ServiceName:     "consensusai",
			ShutdownTimeout: 10,
		},
		LogLevel:  "INFO",
		LogFormat: "json",
	}
}

// QueryTimeoutDuration returns the bus query timeout.
func (c *OracleConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// CircuitBreakerResetDuration returns the breaker reset window.
func (c *OracleConfig) CircuitBreakerResetDuration() time.Duration {
	return time.Duration(c.CircuitBreakerReset) * time.Second
}

// RetryInitialInterval returns the first backoff interval.
func (c *OracleConfig) RetryInitialInterval() time.Duration {
	return time.Duration(c.RetryInitialIntervalMS) * time.Millisecond
}

// ResolveAPIKey returns the configured key or the provider's conventional
// environment variable.
func (c *OracleConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case ProviderGroq:
		return os.Getenv(groqAPIKeyEnv)
	case ProviderGemini:
		return os.Getenv(geminiAPIKeyEnv)
	case ProviderOpenAI:
		return os.Getenv(openAIAPIKeyEnv)
	}
	return ""
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Negotiation.Validate(); err != nil {
		return fmt.Errorf("negotiation: %w", err)
	}
	switch c.Oracle.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderOffline:
	default:
		return fmt.Errorf("oracle: unknown provider %q", c.Oracle.Provider)
	}
	if c.Oracle.MaxRetries < 0 {
		return errors.New("oracle: max_retries must be >= 0")
	}
	if c.Oracle.QueryTimeout <= 0 {
		return errors.New("oracle: query_timeout must be positive")
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from an optional file plus CONSENSUS_* environment
// variables (nested keys use underscores, e.g. CONSENSUS_ORACLE_PROVIDER).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Oracle.applyProviderDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetProvider switches the oracle provider after loading, applying the new
// provider's defaults.
func (c *Config) SetProvider(provider string) error {
	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(provider))
	c.Oracle.applyProviderDefaults()
	return c.Validate()
}

// applyProviderDefaults swaps the Groq model and URL defaults for the chosen
// provider's own. Explicit values are kept.
func (c *OracleConfig) applyProviderDefaults() {
	switch c.Provider {
	case ProviderGemini:
		if c.Model == DefaultGroqModel {
			c.Model = DefaultGeminiModel
		}
		if c.BaseURL == DefaultGroqBaseURL {
			c.BaseURL = ""
		}
	case ProviderOpenAI:
		if c.Model == DefaultGroqModel {
			c.Model = DefaultOpenAIModel
		}
		if c.BaseURL == DefaultGroqBaseURL {
			c.BaseURL = DefaultOpenAIURL
		}
	}
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	for k, val := range d.Negotiation.ToMap() {
		v.SetDefault("negotiation."+k, val)
	}

	v.SetDefault("oracle.provider", d.Oracle.Provider)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.base_url", d.Oracle.BaseURL)
	v.SetDefault("oracle.api_key", d.Oracle.APIKey)
	v.SetDefault("oracle.max_retries", d.Oracle.MaxRetries)
	v.SetDefault("oracle.retry_initial_interval_ms", d.Oracle.RetryInitialIntervalMS)
	v.SetDefault("oracle.requests_per_minute", d.Oracle.RequestsPerMinute)
	v.SetDefault("oracle.query_timeout", d.Oracle.QueryTimeout)
	v.SetDefault("oracle.circuit_breaker_threshold", d.Oracle.CircuitBreakerThreshold)
	v.SetDefault("oracle.circuit_breaker_reset", d.Oracle.CircuitBreakerReset)

	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.otlp_endpoint", d.Server.OTLPEndpoint)
	v.SetDefault("server.service_name", d.Server.ServiceName)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}
