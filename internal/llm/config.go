package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix prefixes every LLM environment variable.
const EnvPrefix = "TUTORLOOP_"

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "anthropic", "openai", "gemini", "openrouter", "mock"
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// RequestsPerSecond throttles outgoing requests across all callers
	// sharing the provider. Zero disables throttling.
	RequestsPerSecond float64

	// Timeout is the maximum duration for a single LLM request
	// (including retries). Default: 60s.
	Timeout time.Duration
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string // Default: "claude-haiku"
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	BaseURL string // Optional. Override for compatible APIs.

	// LooseSchema requests json_object output and puts the schema in the
	// system prompt. For compatible servers without strict json_schema.
	LooseSchema bool
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey  string
	Model   string // Default: "gemini-flash"
	BaseURL string // Optional. Override for proxies and tests.
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey       string
	Model        string // Default: "google/gemini-2.0-flash-exp"
	BaseURL      string // Default: "https://openrouter.ai/api/v1"
	StrictSchema bool   // Use strict json_schema; only some routed models accept it.
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-exp",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 60 * time.Second,
	}
}

// ConfigFromEnv builds a Config from TUTORLOOP_* environment variables,
// falling back to defaults for unset values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	setString(&cfg.Provider, "LLM_PROVIDER")

	setString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "ANTHROPIC_MODEL")

	setString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setBool(&cfg.OpenAI.LooseSchema, "OPENAI_LOOSE_SCHEMA")

	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "GEMINI_MODEL")
	setString(&cfg.Gemini.BaseURL, "GEMINI_BASE_URL")

	setString(&cfg.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "OPENROUTER_MODEL")
	setString(&cfg.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	setBool(&cfg.OpenRouter.StrictSchema, "OPENROUTER_STRICT_SCHEMA")

	if v := os.Getenv(EnvPrefix + "LLM_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv(EnvPrefix + "LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(os.Getenv(EnvPrefix + key)); err == nil {
		*dst = b
	}
}

// DiscoverConfig probes standard API key env vars in priority order
// (OpenAI → Gemini → Anthropic → OpenRouter) and returns a Config for the
// first provider whose key is found. Returns (Config{}, false) if none found.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		cfg.Provider = "openai"
		cfg.OpenAI.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		cfg.Provider = "gemini"
		cfg.Gemini.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Provider = "anthropic"
		cfg.Anthropic.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		cfg.Provider = "openrouter"
		cfg.OpenRouter.APIKey = k
		return cfg, true
	}

	return Config{}, false
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("%sANTHROPIC_API_KEY is required for the anthropic provider", EnvPrefix)
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%sOPENAI_API_KEY is required for the openai provider", EnvPrefix)
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%sGEMINI_API_KEY is required for the gemini provider", EnvPrefix)
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("%sOPENROUTER_API_KEY is required for the openrouter provider", EnvPrefix)
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
