package llm

import (
	"fmt"
	"net/http"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider wraps OpenAIProvider with OpenRouter defaults. Model IDs
// ("vendor/model") are passed through unchanged.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates a provider targeting the OpenRouter API.
// Many routed models reject strict json_schema, so schemas are sent as a
// prompt hint with json_object mode unless StrictSchema is set.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}

	headers := http.Header{}
	headers.Set("X-Title", "tutorloop")

	inner := newOpenAICompatible("openrouter", OpenAIConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     baseURL,
		LooseSchema: !cfg.StrictSchema,
	}, headers)

	return &OpenRouterProvider{OpenAIProvider: inner}, nil
}
