package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorloop/internal/store"
	"go.uber.org/zap"
)

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with retry, throttling and logging middleware.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, log *zap.Logger) (Provider, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Wrap with middleware: caller → timeout → retry → throttle → logging → base
	var p Provider = WithLogging(base, cfg.Provider, eventRepo, log)
	if cfg.RequestsPerSecond > 0 {
		p = WithRateLimit(p, cfg.RequestsPerSecond)
	}
	p = WithRetry(p, cfg.Retry, log)
	if cfg.Timeout > 0 {
		p = WithTimeout(p, cfg.Timeout)
	}

	return p, nil
}

// NewProviderFromEnv builds a provider from TUTORLOOP_* variables, falling
// back to the standard vendor API key variables when no provider key is set.
func NewProviderFromEnv(ctx context.Context, eventRepo store.EventRepo, log *zap.Logger) (Provider, error) {
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, err
		}
		discovered.RequestsPerSecond = cfg.RequestsPerSecond
		discovered.Timeout = cfg.Timeout
		cfg = discovered
	}
	return NewProvider(ctx, cfg, eventRepo, log)
}
