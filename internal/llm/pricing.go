package llm

import "strings"

// ModelCost holds per-million-token pricing for a model in USD.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost calculates the total USD cost for the given token counts.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.InputPerMTok/1_000_000 +
		float64(outputTokens)*c.OutputPerMTok/1_000_000
}

// LookupCost returns the pricing for a model ID, or nil if unknown.
// OpenRouter IDs ("vendor/model") fall back to the bare model name, and a
// ":free" suffix costs nothing.
func LookupCost(modelID string) *ModelCost {
	if c, ok := modelCosts[modelID]; ok {
		return &c
	}
	if strings.HasSuffix(modelID, ":free") {
		return &ModelCost{}
	}
	if _, name, ok := strings.Cut(modelID, "/"); ok {
		name = strings.TrimSuffix(name, "-exp")
		if c, ok := modelCosts[name]; ok {
			return &c
		}
	}
	return nil
}

// modelCosts covers the models commonly used for diagnosis and tutoring.
// Prices from models.dev, 2026-02.
var modelCosts = map[string]ModelCost{
	// Anthropic
	"claude-3-5-haiku-latest":    {0.8, 4},
	"claude-3-7-sonnet-latest":   {3, 15},
	"claude-haiku-4-5":           {1, 5},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-sonnet-4-5":          {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},
	"claude-opus-4-5":            {5, 25},

	// OpenAI
	"gpt-4.1":      {2, 8},
	"gpt-4.1-mini": {0.4, 1.6},
	"gpt-4.1-nano": {0.1, 0.4},
	"gpt-4o":       {2.5, 10},
	"gpt-4o-mini":  {0.15, 0.6},
	"gpt-5":        {1.25, 10},
	"gpt-5-mini":   {0.25, 2},
	"gpt-5-nano":   {0.05, 0.4},
	"o4-mini":      {1.1, 4.4},

	// Google (Gemini)
	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.0-flash-lite": {0.075, 0.3},
	"gemini-2.5-flash":      {0.3, 2.5},
	"gemini-2.5-flash-lite": {0.1, 0.4},
	"gemini-2.5-pro":        {1.25, 10},
	"gemini-flash-latest":   {0.3, 2.5},
}
