package llm

import (
	"math"
	"testing"
)

func TestLookupCost(t *testing.T) {
	tests := []struct {
		model     string
		wantFound bool
		wantInput float64
	}{
		{"gpt-4o-mini", true, 0.15},
		{"claude-haiku-4-5", true, 1},
		{"google/gemini-2.0-flash-exp", true, 0.1},
		{"openai/gpt-4o-mini", true, 0.15},
		{"meta-llama/llama-3.3-70b-instruct:free", true, 0},
		{"unknown-model", false, 0},
		{"vendor/unknown-model", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			c := LookupCost(tt.model)
			if (c != nil) != tt.wantFound {
				t.Fatalf("LookupCost(%q) found = %v, want %v", tt.model, c != nil, tt.wantFound)
			}
			if c != nil && c.InputPerMTok != tt.wantInput {
				t.Errorf("input price = %v, want %v", c.InputPerMTok, tt.wantInput)
			}
		})
	}
}

func TestModelCost_Cost(t *testing.T) {
	c := ModelCost{InputPerMTok: 0.15, OutputPerMTok: 0.6}
	got := c.Cost(1_000_000, 500_000)
	if math.Abs(got-0.45) > 1e-9 {
		t.Errorf("Cost = %v, want 0.45", got)
	}
}
