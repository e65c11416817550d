package oracle

import "github.com/abhisek/tutorloop/internal/llm"

// DetectiveSchema defines the JSON schema for a detective judgment.
// Ranges are not enforced here; out-of-range values are clamped after parsing.
var DetectiveSchema = &llm.Schema{
	Name:        "detective-judgment",
	Description: "Assessment of the student's latest response plus the next message to send",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_correct": map[string]any{
				"type":        "boolean",
				"description": "Whether the latest response is factually correct",
			},
			"reasoning_score": map[string]any{
				"type":        "integer",
				"description": "Quality of the student's reasoning from 1 (none) to 5 (rigorous)",
			},
			"misconception": map[string]any{
				"type":        []any{"string", "null"},
				"description": "Short name of the misconception shown, or null if none",
			},
			"estimated_level": map[string]any{
				"type":        "integer",
				"description": "Estimated proficiency level from 1 (struggling) to 5 (advanced)",
			},
			"confidence": map[string]any{
				"type":        "number",
				"description": "Confidence in estimated_level from 0.0 to 1.0",
			},
			"next_message": map[string]any{
				"type":        "string",
				"description": "The literal text the student will read next",
			},
		},
		"required":             []any{"is_correct", "reasoning_score", "misconception", "estimated_level", "confidence", "next_message"},
		"additionalProperties": false,
	},
}

// VerifySchema defines the JSON schema for the correctness double-check.
var VerifySchema = &llm.Schema{
	Name:        "correctness-check",
	Description: "Whether a student's statement is factually correct",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_correct": map[string]any{
				"type": "boolean",
			},
		},
		"required":             []any{"is_correct"},
		"additionalProperties": false,
	},
}
