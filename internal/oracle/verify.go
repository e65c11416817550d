package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/tutorloop/internal/llm"
	"github.com/abhisek/tutorloop/internal/session"
	"go.uber.org/zap"
)

const verifySystemPrompt = `You check whether a student's statement about a topic is factually correct. Judge only correctness, not style or completeness.`

// doubleCheck asks the verifier for a second opinion on correctness. On
// disagreement the verifier wins, and a verified-correct answer carries no
// misconception. Verifier failures keep the detective's judgment.
func (o *Oracle) doubleCheck(ctx context.Context, s *session.Session, studentMsg string, out session.DetectiveOutput) session.DetectiveOutput {
	verified, err := o.verify(ctx, s.TopicName, studentMsg)
	if err != nil {
		o.log.Warn("correctness double-check failed",
			zap.String("student_id", s.StudentID),
			zap.String("topic_id", s.TopicID),
			zap.Error(err))
		return out
	}
	if verified == out.IsCorrect {
		return out
	}

	o.log.Info("verifier overrode correctness",
		zap.String("student_id", s.StudentID),
		zap.String("topic_id", s.TopicID),
		zap.Bool("detective", out.IsCorrect),
		zap.Bool("verifier", verified))

	out.IsCorrect = verified
	if verified {
		out.Misconception = nil
	}
	return out
}

type verifyOutput struct {
	IsCorrect bool `json:"is_correct"`
}

func (o *Oracle) verify(ctx context.Context, topic, studentMsg string) (bool, error) {
	ctx = llm.WithPurpose(ctx, "verify")

	resp, err := o.verifier.Generate(ctx, llm.Request{
		System: verifySystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf("Topic: %s\nStudent: %s\n\nIs this factually correct?", topic, studentMsg)},
		},
		Schema:    VerifySchema,
		MaxTokens: 32,
	})
	if err != nil {
		return false, fmt.Errorf("LLM verify failed: %w", err)
	}

	var raw verifyOutput
	if err := json.Unmarshal(llm.ExtractJSON(resp.Content), &raw); err != nil {
		return false, fmt.Errorf("failed to parse verify response: %w", err)
	}
	return raw.IsCorrect, nil
}
