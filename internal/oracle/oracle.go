// Package oracle turns LLM calls into the judgments and messages the
// tutoring loop consumes: the opening question, detective judgments, persona
// replies and an optional correctness double-check.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/tutorloop/internal/llm"
	"github.com/abhisek/tutorloop/internal/metrics"
	"github.com/abhisek/tutorloop/internal/session"
	"go.uber.org/zap"
)

// FallbackMessage is sent when the detective's output cannot be used.
const FallbackMessage = "Let's continue. Can you tell me more about your thinking?"

// Config holds generation settings for the oracle.
type Config struct {
	MaxTokens           int
	Temperature         float64
	TutorMaxTokens      int
	TutorTemp           float64
	Verify              bool
	VerifyMinConfidence float64
	VerifyMaxConfidence float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:           512,
		Temperature:         0.2,
		TutorMaxTokens:      400,
		TutorTemp:           0.7,
		VerifyMinConfidence: 0.50,
		VerifyMaxConfidence: 0.65,
	}
}

// Oracle is the LLM-backed judge and message writer.
type Oracle struct {
	provider llm.Provider
	verifier llm.Provider
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// New creates an Oracle. verifier may be nil, in which case provider also
// serves the correctness double-check. m may be nil.
func New(provider, verifier llm.Provider, cfg Config, log *zap.Logger, m *metrics.Metrics) *Oracle {
	if verifier == nil {
		verifier = provider
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{provider: provider, verifier: verifier, cfg: cfg, log: log, metrics: m}
}

// Fallback returns the neutral judgment used when the detective's output is
// malformed.
func Fallback() session.DetectiveOutput {
	return session.DetectiveOutput{
		IsCorrect:      false,
		ReasoningScore: 3,
		EstimatedLevel: session.DefaultLevel,
		Confidence:     0.5,
		NextMessage:    FallbackMessage,
	}
}

// Opener writes the first question for a topic.
func (o *Oracle) Opener(ctx context.Context, topic string) (string, error) {
	ctx = llm.WithPurpose(ctx, "opener")

	resp, err := o.provider.Generate(ctx, llm.Request{
		System: openerSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Topic: " + topic},
		},
		MaxTokens:   o.cfg.TutorMaxTokens,
		Temperature: o.cfg.TutorTemp,
	})
	if err != nil {
		return "", fmt.Errorf("LLM opener failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", &llm.ErrInvalidResponse{Err: errors.New("empty opener")}
	}
	return text, nil
}

// detectiveOutput is the raw LLM response.
type detectiveOutput struct {
	IsCorrect      bool    `json:"is_correct"`
	ReasoningScore int     `json:"reasoning_score"`
	Misconception  *string `json:"misconception"`
	EstimatedLevel int     `json:"estimated_level"`
	Confidence     float64 `json:"confidence"`
	NextMessage    string  `json:"next_message"`
}

// Analyze judges the student's latest message. Malformed model output yields
// Fallback(); transport failures are returned as errors.
func (o *Oracle) Analyze(ctx context.Context, s *session.Session, studentMsg string) (session.DetectiveOutput, error) {
	ctx = llm.WithSubject(ctx, s.StudentID, s.TopicID)
	out, err := o.analyze(ctx, s, studentMsg)
	if err != nil {
		return session.DetectiveOutput{}, err
	}

	if o.cfg.Verify && out.Confidence >= o.cfg.VerifyMinConfidence && out.Confidence <= o.cfg.VerifyMaxConfidence {
		out = o.doubleCheck(ctx, s, studentMsg, out)
	}
	return out, nil
}

func (o *Oracle) analyze(ctx context.Context, s *session.Session, studentMsg string) (session.DetectiveOutput, error) {
	ctx = llm.WithPurpose(ctx, "diagnose")

	userMsg, err := render(detectiveUserTemplate, newPromptData(s, studentMsg))
	if err != nil {
		return session.DetectiveOutput{}, fmt.Errorf("build detective prompt: %w", err)
	}

	resp, err := o.provider.Generate(ctx, llm.Request{
		System: detectiveSystemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
		Schema:      DetectiveSchema,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		var invResp *llm.ErrInvalidResponse
		if errors.As(err, &invResp) {
			return o.fallback(s, "detective", err), nil
		}
		return session.DetectiveOutput{}, fmt.Errorf("LLM detective failed: %w", err)
	}

	var raw detectiveOutput
	if err := json.Unmarshal(llm.ExtractJSON(resp.Content), &raw); err != nil {
		return o.fallback(s, "detective", err), nil
	}

	out := session.DetectiveOutput{
		IsCorrect:      raw.IsCorrect,
		ReasoningScore: clampInt(raw.ReasoningScore, 1, 5),
		Misconception:  nonEmpty(raw.Misconception),
		EstimatedLevel: clampInt(raw.EstimatedLevel, session.MinLevel, session.MaxLevel),
		Confidence:     clampFloat(raw.Confidence, 0, 1),
		NextMessage:    strings.TrimSpace(raw.NextMessage),
	}
	if out.NextMessage == "" {
		out.NextMessage = FallbackMessage
	}
	return out, nil
}

func (o *Oracle) fallback(s *session.Session, stage string, err error) session.DetectiveOutput {
	o.log.Warn("oracle output unusable, using defaults",
		zap.String("stage", stage),
		zap.String("student_id", s.StudentID),
		zap.String("topic_id", s.TopicID),
		zap.Error(err))
	o.metrics.RecordOracleFallback(stage)
	return Fallback()
}

// Teach writes a persona reply for the session's current level.
func (o *Oracle) Teach(ctx context.Context, s *session.Session, studentMsg string) (string, error) {
	persona := s.Persona()
	ctx = llm.WithPurpose(ctx, "tutor-"+strings.ToLower(persona.String()))
	ctx = llm.WithSubject(ctx, s.StudentID, s.TopicID)

	userMsg, err := render(tutorUserTemplate, newPromptData(s, studentMsg))
	if err != nil {
		return "", fmt.Errorf("build tutor prompt: %w", err)
	}

	resp, err := o.provider.Generate(ctx, llm.Request{
		System: personaPrompts[persona],
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: userMsg},
		},
		MaxTokens:   o.cfg.TutorMaxTokens,
		Temperature: o.cfg.TutorTemp,
	})
	if err != nil {
		return "", fmt.Errorf("LLM tutor failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", &llm.ErrInvalidResponse{Err: errors.New("empty tutor reply")}
	}
	return text, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return nil
	}
	return &v
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
