package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/abhisek/tutorloop/internal/llm"
)

func judgmentJSON(correct bool, conf float64) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"is_correct":      correct,
		"reasoning_score": 3,
		"misconception":   "sign-error",
		"estimated_level": 3,
		"confidence":      conf,
		"next_message":    "Why?",
	})
	return b
}

func verifyingConfig() Config {
	cfg := DefaultConfig()
	cfg.Verify = true
	return cfg
}

func TestVerify_OverridesInAmbiguityZone(t *testing.T) {
	detective := llm.NewMockProvider(llm.MockResponse{Content: judgmentJSON(false, 0.6)})
	verifier := llm.NewMockProvider(llm.MockJSON(map[string]bool{"is_correct": true}))
	o := New(detective, verifier, verifyingConfig(), nil, nil)

	out, err := o.Analyze(context.Background(), testSession(), "x")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !out.IsCorrect {
		t.Error("verifier should override correctness")
	}
	if out.Misconception != nil {
		t.Errorf("verified-correct answer should clear misconception, got %q", *out.Misconception)
	}
	if out.Confidence != 0.6 || out.EstimatedLevel != 3 {
		t.Errorf("other fields changed: %+v", out)
	}
}

func TestVerify_DisagreesTowardIncorrectKeepsMisconception(t *testing.T) {
	detective := llm.NewMockProvider(llm.MockResponse{Content: judgmentJSON(true, 0.5)})
	verifier := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"is_correct":false}`)})
	o := New(detective, verifier, verifyingConfig(), nil, nil)

	out, err := o.Analyze(context.Background(), testSession(), "x")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out.IsCorrect {
		t.Error("verifier should override correctness")
	}
	if !out.HasMisconception() {
		t.Error("misconception should be kept")
	}
}

func TestVerify_SkippedOutsideZone(t *testing.T) {
	for _, conf := range []float64{0.49, 0.66, 0.9} {
		detective := llm.NewMockProvider(llm.MockResponse{Content: judgmentJSON(false, conf)})
		verifier := llm.NewMockProvider()
		o := New(detective, verifier, verifyingConfig(), nil, nil)

		if _, err := o.Analyze(context.Background(), testSession(), "x"); err != nil {
			t.Fatalf("conf %v: Analyze failed: %v", conf, err)
		}
		if verifier.CallCount() != 0 {
			t.Errorf("conf %v: verifier called %d times", conf, verifier.CallCount())
		}
	}
}

func TestVerify_DisabledByConfig(t *testing.T) {
	detective := llm.NewMockProvider(llm.MockResponse{Content: judgmentJSON(false, 0.6)})
	verifier := llm.NewMockProvider()
	o := New(detective, verifier, DefaultConfig(), nil, nil)

	if _, err := o.Analyze(context.Background(), testSession(), "x"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if verifier.CallCount() != 0 {
		t.Errorf("verifier called %d times", verifier.CallCount())
	}
}

func TestVerify_FailureKeepsDetective(t *testing.T) {
	detective := llm.NewMockProvider(llm.MockResponse{Content: judgmentJSON(false, 0.55)})
	verifier := llm.NewMockProvider(llm.MockResponse{Err: errors.New("timeout")})
	o := New(detective, verifier, verifyingConfig(), nil, nil)

	out, err := o.Analyze(context.Background(), testSession(), "x")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out.IsCorrect || !out.HasMisconception() {
		t.Errorf("judgment changed on verifier failure: %+v", out)
	}
}

func TestVerify_SharesProviderWhenNil(t *testing.T) {
	mock := llm.NewMockProvider().
		On("verify", llm.MockJSON(map[string]bool{"is_correct": false})).
		On("diagnose", llm.MockResponse{Content: judgmentJSON(false, 0.6)})
	o := New(mock, nil, verifyingConfig(), nil, nil)

	if _, err := o.Analyze(context.Background(), testSession(), "x"); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[1].Purpose != "verify" || calls[1].Request.Schema != VerifySchema {
		t.Errorf("second call = %q, want the verifier", calls[1].Purpose)
	}
	if calls[1].Subject.StudentID != "stu-1" {
		t.Errorf("verifier call lost its subject: %+v", calls[1].Subject)
	}
}
