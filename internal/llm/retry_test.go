package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := NewMockProvider(
		MockJSON(map[string]int{"estimated_level": 4}),
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"estimated_level":4}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockJSON(map[string]int{"estimated_level": 4}),
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"estimated_level":4}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	_, err := p.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestRetry_MaxTokensNotRetried(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrMaxTokensExceeded{Content: json.RawMessage(`{}`)}},
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	_, err := p.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("expected ErrMaxTokensExceeded, got: %T", err)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.CallCount())
	}
}

func TestRetry_InvalidResponseRetriedOnce(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`bad`), Err: errors.New("bad")}},
		MockResponse{Err: &ErrInvalidResponse{Content: json.RawMessage(`bad`), Err: errors.New("bad")}},
		MockJSON(map[string]int{"estimated_level": 4}), // Won't be reached.
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	_, err := p.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	// Should have retried once (2 calls total), then stopped.
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
		MockJSON(map[string]int{"estimated_level": 4}),
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately.

	_, err := p.Generate(ctx, Request{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRetry_RateLimitRespectsRetryAfter(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: 1 * time.Millisecond, Err: errors.New("429")}},
		MockJSON(map[string]int{"estimated_level": 4}),
	)
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

	resp, err := p.Generate(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"estimated_level":4}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestRetry_ModelIDDelegates(t *testing.T) {
	mock := NewMockProvider()
	p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))
	if p.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", p.ModelID())
	}
}

func TestRetry_PermanentErrorsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad key", &ErrAuthentication{Provider: "openai", Err: errors.New("401")}},
		{"unknown model", &ErrRequestRejected{Provider: "openrouter", StatusCode: 404, Err: errors.New("404")}},
		{"truncated judgment", &ErrMaxTokensExceeded{Content: json.RawMessage(`{"is_correct":tr`)}},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(
				MockResponse{Err: tt.err},
				MockText("unreachable"),
			)
			p := WithRetry(mock, retryConfig(), zaptest.NewLogger(t))

			_, err := p.Generate(WithPurpose(context.Background(), "diagnose"), Request{})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if mock.CallCount() != 1 {
				t.Fatalf("expected 1 call, got %d", mock.CallCount())
			}
		})
	}
}

func TestRetry_BackoffCapped(t *testing.T) {
	r := &RetryProvider{config: RetryConfig{InitialWait: time.Second, MaxWait: 4 * time.Second, Multiplier: 2}}
	for attempt := range 6 {
		wait := r.backoff(attempt, errors.New("down"))
		if wait > 4*time.Second*12/10 {
			t.Fatalf("attempt %d: wait %v exceeds cap plus jitter", attempt, wait)
		}
	}
	rl := &ErrRateLimit{RetryAfter: 7 * time.Second}
	if got := r.backoff(0, rl); got != 7*time.Second {
		t.Fatalf("retry-after ignored: %v", got)
	}
}
