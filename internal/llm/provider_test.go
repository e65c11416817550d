package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProvider_SharedQueueInOrder(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: []byte(`{"estimated_level":2}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockText("What is 3/4 as a decimal?"),
	)

	first, err := mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, `{"estimated_level":2}`, string(first.Content))
	assert.Equal(t, 10, first.Usage.InputTokens)
	assert.Equal(t, "end", first.StopReason)
	assert.Equal(t, "mock", first.Model)

	second, err := mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "What is 3/4 as a decimal?", string(second.Content))

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	assert.True(t, errors.As(err, &unavail), "got %T", err)
}

func TestMockProvider_PurposeQueues(t *testing.T) {
	mock := NewMockProvider(MockText("shared")).
		On("verify", MockJSON(map[string]bool{"is_correct": true})).
		On("diagnose", MockResponse{Err: &ErrRateLimit{}})

	verifyCtx := WithPurpose(context.Background(), "verify")
	resp, err := mock.Generate(verifyCtx, Request{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_correct":true}`, string(resp.Content))

	_, err = mock.Generate(WithPurpose(context.Background(), "diagnose"), Request{})
	var rl *ErrRateLimit
	assert.True(t, errors.As(err, &rl), "got %T", err)

	// Drained purpose queues fall back to the shared queue.
	resp, err = mock.Generate(verifyCtx, Request{})
	require.NoError(t, err)
	assert.Equal(t, "shared", string(resp.Content))
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	mock := NewMockProvider(MockText("ok"))
	ctx := WithSubject(WithPurpose(context.Background(), "tutor-coach"), "stu-9", "fractions")
	req := Request{
		System:   "You are The Coach.",
		Messages: []Message{{Role: RoleUser, Content: "I don't get it"}},
	}

	_, err := mock.Generate(ctx, req)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tutor-coach", calls[0].Purpose)
	assert.Equal(t, Subject{StudentID: "stu-9", TopicID: "fractions"}, calls[0].Subject)
	assert.Equal(t, "You are The Coach.", calls[0].Request.System)
	assert.Equal(t, 1, mock.CallCount())
}

func TestMockJSON_PanicsOnUnencodable(t *testing.T) {
	assert.Panics(t, func() { MockJSON(make(chan int)) })
}

func TestContextLabels(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", PurposeFrom(ctx))
	_, ok := SubjectFrom(ctx)
	assert.False(t, ok)
	assert.Len(t, logFields(ctx), 1)

	ctx = WithSubject(WithPurpose(ctx, "diagnose"), "stu-1", "top-1")
	assert.Equal(t, "diagnose", PurposeFrom(ctx))
	s, ok := SubjectFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "stu-1", s.StudentID)
	assert.Len(t, logFields(ctx), 3)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"gemini with key", Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "g-test"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"unknown provider", Config{Provider: "ollama"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("upstream")
	tests := []struct {
		status int
		want   any
	}{
		{401, &ErrAuthentication{}},
		{403, &ErrAuthentication{}},
		{408, &ErrProviderUnavailable{}},
		{429, &ErrRateLimit{}},
		{400, &ErrRequestRejected{}},
		{404, &ErrRequestRejected{}},
		{500, &ErrProviderUnavailable{}},
		{529, &ErrProviderUnavailable{}},
		{0, &ErrProviderUnavailable{}},
	}
	for _, tt := range tests {
		err := classifyStatus("openai", tt.status, base)
		assert.IsType(t, tt.want, err, "status %d", tt.status)
		assert.ErrorIs(t, err, base, "status %d", tt.status)
	}
}

func TestResponse_Text(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{`"  Is 0.999... equal to 1?  "`, "Is 0.999... equal to 1?"},
		{"  What is 7 x 8?\n", "What is 7 x 8?"},
		{`""`, ""},
		{`{"is_correct":true}`, `{"is_correct":true}`},
	}
	for _, tt := range tests {
		r := &Response{Content: []byte(tt.content)}
		assert.Equal(t, tt.want, r.Text(), tt.content)
	}
}
