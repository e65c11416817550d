package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatCompletion is a minimal chat completion body for the fake server.
func chatCompletion(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1767225600,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{
			"prompt_tokens":     420,
			"completion_tokens": 60,
			"total_tokens":      480,
		},
	}
}

func openAIError(status int, typ, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": typ, "message": msg},
		})
	}
}

// captureOpenAI serves body and stores the decoded request in got.
func captureOpenAI(got *map[string]any, body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}
}

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc, loose bool) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return newOpenAICompatible("openai", OpenAIConfig{
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		BaseURL:     server.URL + "/v1",
		LooseSchema: loose,
	}, nil)
}

var judgmentReq = Request{
	System:    "You are a diagnostic tutor.",
	Messages:  []Message{{Role: RoleUser, Content: "Student: 1/2 + 1/3 = 2/5"}},
	Schema:    judgmentSchema(),
	MaxTokens: 512,
}

func TestOpenAIProvider_StrictSchema(t *testing.T) {
	var got map[string]any
	reply := `{"is_correct":false,"estimated_level":2,"misconception":"adds denominators"}`
	p := newTestOpenAIProvider(t, captureOpenAI(&got, chatCompletion(reply, "stop")), false)

	resp, err := p.Generate(context.Background(), judgmentReq)
	require.NoError(t, err)
	assert.JSONEq(t, reply, string(resp.Content))
	assert.Equal(t, 420, resp.Usage.InputTokens)
	assert.Equal(t, 60, resp.Usage.OutputTokens)
	assert.Equal(t, "end", resp.StopReason)

	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "test-judgment", schema["name"])
	assert.Equal(t, true, schema["strict"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "You are a diagnostic tutor.", msgs[0].(map[string]any)["content"])
}

func TestOpenAIProvider_LooseSchemaHintsInPrompt(t *testing.T) {
	var got map[string]any
	reply := "```json\n{\"is_correct\":true,\"estimated_level\":4}\n```"
	p := newTestOpenAIProvider(t, captureOpenAI(&got, chatCompletion(reply, "stop")), true)

	resp, err := p.Generate(context.Background(), judgmentReq)
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_correct":true,"estimated_level":4}`, string(resp.Content))

	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	system := got["messages"].([]any)[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, "You are a diagnostic tutor.")
	assert.Contains(t, system, "test-judgment")
	assert.Contains(t, system, `"estimated_level"`)
}

func TestOpenAIProvider_TextReplyUntouched(t *testing.T) {
	question := "If you cut a pizza into 8 slices and eat 3, what fraction is left?"
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(question, "stop"))
	}, false)

	resp, err := p.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "Topic: Fractions"}},
		MaxTokens: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, question, string(resp.Content))
}

func TestOpenAIProvider_TruncatedJudgment(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(`{"is_correct":true,"estimated_le`, "length"))
	}, false)

	_, err := p.Generate(context.Background(), judgmentReq)
	var maxTok *ErrMaxTokensExceeded
	require.True(t, errors.As(err, &maxTok), "got %T (%v)", err, err)
}

func TestOpenAIProvider_SchemaMismatch(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion(`{"verdict":"partly right"}`, "stop"))
	}, false)

	_, err := p.Generate(context.Background(), judgmentReq)
	var invErr *ErrInvalidResponse
	require.True(t, errors.As(err, &invErr), "got %T (%v)", err, err)
}

func TestOpenAIProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{"rate limit", openAIError(http.StatusTooManyRequests, "tokens", "Rate limit exceeded"), func(t *testing.T, err error) {
			var rl *ErrRateLimit
			assert.True(t, errors.As(err, &rl), "got %T", err)
		}},
		{"server error", openAIError(http.StatusInternalServerError, "server_error", "boom"), func(t *testing.T, err error) {
			var unavail *ErrProviderUnavailable
			assert.True(t, errors.As(err, &unavail), "got %T", err)
		}},
		{"bad key", openAIError(http.StatusUnauthorized, "invalid_request_error", "Incorrect API key"), func(t *testing.T, err error) {
			var auth *ErrAuthentication
			require.True(t, errors.As(err, &auth), "got %T", err)
			assert.Equal(t, "openai", auth.Provider)
		}},
		{"unknown model", openAIError(http.StatusNotFound, "invalid_request_error", "model not found"), func(t *testing.T, err error) {
			var rej *ErrRequestRejected
			require.True(t, errors.As(err, &rej), "got %T", err)
			assert.Equal(t, http.StatusNotFound, rej.StatusCode)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAIProvider(t, tt.handler, false)
			_, err := p.Generate(context.Background(), Request{
				Messages:  []Message{{Role: RoleUser, Content: "Topic: Fractions"}},
				MaxTokens: 100,
			})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"})
	require.Error(t, err)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", Model: "gpt-4.1-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", p.ModelID())
	assert.False(t, p.looseSchema)
}
