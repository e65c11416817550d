package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is a chat model behind one of the supported vendor SDKs, or a
// decorator around one. The oracle makes four kinds of call through it:
// opener questions, detective judgments, correctness checks and persona
// replies.
type Provider interface {
	// Generate runs a single completion. With a Schema the reply is
	// validated JSON; without one it is the model's text as-is.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the configured model identifier.
	ModelID() string
}

// Request is one completion call.
type Request struct {
	System string

	// Messages carries the user turn, usually a rendered prompt that
	// already embeds the tutoring transcript.
	Messages []Message

	// Schema requests structured output through the provider's native
	// mechanism. Nil means free text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema for structured replies.
type Schema struct {
	// Name is kebab-case, e.g. "detective-judgment". It doubles as the
	// OpenAI schema name and the compiled-schema cache key.
	Name string

	Description string

	Definition map[string]any
}

// Response is a completed call.
type Response struct {
	// Content is validated JSON when the request had a Schema, otherwise
	// the raw reply text.
	Content json.RawMessage

	Usage Usage

	// Model is the model that served the request, which may be more
	// specific than the configured alias.
	Model string

	// StopReason is one of "end", "max_tokens" or "error".
	StopReason string
}

// Text returns the reply as trimmed plain text. Some models answer a free
// text prompt with a JSON string literal; that is unquoted.
func (r *Response) Text() string {
	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(r.Content))
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
