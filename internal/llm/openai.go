package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// openaiModels maps friendly names to OpenAI model IDs.
var openaiModels = map[string]string{
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4.1":      "gpt-4.1",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

// OpenAIProvider implements Provider using the OpenAI SDK.
// It also serves OpenRouter and other OpenAI-compatible APIs via BaseURL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string

	// looseSchema sends response_format json_object and describes the
	// schema in the system prompt instead of requesting strict json_schema.
	looseSchema bool
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	return newOpenAICompatible("openai", cfg, nil), nil
}

// newOpenAICompatible builds a provider for any endpoint speaking the
// OpenAI chat completions API. Extra headers are sent on every request.
func newOpenAICompatible(name string, cfg OpenAIConfig, headers http.Header) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if len(headers) > 0 {
		config.HTTPClient = &http.Client{Transport: headerTransport{base: http.DefaultTransport, headers: headers}}
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       resolveModel(cfg.Model, openaiModels),
		name:        name,
		looseSchema: cfg.LooseSchema,
	}
}

type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header[k] = v
	}
	return t.base.RoundTrip(r)
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:               p.model,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
	}

	system := req.System
	if req.Schema != nil {
		schemaBytes, err := json.Marshal(req.Schema.Definition)
		if err != nil {
			return nil, fmt.Errorf("marshal schema: %w", err)
		}

		if p.looseSchema {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
			system = appendSchemaHint(system, req.Schema, schemaBytes)
		} else {
			chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        req.Schema.Name,
					Description: req.Schema.Description,
					Schema:      json.RawMessage(schemaBytes),
					Strict:      true,
				},
			}
		}
	}
	chatReq.Messages = buildOpenAIMessages(system, req.Messages)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, p.mapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{
			Err: fmt.Errorf("no choices in %s response", p.name),
		}
	}

	choice := resp.Choices[0]
	stop := mapOpenAIStopReason(choice.FinishReason)
	content, err := checkContent(req.Schema, json.RawMessage(choice.Message.Content), stop)
	if err != nil {
		return nil, err
	}

	return &Response{
		Content: content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Model:      resp.Model,
		StopReason: stop,
	}, nil
}

func (p *OpenAIProvider) ModelID() string {
	return p.model
}

func buildOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)

	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return messages
}

// appendSchemaHint spells the schema out for models that only honour
// json_object mode.
func appendSchemaHint(system string, schema *Schema, def []byte) string {
	hint := fmt.Sprintf("Reply with a single JSON object (%s) matching this JSON Schema, and nothing else:\n%s",
		schema.Name, def)
	if system == "" {
		return hint
	}
	return system + "\n\n" + hint
}

func mapOpenAIStopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonContentFilter:
		return "error"
	default:
		return "end"
	}
}

func (p *OpenAIProvider) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(p.name, reqErr.HTTPStatusCode, err)
	}
	return &ErrProviderUnavailable{Err: err}
}

// checkContent validates schema replies. A reply that was cut off by the
// token limit and no longer parses is reported as ErrMaxTokensExceeded so
// the retry layer leaves it alone.
func checkContent(schema *Schema, raw json.RawMessage, stop string) (json.RawMessage, error) {
	content, err := validateResponse(schema, raw)
	if err != nil && stop == "max_tokens" {
		return nil, &ErrMaxTokensExceeded{Content: raw}
	}
	return content, err
}
