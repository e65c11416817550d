package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// geminiModels maps friendly names to Gemini model IDs.
var geminiModels = map[string]string{
	"gemini-flash":      "gemini-2.5-flash",
	"gemini-flash-lite": "gemini-2.5-flash-lite",
	"gemini-pro":        "gemini-2.5-pro",
}

// GeminiProvider implements Provider using the Google Gemini SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  resolveModel(cfg.Model, geminiModels),
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens),
	}

	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = buildGeminiSchema(req.Schema.Definition)
	}

	contents := buildGeminiContents(req.Messages)

	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, mapGeminiError(err)
	}

	stop := mapGeminiStopReason(result)
	text := result.Text()
	if text == "" && stop == "error" {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("gemini blocked the response")}
	}

	content, err := checkContent(req.Schema, json.RawMessage(text), stop)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Content:    content,
		Model:      p.model,
		StopReason: stop,
	}
	if result.ModelVersion != "" {
		resp.Model = result.ModelVersion
	}

	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

func (p *GeminiProvider) ModelID() string {
	return p.model
}

func buildGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, len(msgs))
	for i, m := range msgs {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
	}
	return out
}

// buildGeminiSchema converts a JSON Schema definition map to a genai.Schema.
// A ["T", "null"] type union becomes a nullable T.
func buildGeminiSchema(def map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	switch t := def["type"].(type) {
	case string:
		schema.Type = mapGeminiType(t)
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				schema.Nullable = genai.Ptr(true)
			} else if name != "" && schema.Type == "" {
				schema.Type = mapGeminiType(name)
			}
		}
	}
	if desc, ok := def["description"].(string); ok {
		schema.Description = desc
	}

	if props, ok := def["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for k, v := range props {
			if propDef, ok := v.(map[string]any); ok {
				schema.Properties[k] = buildGeminiSchema(propDef)
			}
		}
	}

	if req, ok := def["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if v, ok := number(def["minimum"]); ok {
		schema.Minimum = genai.Ptr(v)
	}
	if v, ok := number(def["maximum"]); ok {
		schema.Maximum = genai.Ptr(v)
	}

	if enums, ok := def["enum"].([]any); ok {
		for _, e := range enums {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	if items, ok := def["items"].(map[string]any); ok {
		schema.Items = buildGeminiSchema(items)
	}

	return schema
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func mapGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func mapGeminiStopReason(result *genai.GenerateContentResponse) string {
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "error"
	}
	if len(result.Candidates) == 0 {
		return "end"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return "error"
	default:
		return "end"
	}
}

func mapGeminiError(err error) error {
	// The SDK returns APIError by value.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus("gemini", apiErrPtr.Code, err)
	}
	return &ErrProviderUnavailable{Err: err}
}
