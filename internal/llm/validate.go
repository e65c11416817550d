package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

var fence = []byte("```")

// ExtractJSON pulls a JSON document out of a model reply. Models that ignore
// the structured output hint wrap the object in a markdown fence or surround
// it with prose; both are unwrapped. Content that already parses is returned
// trimmed and otherwise untouched.
func ExtractJSON(raw json.RawMessage) json.RawMessage {
	text := bytes.TrimSpace(raw)
	if json.Valid(text) {
		return text
	}

	if start := bytes.Index(text, fence); start >= 0 {
		body := text[start+len(fence):]
		body = bytes.TrimPrefix(body, []byte("json"))
		if end := bytes.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		body = bytes.TrimSpace(body)
		if json.Valid(body) {
			return body
		}
		text = body
	}

	open, closing := bytes.IndexByte(text, '{'), bytes.LastIndexByte(text, '}')
	if open >= 0 && closing > open && json.Valid(text[open:closing+1]) {
		return text[open : closing+1]
	}
	return text
}

// validateResponse checks raw model output against the request schema and
// returns the extracted JSON. Without a schema the content passes through.
// Failures are reported as *ErrInvalidResponse carrying the original bytes.
func validateResponse(schema *Schema, raw json.RawMessage) (json.RawMessage, error) {
	if schema == nil {
		return raw, nil
	}

	content := ExtractJSON(raw)

	var parsed any
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("%s: invalid JSON: %w", schema.Name, err),
		}
	}

	compiled, err := compiledSchema(schema)
	if err != nil {
		return nil, &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("compile schema %q: %w", schema.Name, err),
		}
	}

	if err := compiled.Validate(parsed); err != nil {
		return nil, &ErrInvalidResponse{
			Content: raw,
			Err:     fmt.Errorf("%s: schema validation failed: %w", schema.Name, err),
		}
	}

	return content, nil
}

// compiledSchema returns the cached compiled schema, compiling it on first use.
func compiledSchema(schema *Schema) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a decoded JSON value, not Go maps with typed slices.
	defBytes, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(defBytes))
	if err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := "mem://tutorloop/" + schema.Name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(schema.Name, compiled)
	return compiled, nil
}
