package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// MockText is a canned plain-text reply, as an opener or tutor call returns.
func MockText(text string) MockResponse {
	return MockResponse{Content: json.RawMessage(text)}
}

// MockJSON is a canned structured reply. It panics if v cannot be encoded.
func MockJSON(v any) MockResponse {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return MockResponse{Content: b}
}

// MockCall is one recorded Generate call.
type MockCall struct {
	Purpose string
	Subject Subject
	Request Request
}

// MockProvider is a deterministic Provider for tests and the "mock" provider
// setting. Responses queued for a purpose with On are served to calls made
// with that purpose; everything else is served from the shared FIFO queue.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	byPurpose map[string][]MockResponse
	calls     []MockCall
}

// NewMockProvider creates a MockProvider with the given shared responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses, byPurpose: map[string][]MockResponse{}}
}

// On queues responses for calls whose context carries purpose.
func (m *MockProvider) On(purpose string, responses ...MockResponse) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPurpose[purpose] = append(m.byPurpose[purpose], responses...)
	return m
}

// Generate serves the next canned response, or ErrProviderUnavailable once
// the queues run dry.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purpose := PurposeFrom(ctx)
	subject, _ := SubjectFrom(ctx)
	m.calls = append(m.calls, MockCall{Purpose: purpose, Subject: subject, Request: req})

	var resp MockResponse
	switch {
	case len(m.byPurpose[purpose]) > 0:
		resp = m.byPurpose[purpose][0]
		m.byPurpose[purpose] = m.byPurpose[purpose][1:]
	case len(m.responses) > 0:
		resp = m.responses[0]
		m.responses = m.responses[1:]
	default:
		return nil, &ErrProviderUnavailable{}
	}

	if resp.Err != nil {
		return nil, resp.Err
	}

	return &Response{
		Content:    resp.Content,
		Usage:      resp.Usage,
		Model:      "mock",
		StopReason: "end",
	}, nil
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a response to the shared queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// Calls returns a copy of the recorded calls.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
