package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the model returned content that is not the
// JSON the request asked for. The oracle turns it into a neutral judgment.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrAuthentication indicates the provider rejected the API key (401/403).
// A batch run cannot recover from it, so it is never retried.
type ErrAuthentication struct {
	Provider string
	Err      error
}

func (e *ErrAuthentication) Error() string {
	return fmt.Sprintf("%s rejected credentials: %v", e.Provider, e.Err)
}

func (e *ErrAuthentication) Unwrap() error { return e.Err }

// ErrRequestRejected is any other 4xx answer: a malformed request, an
// unknown model or an oversized prompt. Repeating it changes nothing.
type ErrRequestRejected struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ErrRequestRejected) Error() string {
	return fmt.Sprintf("%s rejected request (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ErrRequestRejected) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// classifyStatus maps an HTTP status from a provider SDK error onto the
// package error types. A zero status means the SDK never got an answer.
func classifyStatus(provider string, status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ErrAuthentication{Provider: provider, Err: err}
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	case status == http.StatusRequestTimeout:
		return &ErrProviderUnavailable{Err: err}
	case status >= 400 && status < 500:
		return &ErrRequestRejected{Provider: provider, StatusCode: status, Err: err}
	default:
		return &ErrProviderUnavailable{Err: err}
	}
}
