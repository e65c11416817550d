// Package knowunity is a client for the conversation API that simulates
// students: discovery, the tutoring exchange and evaluation.
package knowunity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://knowunity-agent-olympics-2026-api.vercel.app"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables
	MaxRetries int
	RetryWait  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    60 * time.Second,
		RateLimit:  5,
		MaxRetries: 2,
		RetryWait:  500 * time.Millisecond,
	}
}

// Client talks to the conversation API. It is safe for concurrent use.
type Client struct {
	base    string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		log:    log,
	}
	if cfg.RateLimit > 0 {
		burst := max(1, int(cfg.RateLimit))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// ListStudents returns the students in a set.
func (c *Client) ListStudents(ctx context.Context, setType string) ([]Student, error) {
	var out studentsResponse
	path := "/students?set_type=" + url.QueryEscape(setType)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out.Students, nil
}

// Topics returns the topics assigned to a student.
func (c *Client) Topics(ctx context.Context, studentID string) ([]Topic, error) {
	var out topicsResponse
	path := "/students/" + url.PathEscape(studentID) + "/topics"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list topics for %s: %w", studentID, err)
	}
	return out.Topics, nil
}

// Start opens a conversation and returns its id.
func (c *Client) Start(ctx context.Context, studentID, topicID string) (string, error) {
	var out startResponse
	body := startRequest{StudentID: studentID, TopicID: topicID}
	if err := c.do(ctx, http.MethodPost, "/interact/start", body, &out); err != nil {
		return "", fmt.Errorf("start conversation: %w", err)
	}
	if out.ConversationID == "" {
		return "", errors.New("start conversation: empty conversation_id")
	}
	return out.ConversationID, nil
}

// Interact sends a tutor message and returns the student's reply.
func (c *Client) Interact(ctx context.Context, conversationID, message string) (Reply, error) {
	var out Reply
	body := interactRequest{ConversationID: conversationID, TutorMessage: message}
	if err := c.do(ctx, http.MethodPost, "/interact", body, &out); err != nil {
		return Reply{}, fmt.Errorf("interact: %w", err)
	}
	return out, nil
}

// EvaluateMSE submits level predictions and returns the score.
func (c *Client) EvaluateMSE(ctx context.Context, setType string, preds []Prediction) (*MSEResult, error) {
	var raw json.RawMessage
	body := mseRequest{Predictions: preds, SetType: setType}
	if err := c.do(ctx, http.MethodPost, "/evaluate/mse", body, &raw); err != nil {
		return nil, fmt.Errorf("evaluate mse: %w", err)
	}
	res := &MSEResult{Raw: raw}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("decode mse result: %w", err)
	}
	return res, nil
}

// EvaluateTutoring asks the API to grade tutoring quality for a set.
func (c *Client) EvaluateTutoring(ctx context.Context, setType string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/evaluate/tutoring", setTypeRequest{SetType: setType}, &raw); err != nil {
		return nil, fmt.Errorf("evaluate tutoring: %w", err)
	}
	return raw, nil
}

// do sends one request. GETs are retried on throttling, server and transport
// errors. POSTs move a conversation forward, so they are retried only when
// the server provably did not act on them: a 429 or a failed dial.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.cfg.RetryWait * time.Duration(1<<(attempt-1))
			c.log.Warn("retrying knowunity request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		lastErr = c.once(ctx, method, path, payload, out)
		if lastErr == nil || !retryable(method, lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func retryable(method string, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if method != http.MethodGet {
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode == http.StatusTooManyRequests
		}
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial"
	}
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Decode failures are not transient; transport errors are.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr)
}
