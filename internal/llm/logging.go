package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/tutorloop/internal/store"
	"go.uber.org/zap"
)

// LoggingProvider is a decorator that records every LLM request as an event.
type LoggingProvider struct {
	inner     Provider
	provider  string
	eventRepo store.EventRepo
	log       *zap.Logger
}

// WithLogging wraps a Provider with event logging. A nil repo only logs.
func WithLogging(p Provider, providerName string, repo store.EventRepo, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingProvider{inner: p, provider: providerName, eventRepo: repo, log: log}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	latencyMs := time.Since(start).Milliseconds()

	data := store.LLMRequestEventData{
		Provider:    l.provider,
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   latencyMs,
		Success:     err == nil,
		RequestBody: serializeRequest(ctx, req),
	}

	if resp != nil {
		data.InputTokens = resp.Usage.InputTokens
		data.OutputTokens = resp.Usage.OutputTokens
		data.Model = resp.Model
		data.ResponseBody = string(resp.Content)
	}

	if err != nil {
		data.ErrorMessage = err.Error()
	}

	l.log.Debug("llm request", append(logFields(ctx),
		zap.String("model", data.Model),
		zap.Int("input_tokens", data.InputTokens),
		zap.Int("output_tokens", data.OutputTokens),
		zap.Int64("latency_ms", latencyMs),
		zap.Bool("success", data.Success))...)

	// A failed event write never fails the request.
	if l.eventRepo != nil {
		if logErr := l.eventRepo.AppendLLMRequest(ctx, data); logErr != nil {
			l.log.Warn("failed to log LLM request event", zap.Error(logErr))
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest renders the request as the transcript shown by "llm view".
func serializeRequest(ctx context.Context, req Request) string {
	var b strings.Builder

	if s, ok := SubjectFrom(ctx); ok {
		fmt.Fprintf(&b, "[subject: %s / %s]\n\n", s.StudentID, s.TopicID)
	}

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n", req.Schema.Name)
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	}

	return b.String()
}
