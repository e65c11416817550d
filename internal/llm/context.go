package llm

import (
	"context"

	"go.uber.org/zap"
)

type contextKey int

const (
	purposeKey contextKey = iota
	subjectKey
)

// Subject identifies the tutoring session an LLM call belongs to.
type Subject struct {
	StudentID string
	TopicID   string
}

// WithPurpose attaches a purpose label ("opener", "diagnose", "verify",
// "tutor-coach", ...) to the context for event logging.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithSubject attaches the student and topic being tutored.
func WithSubject(ctx context.Context, studentID, topicID string) context.Context {
	return context.WithValue(ctx, subjectKey, Subject{StudentID: studentID, TopicID: topicID})
}

// SubjectFrom returns the subject attached to ctx, if any.
func SubjectFrom(ctx context.Context) (Subject, bool) {
	s, ok := ctx.Value(subjectKey).(Subject)
	return s, ok
}

// logFields returns the zap fields describing the call in ctx.
func logFields(ctx context.Context) []zap.Field {
	fields := []zap.Field{zap.String("purpose", PurposeFrom(ctx))}
	if s, ok := SubjectFrom(ctx); ok {
		fields = append(fields, zap.String("student_id", s.StudentID), zap.String("topic_id", s.TopicID))
	}
	return fields
}
