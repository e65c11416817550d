package store

import (
	"context"
	"time"

	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/trace"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// SessionRepo persists per student-topic session state.
type SessionRepo interface {
	// Save upserts the session and replaces its diagnostic events.
	Save(ctx context.Context, s *session.Session) error

	// Get returns the session for a pair, or nil if none exists.
	Get(ctx context.Context, studentID, topicID string) (*session.Session, error)

	// List returns all sessions, optionally restricted to one student,
	// ordered by student then topic.
	List(ctx context.Context, studentID string) ([]*session.Session, error)
}

// PredictionRecord is one stored level prediction.
type PredictionRecord struct {
	RunID          string
	StudentID      string
	TopicID        string
	PredictedLevel int
	Fallback       bool
	ErrorMessage   string
	CreatedAt      time.Time
}

// Submission is a recorded call to one of the evaluation endpoints.
type Submission struct {
	ID          int
	RunID       string
	Kind        string // "mse" or "tutoring"
	SetType     string
	Predictions int
	Score       *float64
	Response    string
	CreatedAt   time.Time
}

// PredictionRepo stores batch predictions and evaluation submissions.
type PredictionRepo interface {
	// SaveRun stores the predictions of one batch run.
	SaveRun(ctx context.Context, runID string, preds []PredictionRecord) error

	// ListRun returns the predictions of a run in insertion order.
	ListRun(ctx context.Context, runID string) ([]PredictionRecord, error)

	// LatestRunID returns the most recent run ID, or "" if none.
	LatestRunID(ctx context.Context) (string, error)

	// RecordSubmission stores an evaluation call.
	RecordSubmission(ctx context.Context, sub Submission) error

	// ListSubmissions returns the most recent submissions first.
	ListSubmissions(ctx context.Context, limit int) ([]Submission, error)
}

// TraceFilter narrows trace queries.
type TraceFilter struct {
	StudentID string
	TopicID   string
	Limit     int
}

// TraceRepo persists agent trace events.
type TraceRepo interface {
	trace.Appender

	// ListTraces returns matching events in sequence order.
	ListTraces(ctx context.Context, f TraceFilter) ([]trace.Event, error)
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMEvent is a stored LLM request event.
type LLMEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates LLM usage for one purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates LLM usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EventRepo provides append and query access to LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns the most recent events first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error)

	// GetLLMEvent returns one event by ID, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error)

	// LLMUsageByPurpose aggregates token usage per purpose.
	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)

	// LLMUsageByModel aggregates token usage per model.
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)
}
