// Package trace records the decisions each agent makes during a tutoring
// conversation. Events are fanned into a single writer goroutine so that
// concurrent conversations never interleave partial records.
package trace

import (
	"context"
	"sync"
	"time"
)

// Agent names attached to trace events.
const (
	AgentOpener         = "Opener"
	AgentDetective      = "Detective"
	AgentTutor          = "Tutor"
	AgentShotClock      = "Shot Clock"
	AgentConfidenceGate = "Confidence Gate"
)

// Event is a single agent decision.
type Event struct {
	Sequence  int64     `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	StudentID string    `json:"student_id"`
	TopicID   string    `json:"topic_id"`
	Topic     string    `json:"topic"`
	Agent     string    `json:"agent"`
	Detail    string    `json:"detail"`
}

// Sink receives trace events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// Appender persists trace events and returns the sequence number assigned
// to the stored event.
type Appender interface {
	AppendTrace(ctx context.Context, e Event) (int64, error)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Nop returns a Sink that discards every event.
func Nop() Sink { return nopSink{} }

// Recorder is an in-memory Sink, mostly useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e to the recorded events.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Agents returns the agent name of each recorded event, in order.
func (r *Recorder) Agents() []string {
	events := r.Events()
	agents := make([]string, len(events))
	for i, e := range events {
		agents[i] = e.Agent
	}
	return agents
}
