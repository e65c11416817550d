// Package batch drives tutoring conversations end to end and runs many of
// them on a bounded worker pool.
package batch

import (
	"context"
	"fmt"

	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/metrics"
	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/trace"
	"go.uber.org/zap"
)

// Oracle judges student messages and writes tutor messages.
type Oracle interface {
	Opener(ctx context.Context, topic string) (string, error)
	Analyze(ctx context.Context, s *session.Session, studentMsg string) (session.DetectiveOutput, error)
	Teach(ctx context.Context, s *session.Session, studentMsg string) (string, error)
}

// Conversation is the external API that simulates the student.
type Conversation interface {
	Start(ctx context.Context, studentID, topicID string) (string, error)
	Interact(ctx context.Context, conversationID, message string) (knowunity.Reply, error)
}

// SessionStore persists session state.
type SessionStore interface {
	Save(ctx context.Context, s *session.Session) error
}

// Driver plays one conversation: the opening exchange, the turn loop and
// the final reconciliation.
type Driver struct {
	oracle  Oracle
	conv    Conversation
	store   SessionStore
	ctrl    *session.Controller
	sink    trace.Sink
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewDriver creates a Driver. sink, log and m may be nil.
func NewDriver(o Oracle, conv Conversation, st SessionStore, sink trace.Sink, log *zap.Logger, m *metrics.Metrics) *Driver {
	if sink == nil {
		sink = trace.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		oracle:  o,
		conv:    conv,
		store:   st,
		ctrl:    session.NewController(log, sink),
		sink:    sink,
		log:     log,
		metrics: m,
	}
}

// RunConversation plays a full conversation for one student-topic pair
// within a budget of turns and returns the finalized session. The session
// is saved after every turn, so a failure part way leaves the last
// completed turn on disk.
func (d *Driver) RunConversation(ctx context.Context, studentID string, topic knowunity.Topic, budget int) (*session.Session, error) {
	log := d.log.With(zap.String("student_id", studentID), zap.String("topic_id", topic.ID))

	convID, err := d.conv.Start(ctx, studentID, topic.ID)
	if err != nil {
		return nil, err
	}

	s := session.New(studentID, topic.ID, topic.Name)
	s.ConversationID = convID
	log.Info("conversation started", zap.String("topic", topic.Name), zap.String("conversation_id", convID))

	opener, err := d.oracle.Opener(ctx, topic.Name)
	if err != nil {
		return s, err
	}
	d.emit(s, trace.AgentOpener, opener)

	reply, err := d.conv.Interact(ctx, convID, opener)
	if err != nil {
		return s, err
	}
	s.RecordOpening(opener, reply.StudentResponse)
	if err := d.store.Save(ctx, s); err != nil {
		return s, fmt.Errorf("save session: %w", err)
	}

	for s.TurnCount < budget && !reply.IsComplete {
		msg, err := d.nextMessage(ctx, s, reply.StudentResponse)
		if err != nil {
			return s, fmt.Errorf("turn %d: %w", s.TurnCount, err)
		}

		reply, err = d.conv.Interact(ctx, convID, msg)
		if err != nil {
			return s, fmt.Errorf("turn %d: %w", s.TurnCount, err)
		}
		s.RecordExchange(msg, reply.StudentResponse)

		if err := d.store.Save(ctx, s); err != nil {
			return s, fmt.Errorf("save session: %w", err)
		}
	}

	before := s.EstimatedLevel
	changed, err := session.Finalize(s)
	if err != nil {
		return s, err
	}
	if changed {
		d.metrics.RecordFinalizerOverride()
		log.Info("finalizer replaced level", zap.Int("from", before), zap.Int("to", s.EstimatedLevel))
	}
	if s.LevelLocked {
		d.metrics.RecordLock(string(s.SwitchReason))
	}
	if err := d.store.Save(ctx, s); err != nil {
		return s, fmt.Errorf("save session: %w", err)
	}

	log.Info("conversation finished",
		zap.Int("turns", s.TurnCount),
		zap.Int("level", s.EstimatedLevel),
		zap.Float64("confidence", s.Confidence),
		zap.String("switch_reason", string(s.SwitchReason)),
		zap.Bool("complete", reply.IsComplete))
	return s, nil
}

// nextMessage plays one turn of the state machine and returns what to send.
func (d *Driver) nextMessage(ctx context.Context, s *session.Session, studentMsg string) (string, error) {
	if d.ctrl.BeginTurn(s) == session.PhaseDiagnosis {
		out, err := d.oracle.Analyze(ctx, s, studentMsg)
		if err != nil {
			return "", err
		}
		return d.ctrl.Diagnose(s, out)
	}

	msg, err := d.oracle.Teach(ctx, s, studentMsg)
	if err != nil {
		return "", err
	}
	d.emit(s, trace.AgentTutor, fmt.Sprintf("%s persona at level %d", s.Persona(), s.EstimatedLevel))
	return msg, nil
}

func (d *Driver) emit(s *session.Session, agent, detail string) {
	d.sink.Emit(trace.Event{
		StudentID: s.StudentID,
		TopicID:   s.TopicID,
		Topic:     s.TopicName,
		Agent:     agent,
		Detail:    detail,
	})
}
