package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/session"
)

// scriptedOracle returns the same judgment every turn.
type scriptedOracle struct {
	judgment session.DetectiveOutput
	panicFor string

	mu       sync.Mutex
	analyzed int
	taught   int
}

func (o *scriptedOracle) Opener(_ context.Context, topic string) (string, error) {
	return "Trap question about " + topic, nil
}

func (o *scriptedOracle) Analyze(_ context.Context, s *session.Session, _ string) (session.DetectiveOutput, error) {
	if s.StudentID == o.panicFor {
		panic("oracle exploded")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.analyzed++
	return o.judgment, nil
}

func (o *scriptedOracle) Teach(_ context.Context, s *session.Session, _ string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taught++
	return fmt.Sprintf("%s lesson %d", s.Persona(), o.taught), nil
}

var errAPIDown = errors.New("conversation API unavailable")

// fakeConversation answers every message. A student listed in failAt gets
// an error on that interact call (1-based); completeAfter marks the
// conversation complete after that many replies. onStart, if set, sees
// every started student.
type fakeConversation struct {
	failAt        map[string]int
	completeAfter int
	onStart       func(studentID string)

	mu    sync.Mutex
	convs map[string]string // conversation id -> student id
	calls map[string]int
	sent  map[string][]string
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{
		failAt: map[string]int{},
		convs:  map[string]string{},
		calls:  map[string]int{},
		sent:   map[string][]string{},
	}
}

func (c *fakeConversation) Start(_ context.Context, studentID, topicID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := "conv-" + studentID + "-" + topicID
	c.convs[id] = studentID
	if c.onStart != nil {
		c.onStart(studentID)
	}
	return id, nil
}

func (c *fakeConversation) Interact(_ context.Context, conversationID, message string) (knowunity.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[conversationID]++
	n := c.calls[conversationID]
	if at, ok := c.failAt[c.convs[conversationID]]; ok && n == at {
		return knowunity.Reply{}, errAPIDown
	}
	c.sent[conversationID] = append(c.sent[conversationID], message)
	return knowunity.Reply{
		StudentResponse: fmt.Sprintf("reply %d", n),
		IsComplete:      c.completeAfter > 0 && n >= c.completeAfter,
	}, nil
}

func (c *fakeConversation) messages(conversationID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent[conversationID]...)
}

// memStore keeps the last saved copy of each session.
type memStore struct {
	mu       sync.Mutex
	saves    int
	sessions map[string]session.Session
	failOn   int
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]session.Session{}}
}

func (m *memStore) Save(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failOn > 0 && m.saves == m.failOn {
		return errors.New("disk full")
	}
	m.sessions[s.StudentID+"/"+s.TopicID] = *s
	return nil
}

func (m *memStore) get(studentID, topicID string) (session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[studentID+"/"+topicID]
	return s, ok
}

// staticDirectory serves a fixed student/topic listing.
type staticDirectory struct {
	students []knowunity.Student
	topics   map[string][]knowunity.Topic
	err      error
}

func (d *staticDirectory) ListStudents(context.Context, string) ([]knowunity.Student, error) {
	return d.students, d.err
}

func (d *staticDirectory) Topics(_ context.Context, studentID string) ([]knowunity.Topic, error) {
	return d.topics[studentID], nil
}
