package session

import (
	"errors"
	"time"
)

// Level bounds and diagnosis tuning.
const (
	MinLevel     = 1
	MaxLevel     = 5
	DefaultLevel = 3

	// ShotClock is the turn count at which diagnosis is forcibly ended.
	ShotClock = 6

	// LockThreshold is the smoothed confidence at which the level locks.
	LockThreshold = 0.75

	// MaxConfidence caps the smoothed confidence.
	MaxConfidence = 0.95

	// MaxConfidenceStep is the largest per-turn confidence increase.
	MaxConfidenceStep = 0.15

	// EarlyExitConfidence is the raw oracle confidence needed for an early exit.
	EarlyExitConfidence = 0.85

	// EarlyExitMinEvents is the number of diagnostic events required before
	// an early exit may fire.
	EarlyExitMinEvents = 3

	// PromotionVotes is the number of consecutive promote votes needed to
	// raise the level by one.
	PromotionVotes = 2

	// FinalizerWindow is how many trailing diagnostic events the finalizer
	// takes the median over.
	FinalizerWindow = 3

	strongReasoning = 4
	weakReasoning   = 2
)

// ErrAlreadyFinalized is returned when Finalize runs twice on one session.
var ErrAlreadyFinalized = errors.New("session already finalized")

// ErrLocked is returned when a diagnosis is applied to a locked session.
var ErrLocked = errors.New("session level is locked")

// SwitchReason records why a session left the diagnosis phase.
type SwitchReason string

const (
	ReasonNone       SwitchReason = ""
	ReasonConfidence SwitchReason = "confidence"
	ReasonShotClock  SwitchReason = "shot_clock"
	ReasonEarlyExit  SwitchReason = "early_exit"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleTutor   Role = "tutor"
	RoleStudent Role = "student"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DetectiveOutput is the oracle's judgment of one student response.
type DetectiveOutput struct {
	IsCorrect      bool    `json:"is_correct"`
	ReasoningScore int     `json:"reasoning_score"`
	Misconception  *string `json:"misconception"`
	EstimatedLevel int     `json:"estimated_level"`
	Confidence     float64 `json:"confidence"`
	NextMessage    string  `json:"next_message"`
}

// HasMisconception reports whether the judgment names a non-empty misconception.
func (o DetectiveOutput) HasMisconception() bool {
	return o.Misconception != nil && *o.Misconception != ""
}

// DiagnosticEvent is the record of one diagnosis turn.
type DiagnosticEvent struct {
	Turn           int     `json:"turn"`
	IsCorrect      bool    `json:"is_correct"`
	ReasoningScore int     `json:"reasoning_score"`
	Misconception  *string `json:"misconception,omitempty"`

	// LLMLevel is the level the oracle suggested.
	LLMLevel int `json:"llm_level"`

	// ComputedLevel is the level the controller actually set.
	ComputedLevel int `json:"computed_level"`

	// Confidence is the smoothed confidence after this turn.
	Confidence float64 `json:"confidence"`

	// Signal is the informational evidence score for this turn.
	Signal float64 `json:"signal"`
}

// Session is the full state of one student-topic conversation.
type Session struct {
	StudentID      string `json:"student_id"`
	TopicID        string `json:"topic_id"`
	TopicName      string `json:"topic_name"`
	ConversationID string `json:"conversation_id,omitempty"`

	// TurnCount is 1 after the opening exchange and grows by one per
	// message pair.
	TurnCount int `json:"turn_count"`

	EstimatedLevel int     `json:"estimated_level"`
	Confidence     float64 `json:"confidence"`

	// PromoVotes counts consecutive turns voting to promote.
	PromoVotes int `json:"promo_votes"`

	LevelLocked  bool         `json:"level_locked"`
	SwitchReason SwitchReason `json:"switch_reason"`

	Misconceptions   []string          `json:"misconceptions"`
	DiagnosticEvents []DiagnosticEvent `json:"diagnostic_events"`
	History          []Message         `json:"history"`

	// Finalized is set once Finalize has run.
	Finalized bool `json:"finalized"`

	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh session at the default level with zero confidence.
func New(studentID, topicID, topicName string) *Session {
	return &Session{
		StudentID:      studentID,
		TopicID:        topicID,
		TopicName:      topicName,
		EstimatedLevel: DefaultLevel,
	}
}

// AddMessage appends a message to the history.
func (s *Session) AddMessage(role Role, content string) {
	s.History = append(s.History, Message{Role: role, Content: content})
}

// RecordOpening stores the opening exchange and starts turn counting at 1.
func (s *Session) RecordOpening(opener, reply string) {
	s.AddMessage(RoleTutor, opener)
	s.AddMessage(RoleStudent, reply)
	s.TurnCount = 1
}

// RecordExchange stores one tutor/student message pair and advances the turn.
func (s *Session) RecordExchange(tutor, reply string) {
	s.AddMessage(RoleTutor, tutor)
	s.AddMessage(RoleStudent, reply)
	s.TurnCount++
}

// LastStudentMessage returns the most recent student message, or "".
func (s *Session) LastStudentMessage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleStudent {
			return s.History[i].Content
		}
	}
	return ""
}

// Persona returns the tutoring persona for the current level.
func (s *Session) Persona() Persona {
	return PersonaForLevel(s.EstimatedLevel)
}

func (s *Session) lock(reason SwitchReason) {
	s.LevelLocked = true
	s.SwitchReason = reason
}

func clampLevel(l int) int {
	return min(max(l, MinLevel), MaxLevel)
}

func clampUnit(f float64) float64 {
	return min(max(f, 0), 1)
}
