// Package session holds the diagnosis-to-tutoring state machine for one
// student-topic conversation.
package session

import (
	"fmt"
	"math"

	"github.com/abhisek/tutorloop/internal/trace"
	"go.uber.org/zap"
)

// Phase is what a turn is used for.
type Phase int

const (
	PhaseDiagnosis Phase = iota
	PhaseTutoring
)

func (p Phase) String() string {
	if p == PhaseDiagnosis {
		return "diagnosis"
	}
	return "tutoring"
}

// Controller applies turn-by-turn state transitions to sessions. It holds no
// per-session state, so a single Controller may drive many sessions
// concurrently as long as each Session is used by one goroutine.
type Controller struct {
	log  *zap.Logger
	sink trace.Sink
}

// NewController creates a Controller. Nil arguments are replaced by no-ops.
func NewController(log *zap.Logger, sink trace.Sink) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = trace.Nop()
	}
	return &Controller{log: log, sink: sink}
}

// BeginTurn applies the shot clock and returns the phase for the turn about
// to be played.
func (c *Controller) BeginTurn(s *Session) Phase {
	if !s.LevelLocked && s.TurnCount >= ShotClock {
		s.lock(ReasonShotClock)
		c.emit(s, trace.AgentShotClock,
			fmt.Sprintf("turn %d reached, locking level %d at confidence %.2f", s.TurnCount, s.EstimatedLevel, s.Confidence))
		c.log.Info("level locked",
			zap.String("student_id", s.StudentID),
			zap.String("topic_id", s.TopicID),
			zap.String("reason", string(ReasonShotClock)),
			zap.Int("turn", s.TurnCount),
			zap.Int("level", s.EstimatedLevel))
	}

	if !s.LevelLocked && s.Confidence < LockThreshold {
		return PhaseDiagnosis
	}
	return PhaseTutoring
}

// Diagnose folds one oracle judgment into the session and returns the
// message to send to the student. It must only be called in the diagnosis
// phase; a locked session yields ErrLocked and is left untouched.
func (c *Controller) Diagnose(s *Session, out DetectiveOutput) (string, error) {
	if s.LevelLocked {
		return "", ErrLocked
	}

	out = normalize(out)
	signal := Signal(out)

	c.updateLevel(s, out)
	s.Confidence = smoothConfidence(s.Confidence, out.Confidence)

	if out.HasMisconception() {
		s.Misconceptions = append(s.Misconceptions, *out.Misconception)
	}
	s.DiagnosticEvents = append(s.DiagnosticEvents, DiagnosticEvent{
		Turn:           s.TurnCount,
		IsCorrect:      out.IsCorrect,
		ReasoningScore: out.ReasoningScore,
		Misconception:  out.Misconception,
		LLMLevel:       out.EstimatedLevel,
		ComputedLevel:  s.EstimatedLevel,
		Confidence:     s.Confidence,
		Signal:         signal,
	})

	c.emit(s, trace.AgentDetective, fmt.Sprintf("correct=%t reasoning=%d/5 llm_level=%d level=%d confidence=%.2f",
		out.IsCorrect, out.ReasoningScore, out.EstimatedLevel, s.EstimatedLevel, s.Confidence))
	c.log.Debug("diagnosis turn",
		zap.String("student_id", s.StudentID),
		zap.String("topic_id", s.TopicID),
		zap.Int("turn", s.TurnCount),
		zap.Int("llm_level", out.EstimatedLevel),
		zap.Int("level", s.EstimatedLevel),
		zap.Int("promo_votes", s.PromoVotes),
		zap.Float64("confidence", s.Confidence),
		zap.Float64("signal", signal))

	switch {
	case out.Confidence >= EarlyExitConfidence && out.IsCorrect &&
		out.ReasoningScore >= strongReasoning && len(s.DiagnosticEvents) >= EarlyExitMinEvents:
		c.lockFromGate(s, ReasonEarlyExit)
	case s.Confidence >= LockThreshold:
		c.lockFromGate(s, ReasonConfidence)
	}

	return out.NextMessage, nil
}

// Signal is the evidence score of a judgment. It is informational only.
func Signal(out DetectiveOutput) float64 {
	var signal float64
	if out.IsCorrect {
		signal += 1.0
	}
	if out.ReasoningScore >= strongReasoning {
		signal += 0.5
	}
	if out.HasMisconception() {
		signal -= 0.8
	}
	return signal
}

func (c *Controller) updateLevel(s *Session, out DetectiveOutput) {
	suggested := out.EstimatedLevel

	switch {
	case s.TurnCount <= 1:
		s.EstimatedLevel = suggested
	case s.TurnCount == 2:
		avg := math.RoundToEven(float64(s.EstimatedLevel+suggested) / 2)
		s.EstimatedLevel = clampLevel(int(avg))
	case suggested > s.EstimatedLevel:
		s.PromoVotes++
		if s.PromoVotes >= PromotionVotes {
			s.EstimatedLevel = min(s.EstimatedLevel+1, MaxLevel)
			s.PromoVotes = 0
		}
	case suggested < s.EstimatedLevel:
		if !out.IsCorrect && out.ReasoningScore <= weakReasoning {
			s.EstimatedLevel = max(s.EstimatedLevel-1, MinLevel)
		}
		s.PromoVotes = 0
	default:
		s.PromoVotes = 0
	}
}

// smoothConfidence moves toward the oracle's confidence by at most
// MaxConfidenceStep, never lowering the current value.
func smoothConfidence(current, oracle float64) float64 {
	next := min(current+MaxConfidenceStep, oracle)
	next = max(next, current)
	next = min(next, MaxConfidence)
	return math.Round(next*100) / 100
}

func (c *Controller) lockFromGate(s *Session, reason SwitchReason) {
	s.lock(reason)
	c.emit(s, trace.AgentConfidenceGate,
		fmt.Sprintf("%s lock at level %d (%s), confidence %.2f", reason, s.EstimatedLevel, s.Persona(), s.Confidence))
	c.log.Info("level locked",
		zap.String("student_id", s.StudentID),
		zap.String("topic_id", s.TopicID),
		zap.String("reason", string(reason)),
		zap.Int("turn", s.TurnCount),
		zap.Int("level", s.EstimatedLevel),
		zap.Float64("confidence", s.Confidence))
}

func (c *Controller) emit(s *Session, agent, detail string) {
	c.sink.Emit(trace.Event{
		StudentID: s.StudentID,
		TopicID:   s.TopicID,
		Topic:     s.TopicName,
		Agent:     agent,
		Detail:    detail,
	})
}

func normalize(out DetectiveOutput) DetectiveOutput {
	out.EstimatedLevel = clampLevel(out.EstimatedLevel)
	out.ReasoningScore = min(max(out.ReasoningScore, 1), 5)
	out.Confidence = clampUnit(out.Confidence)
	if out.Misconception != nil && *out.Misconception == "" {
		out.Misconception = nil
	}
	return out
}
