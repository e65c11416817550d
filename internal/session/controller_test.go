package session

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/abhisek/tutorloop/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func judgment(level int, conf float64) DetectiveOutput {
	return DetectiveOutput{
		IsCorrect:      true,
		ReasoningScore: 3,
		EstimatedLevel: level,
		Confidence:     conf,
		NextMessage:    "next question",
	}
}

// sessionAt returns a session positioned at the given turn and level.
func sessionAt(turn, level int) *Session {
	s := New("stu-1", "top-1", "Linear equations")
	s.TurnCount = turn
	s.EstimatedLevel = level
	return s
}

func TestScenarioA_TurnTwoAveragesFirstTwoOpinions(t *testing.T) {
	c := NewController(nil, nil)
	s := New("stu-1", "top-1", "Linear equations")
	s.TurnCount = 1

	_, err := c.Diagnose(s, judgment(2, 0.3))
	require.NoError(t, err)
	assert.Equal(t, 2, s.EstimatedLevel)

	s.TurnCount = 2
	_, err = c.Diagnose(s, judgment(4, 0.3))
	require.NoError(t, err)
	assert.Equal(t, 3, s.EstimatedLevel)
}

func TestTurnTwoRoundsHalfToEven(t *testing.T) {
	tests := []struct {
		prev, suggested, want int
	}{
		{2, 3, 2},
		{3, 4, 4},
		{1, 2, 2},
		{4, 5, 4},
		{5, 5, 5},
		{1, 1, 1},
	}
	c := NewController(nil, nil)
	for _, tt := range tests {
		s := sessionAt(2, tt.prev)
		_, err := c.Diagnose(s, judgment(tt.suggested, 0.2))
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.EstimatedLevel, "round((%d+%d)/2)", tt.prev, tt.suggested)
	}
}

func TestScenarioB_PromotionNeedsTwoConsecutiveVotes(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(3, 3)

	weak := DetectiveOutput{IsCorrect: true, ReasoningScore: 3, EstimatedLevel: 4, Confidence: 0.3}
	_, err := c.Diagnose(s, weak)
	require.NoError(t, err)
	assert.Equal(t, 3, s.EstimatedLevel)
	assert.Equal(t, 1, s.PromoVotes)

	s.TurnCount = 4
	_, err = c.Diagnose(s, weak)
	require.NoError(t, err)
	assert.Equal(t, 4, s.EstimatedLevel)
	assert.Equal(t, 0, s.PromoVotes)
}

func TestPromotionStreakBrokenBySameLevel(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(3, 3)

	_, _ = c.Diagnose(s, judgment(5, 0.2))
	assert.Equal(t, 1, s.PromoVotes)

	s.TurnCount++
	_, _ = c.Diagnose(s, judgment(3, 0.2))
	assert.Equal(t, 0, s.PromoVotes)

	s.TurnCount++
	_, _ = c.Diagnose(s, judgment(5, 0.2))
	assert.Equal(t, 3, s.EstimatedLevel, "a broken streak must start over")
	assert.Equal(t, 1, s.PromoVotes)
}

func TestPromotionCappedAtMaxLevel(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(3, MaxLevel)
	s.PromoVotes = 1

	// Out-of-range suggestions are clamped, so a level-5 session only ever
	// sees same-level votes.
	_, _ = c.Diagnose(s, judgment(MaxLevel+2, 0.2))
	assert.Equal(t, MaxLevel, s.EstimatedLevel)
	assert.Equal(t, 0, s.PromoVotes)
}

func TestScenarioC_StrongNegativeEvidenceDemotesImmediately(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(3, 3)
	s.PromoVotes = 1

	_, err := c.Diagnose(s, DetectiveOutput{IsCorrect: false, ReasoningScore: 1, EstimatedLevel: 2, Confidence: 0.3})
	require.NoError(t, err)
	assert.Equal(t, 2, s.EstimatedLevel)
	assert.Equal(t, 0, s.PromoVotes)
}

func TestWeakNegativeEvidenceIsIgnored(t *testing.T) {
	tests := []struct {
		name string
		out  DetectiveOutput
	}{
		{"correct answer", DetectiveOutput{IsCorrect: true, ReasoningScore: 1, EstimatedLevel: 1, Confidence: 0.3}},
		{"decent reasoning", DetectiveOutput{IsCorrect: false, ReasoningScore: 3, EstimatedLevel: 1, Confidence: 0.3}},
	}
	c := NewController(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionAt(4, 3)
			_, err := c.Diagnose(s, tt.out)
			require.NoError(t, err)
			assert.Equal(t, 3, s.EstimatedLevel)
		})
	}
}

func TestDemotionFlooredAtMinLevel(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(3, MinLevel)
	_, _ = c.Diagnose(s, DetectiveOutput{IsCorrect: false, ReasoningScore: 1, EstimatedLevel: 0, Confidence: 0.1})
	assert.Equal(t, MinLevel, s.EstimatedLevel)
}

func TestScenarioD_ShotClockLocksRegardlessOfConfidence(t *testing.T) {
	rec := &trace.Recorder{}
	c := NewController(nil, rec)
	s := sessionAt(ShotClock, 3)
	s.Confidence = 0.1

	phase := c.BeginTurn(s)

	assert.Equal(t, PhaseTutoring, phase)
	assert.True(t, s.LevelLocked)
	assert.Equal(t, ReasonShotClock, s.SwitchReason)
	assert.Equal(t, []string{trace.AgentShotClock}, rec.Agents())
}

func TestBeginTurnBeforeShotClock(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(ShotClock-1, 3)

	assert.Equal(t, PhaseDiagnosis, c.BeginTurn(s))
	assert.False(t, s.LevelLocked)
}

func TestShotClockDoesNotOverrideEarlierLock(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(ShotClock+1, 4)
	s.lock(ReasonConfidence)

	assert.Equal(t, PhaseTutoring, c.BeginTurn(s))
	assert.Equal(t, ReasonConfidence, s.SwitchReason)
}

func TestConfidenceIsStepLimitedAndCapped(t *testing.T) {
	tests := []struct {
		current, oracle, want float64
	}{
		{0, 0.9, 0.15},
		{0.15, 0.9, 0.3},
		{0.3, 0.35, 0.35},
		{0.85, 1.0, 0.95},
		{0.95, 1.0, 0.95},
		{0.6, 0.2, 0.6},
		{0.333, 0.9, 0.48},
	}
	for _, tt := range tests {
		got := smoothConfidence(tt.current, tt.oracle)
		assert.InDelta(t, tt.want, got, 1e-9, "smooth(%v, %v)", tt.current, tt.oracle)
	}
}

func TestConfidenceLock(t *testing.T) {
	rec := &trace.Recorder{}
	c := NewController(nil, rec)
	s := sessionAt(3, 3)
	s.Confidence = 0.6

	msg, err := c.Diagnose(s, judgment(3, 0.8))
	require.NoError(t, err)

	assert.Equal(t, "next question", msg)
	assert.InDelta(t, 0.75, s.Confidence, 1e-9)
	assert.True(t, s.LevelLocked)
	assert.Equal(t, ReasonConfidence, s.SwitchReason)
	assert.Equal(t, []string{trace.AgentDetective, trace.AgentConfidenceGate}, rec.Agents())
	assert.Equal(t, PhaseTutoring, c.BeginTurn(s))
}

func TestEarlyExitRequiresThreeEvents(t *testing.T) {
	strong := DetectiveOutput{IsCorrect: true, ReasoningScore: 5, EstimatedLevel: 4, Confidence: 0.9}
	c := NewController(nil, nil)
	s := New("stu-1", "top-1", "Linear equations")

	for turn := 1; turn <= 2; turn++ {
		s.TurnCount = turn
		_, err := c.Diagnose(s, strong)
		require.NoError(t, err)
		assert.False(t, s.LevelLocked, "turn %d must not exit early", turn)
	}

	s.TurnCount = 3
	_, err := c.Diagnose(s, strong)
	require.NoError(t, err)
	assert.True(t, s.LevelLocked)
	assert.Equal(t, ReasonEarlyExit, s.SwitchReason)
	assert.InDelta(t, 0.45, s.Confidence, 1e-9, "early exit happens below the lock threshold")
}

func TestEarlyExitTakesPrecedenceOverConfidenceLock(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(4, 4)
	s.Confidence = 0.7
	s.DiagnosticEvents = make([]DiagnosticEvent, 2)

	_, err := c.Diagnose(s, DetectiveOutput{IsCorrect: true, ReasoningScore: 4, EstimatedLevel: 4, Confidence: 0.9})
	require.NoError(t, err)
	assert.Equal(t, ReasonEarlyExit, s.SwitchReason)
}

func TestLockMidTurnIsTerminal(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(4, 3)
	s.PromoVotes = 1
	s.Confidence = 0.7

	// Second promote vote and the confidence lock land on the same turn; the
	// promotion is applied before the gate and nothing runs after it.
	_, err := c.Diagnose(s, judgment(4, 0.9))
	require.NoError(t, err)
	assert.Equal(t, 4, s.EstimatedLevel)
	assert.True(t, s.LevelLocked)

	_, err = c.Diagnose(s, judgment(5, 0.9))
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 4, s.EstimatedLevel)
	assert.Len(t, s.DiagnosticEvents, 1)
}

func TestDiagnoseRecordsEventAndMisconception(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(1, 3)

	out := DetectiveOutput{
		IsCorrect:      false,
		ReasoningScore: 2,
		Misconception:  strPtr("sign error when moving terms"),
		EstimatedLevel: 2,
		Confidence:     0.4,
		NextMessage:    "What happens to the sign?",
	}
	msg, err := c.Diagnose(s, out)
	require.NoError(t, err)

	assert.Equal(t, "What happens to the sign?", msg)
	assert.Equal(t, []string{"sign error when moving terms"}, s.Misconceptions)
	require.Len(t, s.DiagnosticEvents, 1)
	ev := s.DiagnosticEvents[0]
	assert.Equal(t, 1, ev.Turn)
	assert.Equal(t, 2, ev.LLMLevel)
	assert.Equal(t, 2, ev.ComputedLevel)
	assert.InDelta(t, 0.15, ev.Confidence, 1e-9)
	assert.InDelta(t, -0.8, ev.Signal, 1e-9)
}

func TestDiagnoseClampsOutOfRangeJudgments(t *testing.T) {
	c := NewController(nil, nil)
	s := sessionAt(1, 3)

	_, err := c.Diagnose(s, DetectiveOutput{EstimatedLevel: 9, ReasoningScore: 0, Confidence: 3})
	require.NoError(t, err)
	assert.Equal(t, MaxLevel, s.EstimatedLevel)
	assert.Equal(t, 1, s.DiagnosticEvents[0].ReasoningScore)
	assert.LessOrEqual(t, s.Confidence, MaxConfidenceStep)
}

func TestSignal(t *testing.T) {
	tests := []struct {
		out  DetectiveOutput
		want float64
	}{
		{DetectiveOutput{IsCorrect: true, ReasoningScore: 4}, 1.5},
		{DetectiveOutput{IsCorrect: true, ReasoningScore: 3}, 1.0},
		{DetectiveOutput{IsCorrect: false, ReasoningScore: 5, Misconception: strPtr("x")}, -0.3},
		{DetectiveOutput{IsCorrect: false, ReasoningScore: 1, Misconception: strPtr("")}, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Signal(tt.out), 1e-9)
	}
}

// TestInvariantsUnderRandomJudgments drives many sessions with arbitrary
// oracle output and checks the state machine's invariants after every turn.
func TestInvariantsUnderRandomJudgments(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	c := NewController(nil, nil)

	for run := 0; run < 500; run++ {
		s := New("stu", "top", "topic")
		s.RecordOpening("opener", "reply")
		budget := 1 + rng.IntN(10)

		for s.TurnCount < budget {
			prevLevel := s.EstimatedLevel
			prevConf := s.Confidence
			prevVotes := s.PromoVotes
			wasLocked := s.LevelLocked
			prevReason := s.SwitchReason

			phase := c.BeginTurn(s)
			if phase == PhaseDiagnosis {
				var mis *string
				if rng.IntN(3) == 0 {
					mis = strPtr("misconception")
				}
				out := DetectiveOutput{
					IsCorrect:      rng.IntN(2) == 0,
					ReasoningScore: 1 + rng.IntN(5),
					Misconception:  mis,
					EstimatedLevel: 1 + rng.IntN(5),
					Confidence:     math.Round(rng.Float64()*100) / 100,
				}
				_, err := c.Diagnose(s, out)
				require.NoError(t, err)

				if s.TurnCount >= 3 {
					switch {
					case s.EstimatedLevel > prevLevel:
						assert.Equal(t, PromotionVotes-1, prevVotes, "promotion needs a prior vote")
						assert.Equal(t, prevLevel+1, s.EstimatedLevel)
					case s.EstimatedLevel < prevLevel:
						assert.False(t, out.IsCorrect)
						assert.LessOrEqual(t, out.ReasoningScore, weakReasoning)
						assert.Equal(t, prevLevel-1, s.EstimatedLevel)
					}
					if out.EstimatedLevel <= prevLevel {
						assert.Zero(t, s.PromoVotes)
					}
				}
			} else {
				assert.Equal(t, prevLevel, s.EstimatedLevel, "tutoring never mutates the level")
			}

			assert.GreaterOrEqual(t, s.EstimatedLevel, MinLevel)
			assert.LessOrEqual(t, s.EstimatedLevel, MaxLevel)
			assert.GreaterOrEqual(t, s.Confidence, prevConf)
			assert.LessOrEqual(t, s.Confidence-prevConf, MaxConfidenceStep+1e-9)
			assert.LessOrEqual(t, s.Confidence, MaxConfidence)
			assert.LessOrEqual(t, len(s.DiagnosticEvents), s.TurnCount)
			if wasLocked {
				assert.Equal(t, prevReason, s.SwitchReason, "switch reason is set once")
				assert.Equal(t, prevLevel, s.EstimatedLevel)
			}
			if s.LevelLocked {
				assert.Contains(t, []SwitchReason{ReasonConfidence, ReasonShotClock, ReasonEarlyExit}, s.SwitchReason)
			} else {
				assert.Equal(t, ReasonNone, s.SwitchReason)
				assert.Less(t, s.TurnCount, ShotClock)
			}

			s.RecordExchange("tutor", "student")
		}

		_, err := Finalize(s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.EstimatedLevel, MinLevel)
		assert.LessOrEqual(t, s.EstimatedLevel, MaxLevel)
	}
}
