package session

import "slices"

// Finalize reconciles the estimate once the conversation is over. When the
// session ended ambiguously (shot clock, or confidence below the lock
// threshold) the level is replaced by the median of the last
// FinalizerWindow computed levels. It reports whether the level changed and
// may only run once per session.
func Finalize(s *Session) (bool, error) {
	if s.Finalized {
		return false, ErrAlreadyFinalized
	}
	s.Finalized = true

	if len(s.DiagnosticEvents) == 0 {
		return false, nil
	}
	if s.SwitchReason != ReasonShotClock && s.Confidence >= LockThreshold {
		return false, nil
	}

	median := MedianLevel(s.DiagnosticEvents, FinalizerWindow)
	if median == s.EstimatedLevel {
		return false, nil
	}
	s.EstimatedLevel = median
	return true, nil
}

// MedianLevel returns the lower median of the computed levels of the last
// window events. It returns DefaultLevel for an empty slice.
func MedianLevel(events []DiagnosticEvent, window int) int {
	if len(events) == 0 || window <= 0 {
		return DefaultLevel
	}
	k := min(window, len(events))
	levels := make([]int, 0, k)
	for _, e := range events[len(events)-k:] {
		levels = append(levels, e.ComputedLevel)
	}
	slices.Sort(levels)
	return levels[k/2]
}
