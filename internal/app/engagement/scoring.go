package engagement

import "math"

// ─── Point Formulas ─────────────────────────────────────────────────────────
// points = round(base × scoreBonus × timeBonus)

// ScoreBonus returns the multiplier for a passing score.
func ScoreBonus(score int) float64 {
	switch {
	case score >= 95:
		return 1.5
	case score >= 85:
		return 1.3
	case score >= 75:
		return 1.1
	}
	return 1.0
}

// Efficiency returns time spent relative to the expected duration, or 0
// when the activity has no expected duration.
func Efficiency(timeSpentSeconds, durationMinutes int) float64 {
	if durationMinutes <= 0 {
		return 0
	}
	return float64(timeSpentSeconds) / float64(durationMinutes*60)
}

// TimeBonus returns the multiplier for how quickly the activity was done.
func TimeBonus(timeSpentSeconds, durationMinutes int) float64 {
	if durationMinutes <= 0 {
		return 1.0
	}
	ratio := Efficiency(timeSpentSeconds, durationMinutes)
	switch {
	case ratio <= 0.8:
		return 1.2
	case ratio <= 1.0:
		return 1.1
	case ratio <= 1.5:
		return 1.0
	}
	return 0.9
}

// ActivityPoints computes the grant for a passing attempt.
func ActivityPoints(base int64, score, timeSpentSeconds, durationMinutes int) int64 {
	return int64(math.Round(float64(base) * ScoreBonus(score) * TimeBonus(timeSpentSeconds, durationMinutes)))
}

// CompletionBonus returns the course completion bonus for the number of
// days between enrollment and completion.
func CompletionBonus(days int) int64 {
	switch {
	case days <= 7:
		return 50
	case days <= 14:
		return 30
	case days <= 21:
		return 15
	}
	return 0
}

// FastFinisherDays is the completion window of the fast finisher badge.
const FastFinisherDays = 7

// SpeedLearnerRatio is the efficiency at or below which an attempt earns
// the speed learner badge.
const SpeedLearnerRatio = 0.8
