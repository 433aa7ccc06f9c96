package domain

import (
	"fmt"
	"time"
)

// ─── Badge Criteria ─────────────────────────────────────────────────────────
// Criteria is a closed sum type: only the variants below implement it.

// CriteriaKind is the stored discriminator of a Criteria value.
type CriteriaKind string

const (
	KindCompletionCount CriteriaKind = "completion_count"
	KindPointThreshold  CriteriaKind = "point_threshold"
	KindStreakLength    CriteriaKind = "streak_length"
	KindEnrollmentCount CriteriaKind = "enrollment_count"
	KindSpecial         CriteriaKind = "special"
)

// Criteria is the rule a user must satisfy to earn a badge.
type Criteria interface {
	Kind() CriteriaKind
	isCriteria()
}

// CompletionCount requires at least N completed activities.
type CompletionCount struct{ N int }

// PointThreshold requires at least N total points.
type PointThreshold struct{ N int64 }

// StreakLength requires a current streak of at least N days.
type StreakLength struct{ N int }

// EnrollmentCount requires at least N course enrollments.
type EnrollmentCount struct{ N int }

// Special is a named one-off condition.
type Special struct{ Tag string }

func (CompletionCount) Kind() CriteriaKind { return KindCompletionCount }
func (PointThreshold) Kind() CriteriaKind  { return KindPointThreshold }
func (StreakLength) Kind() CriteriaKind    { return KindStreakLength }
func (EnrollmentCount) Kind() CriteriaKind { return KindEnrollmentCount }
func (Special) Kind() CriteriaKind         { return KindSpecial }

func (CompletionCount) isCriteria() {}
func (PointThreshold) isCriteria()  {}
func (StreakLength) isCriteria()    {}
func (EnrollmentCount) isCriteria() {}
func (Special) isCriteria()         {}

// Special condition tags understood by the badge evaluator.
const (
	TagFirstActivity = "first_activity"
	TagPerfectScore  = "perfect_score"
	TagSpeedLearner  = "speed_learner"
	TagWelcome       = "welcome"
	TagFirstCourse   = "first_course"
	TagFastFinisher  = "fast_finisher"
	TagLevel5        = "level_5"
	TagLevel10       = "level_10"
)

// ParseCriteria rebuilds a Criteria from its stored columns.
func ParseCriteria(kind string, threshold int64, tag string) (Criteria, error) {
	switch CriteriaKind(kind) {
	case KindCompletionCount:
		if threshold <= 0 {
			return nil, fmt.Errorf("%w: completion count %d", ErrInvalidCriteria, threshold)
		}
		return CompletionCount{N: int(threshold)}, nil
	case KindPointThreshold:
		if threshold <= 0 {
			return nil, fmt.Errorf("%w: point threshold %d", ErrInvalidCriteria, threshold)
		}
		return PointThreshold{N: threshold}, nil
	case KindStreakLength:
		if threshold <= 0 {
			return nil, fmt.Errorf("%w: streak length %d", ErrInvalidCriteria, threshold)
		}
		return StreakLength{N: int(threshold)}, nil
	case KindEnrollmentCount:
		if threshold <= 0 {
			return nil, fmt.Errorf("%w: enrollment count %d", ErrInvalidCriteria, threshold)
		}
		return EnrollmentCount{N: int(threshold)}, nil
	case KindSpecial:
		if tag == "" {
			return nil, fmt.Errorf("%w: special badge without tag", ErrInvalidCriteria)
		}
		return Special{Tag: tag}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidCriteria, kind)
}

// CriteriaColumns flattens a Criteria into its stored columns.
func CriteriaColumns(c Criteria) (kind string, threshold int64, tag string) {
	switch v := c.(type) {
	case CompletionCount:
		return string(v.Kind()), int64(v.N), ""
	case PointThreshold:
		return string(v.Kind()), v.N, ""
	case StreakLength:
		return string(v.Kind()), int64(v.N), ""
	case EnrollmentCount:
		return string(v.Kind()), int64(v.N), ""
	case Special:
		return string(v.Kind()), 0, v.Tag
	}
	return "", 0, ""
}

// ─── Badges ─────────────────────────────────────────────────────────────────

// Badge is an award definition. Criteria is nil when the stored rule could
// not be parsed; such badges are never awarded.
type Badge struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Criteria    Criteria `json:"-"`
	IsActive    bool     `json:"is_active"`
}

// BadgeAward records that a user earned a badge. At most one per pair.
type BadgeAward struct {
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}
