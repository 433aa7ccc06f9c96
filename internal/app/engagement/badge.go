package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/logger"
)

// Stats is the snapshot a badge is evaluated against. Event-specific
// fields are only meaningful for the trigger that filled them.
type Stats struct {
	CompletedActivities int
	TotalPoints         int64
	CurrentStreak       int
	Enrollments         int
	CompletedCourses    int
	Level               int

	// activity_completed
	Score      int
	Efficiency float64 // 0 when the activity has no expected duration

	// course_completed
	DaysToComplete int
}

// listensTo reports whether a criterion is evaluated for a trigger.
func listensTo(c domain.Criteria, trigger domain.Trigger) bool {
	switch v := c.(type) {
	case domain.CompletionCount, domain.StreakLength:
		return trigger == domain.TriggerActivityCompleted
	case domain.PointThreshold:
		return trigger != domain.TriggerPointsSpent
	case domain.EnrollmentCount:
		return trigger == domain.TriggerCourseEnrolled
	case domain.Special:
		switch v.Tag {
		case domain.TagFirstActivity, domain.TagPerfectScore, domain.TagSpeedLearner:
			return trigger == domain.TriggerActivityCompleted
		case domain.TagWelcome:
			return trigger == domain.TriggerCourseEnrolled
		case domain.TagFirstCourse, domain.TagFastFinisher:
			return trigger == domain.TriggerCourseCompleted
		case domain.TagLevel5, domain.TagLevel10:
			return trigger == domain.TriggerLevelUp
		}
	}
	return false
}

// satisfied evaluates one criterion against a snapshot.
func satisfied(c domain.Criteria, s Stats) bool {
	switch v := c.(type) {
	case domain.CompletionCount:
		return s.CompletedActivities >= v.N
	case domain.PointThreshold:
		return s.TotalPoints >= v.N
	case domain.StreakLength:
		return s.CurrentStreak >= v.N
	case domain.EnrollmentCount:
		return s.Enrollments >= v.N
	case domain.Special:
		switch v.Tag {
		case domain.TagFirstActivity:
			return s.CompletedActivities >= 1
		case domain.TagPerfectScore:
			return s.Score == 100
		case domain.TagSpeedLearner:
			return s.Efficiency > 0 && s.Efficiency <= SpeedLearnerRatio
		case domain.TagWelcome:
			return s.Enrollments == 1
		case domain.TagFirstCourse:
			return s.CompletedCourses >= 1
		case domain.TagFastFinisher:
			return s.DaysToComplete <= FastFinisherDays
		case domain.TagLevel5:
			return s.Level >= 5
		case domain.TagLevel10:
			return s.Level >= 10
		}
	}
	return false
}

// EvaluateBadges returns the active badges listening to trigger that are
// satisfied by s and not in held. Badges without criteria are skipped.
func EvaluateBadges(badges []domain.Badge, held map[string]bool, s Stats, trigger domain.Trigger) []domain.Badge {
	var out []domain.Badge
	for _, b := range badges {
		if !b.IsActive || b.Criteria == nil || held[b.ID] {
			continue
		}
		if listensTo(b.Criteria, trigger) && satisfied(b.Criteria, s) {
			out = append(out, b)
		}
	}
	return out
}

// ─── Evaluator ──────────────────────────────────────────────────────────────

// BadgeEvaluator awards newly earned badges inside an event transaction.
type BadgeEvaluator struct {
	log *logger.Logger
	now func() time.Time
}

// NewBadgeEvaluator creates an evaluator.
func NewBadgeEvaluator(log *logger.Logger, now func() time.Time) *BadgeEvaluator {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &BadgeEvaluator{log: log, now: now}
}

// Evaluate awards every badge the user newly satisfies for the trigger and
// returns them. Running it again with unchanged state awards nothing.
func (e *BadgeEvaluator) Evaluate(ctx context.Context, tx domain.Tx, userID string,
	trigger domain.Trigger, s Stats) ([]domain.Badge, error) {
	badges, err := tx.ListActiveBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	for _, b := range badges {
		if b.Criteria == nil {
			e.log.Warn("skipping badge with malformed criteria", "badge_id", b.ID)
		}
	}

	held, err := tx.HeldBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("held badges: %w", err)
	}

	var earned []domain.Badge
	for _, b := range EvaluateBadges(badges, held, s, trigger) {
		inserted, err := tx.InsertBadgeAward(ctx, domain.BadgeAward{
			UserID:   userID,
			BadgeID:  b.ID,
			EarnedAt: e.now(),
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			earned = append(earned, b)
		}
	}
	return earned, nil
}

// ─── Default Catalogue ──────────────────────────────────────────────────────

// DefaultBadges returns the built-in badge catalogue.
func DefaultBadges() []domain.Badge {
	return withActive([]domain.Badge{
		{ID: "first-steps", Name: "First Steps", Description: "Complete your first activity",
			Icon: "🎯", Color: "#4CAF50", Criteria: domain.Special{Tag: domain.TagFirstActivity}},
		{ID: "perfectionist", Name: "Perfectionist", Description: "Score 100 on an activity",
			Icon: "💯", Color: "#FFD700", Criteria: domain.Special{Tag: domain.TagPerfectScore}},
		{ID: "speed-learner", Name: "Speed Learner", Description: "Finish an activity well under the expected time",
			Icon: "⚡", Color: "#FF9800", Criteria: domain.Special{Tag: domain.TagSpeedLearner}},
		{ID: "welcome", Name: "Welcome Aboard", Description: "Enroll in your first course",
			Icon: "👋", Color: "#2196F3", Criteria: domain.Special{Tag: domain.TagWelcome}},
		{ID: "graduate", Name: "Graduate", Description: "Complete your first course",
			Icon: "🎓", Color: "#673AB7", Criteria: domain.Special{Tag: domain.TagFirstCourse}},
		{ID: "fast-finisher", Name: "Fast Finisher", Description: "Complete a course within a week of enrolling",
			Icon: "🏁", Color: "#E91E63", Criteria: domain.Special{Tag: domain.TagFastFinisher}},
		{ID: "rising-star", Name: "Rising Star", Description: "Reach level 5",
			Icon: "⭐", Color: "#FFC107", Criteria: domain.Special{Tag: domain.TagLevel5}},
		{ID: "legend", Name: "Legend", Description: "Reach level 10",
			Icon: "👑", Color: "#9C27B0", Criteria: domain.Special{Tag: domain.TagLevel10}},
		{ID: "dedicated", Name: "Dedicated Learner", Description: "Complete 10 activities",
			Icon: "📚", Color: "#3F51B5", Criteria: domain.CompletionCount{N: 10}},
		{ID: "century", Name: "Century", Description: "Earn 100 points",
			Icon: "💰", Color: "#8BC34A", Criteria: domain.PointThreshold{N: 100}},
		{ID: "high-achiever", Name: "High Achiever", Description: "Earn 1000 points",
			Icon: "🏆", Color: "#FF5722", Criteria: domain.PointThreshold{N: 1000}},
		{ID: "on-fire", Name: "On Fire", Description: "Keep a 3-day learning streak",
			Icon: "🔥", Color: "#F44336", Criteria: domain.StreakLength{N: 3}},
		{ID: "week-warrior", Name: "Week Warrior", Description: "Keep a 7-day learning streak",
			Icon: "📅", Color: "#795548", Criteria: domain.StreakLength{N: 7}},
		{ID: "explorer", Name: "Explorer", Description: "Enroll in 3 courses",
			Icon: "🧭", Color: "#009688", Criteria: domain.EnrollmentCount{N: 3}},
	})
}

// withActive marks every badge active.
func withActive(badges []domain.Badge) []domain.Badge {
	for i := range badges {
		badges[i].IsActive = true
	}
	return badges
}
