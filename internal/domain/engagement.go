// Package domain holds the pure types of the LearnQuest gamification engine.
// Learners earn points, levels, streaks and badges from learning events;
// progression through a course is gated by earlier results.
package domain

import "time"

// PassThreshold is the minimum score for an attempt to count as completed.
// The progression gate applies the same bar to the share of passed
// predecessors, so both checks move together.
const PassThreshold = 70

// ─── Learners ───────────────────────────────────────────────────────────────

// User is a learner. Points, level and streak fields are caches derived from
// the ledger and the completion history; only the engine writes them.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TotalPoints    int64     `json:"total_points"`
	Level          int       `json:"level"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ─── Catalogue ──────────────────────────────────────────────────────────────

// Course groups an ordered sequence of activities.
type Course struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	PointsPerCompletion int64  `json:"points_per_completion"`
	IsActive            bool   `json:"is_active"`
}

// Activity is one step of a course. Order is unique within the course.
type Activity struct {
	ID              string `json:"id"`
	CourseID        string `json:"course_id"`
	Title           string `json:"title"`
	PointsValue     int64  `json:"points_value"`
	DurationMinutes int    `json:"duration_minutes"`
	Order           int    `json:"order"`
	IsRequired      bool   `json:"is_required"`
	IsActive        bool   `json:"is_active"`
}

// ─── Progress ───────────────────────────────────────────────────────────────

// CompletionState is the explicit state of a (user, activity) record.
type CompletionState string

const (
	CompletionInProgress CompletionState = "in_progress"
	CompletionCompleted  CompletionState = "completed"
)

// Attempt is one entry of a completion's attempt history.
type Attempt struct {
	Score            int       `json:"score"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	Passed           bool      `json:"passed"`
	At               time.Time `json:"at"`
}

// Completion tracks a user's attempts at one activity.
// CompletedAt is meaningful only when State is CompletionCompleted.
type Completion struct {
	UserID         string          `json:"user_id"`
	ActivityID     string          `json:"activity_id"`
	CourseID       string          `json:"course_id"`
	State          CompletionState `json:"state"`
	Score          int             `json:"score"`
	Attempts       int             `json:"attempts"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
	FirstAttemptAt time.Time       `json:"first_attempt_at"`
	LastAttemptAt  time.Time       `json:"last_attempt_at"`
	History        []Attempt       `json:"history,omitempty"`
}

// IsCompleted reports whether the activity has been completed.
func (c Completion) IsCompleted() bool {
	return c.State == CompletionCompleted
}

// Passed reports whether the completion counts as passed for gating.
func (c Completion) Passed() bool {
	return c.IsCompleted() && c.Score >= PassThreshold
}

// RecordAttempt applies one attempt to the record. A passing attempt moves
// the record to the completed state with that score; a failing attempt on an
// already completed record keeps the completing score.
func (c *Completion) RecordAttempt(score, timeSpentSeconds int, at time.Time) {
	passed := score >= PassThreshold
	if c.Attempts == 0 {
		c.FirstAttemptAt = at
		c.State = CompletionInProgress
	}
	c.Attempts++
	c.LastAttemptAt = at
	c.History = append(c.History, Attempt{
		Score:            score,
		TimeSpentSeconds: timeSpentSeconds,
		Passed:           passed,
		At:               at,
	})

	switch {
	case passed && !c.IsCompleted():
		c.State = CompletionCompleted
		c.Score = score
		c.CompletedAt = at
	case passed && score > c.Score:
		c.Score = score
	case !c.IsCompleted():
		c.Score = score
	}
}

// Enrollment links a user to a course.
type Enrollment struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	ProgressPct float64   `json:"progress_pct"`
}

// IsCompleted reports whether the course was completed.
func (e Enrollment) IsCompleted() bool {
	return !e.CompletedAt.IsZero()
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerEntryType distinguishes grants from deductions.
type LedgerEntryType string

const (
	LedgerEarned LedgerEntryType = "earned"
	LedgerSpent  LedgerEntryType = "spent"
)

// SourceType names the entity a ledger entry is attributed to.
type SourceType string

const (
	SourceActivity   SourceType = "activity"
	SourceEnrollment SourceType = "enrollment"
	SourceCourse     SourceType = "course"
	SourceReward     SourceType = "reward"
)

// LedgerEntry is one immutable point grant or deduction.
type LedgerEntry struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Amount     int64           `json:"amount"`
	Type       LedgerEntryType `json:"type"`
	SourceType SourceType      `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Signed returns the amount with the sign implied by the entry type.
func (e LedgerEntry) Signed() int64 {
	if e.Type == LedgerSpent {
		return -e.Amount
	}
	return e.Amount
}

// ─── Levels & Streaks ───────────────────────────────────────────────────────

// LevelInfo is the level derived from a point total.
type LevelInfo struct {
	Level        int     `json:"level"`
	Points       int64   `json:"points"`
	PointsToNext int64   `json:"points_to_next"`
	ProgressPct  float64 `json:"progress_pct"`
	MaxLevel     bool    `json:"max_level"`
}

// LevelChange records a level transition caused by an event.
type LevelChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// StreakInfo reports the streak after an event.
type StreakInfo struct {
	Current   int  `json:"current"`
	Longest   int  `json:"longest"`
	Extended  bool `json:"extended"`
	Reset     bool `json:"reset"`
	Milestone bool `json:"milestone"`
}

// ─── Events & Results ───────────────────────────────────────────────────────

// Trigger identifies which category of event is being evaluated.
type Trigger string

const (
	TriggerActivityCompleted Trigger = "activity_completed"
	TriggerCourseEnrolled    Trigger = "course_enrolled"
	TriggerCourseCompleted   Trigger = "course_completed"
	TriggerLevelUp           Trigger = "level_up"

	// TriggerPointsSpent labels redemptions; no badge listens to it.
	TriggerPointsSpent Trigger = "points_spent"
)

// NotificationType categorizes notification descriptors.
type NotificationType string

const (
	NotifyPoints  NotificationType = "points"
	NotifyBadge   NotificationType = "badge"
	NotifyLevelUp NotificationType = "level_up"
	NotifyStreak  NotificationType = "streak"
	NotifyWelcome NotificationType = "welcome"
	NotifyRetry   NotificationType = "retry"
	NotifyCourse  NotificationType = "course_completed"
)

// Notification is a user-facing message produced by the engine.
// Delivery is the caller's concern.
type Notification struct {
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Icon    string           `json:"icon"`
	Color   string           `json:"color"`
}

// EventResult is returned for every processed event.
type EventResult struct {
	UserID        string         `json:"user_id"`
	Trigger       Trigger        `json:"trigger"`
	PointsAwarded int64          `json:"points_awarded"`
	TotalPoints   int64          `json:"total_points"`
	BadgesEarned  []Badge        `json:"badges_earned"`
	LevelChange   *LevelChange   `json:"level_change,omitempty"`
	Streak        *StreakInfo    `json:"streak,omitempty"`
	Notifications []Notification `json:"notifications"`

	// Activity completion
	Score            int     `json:"score,omitempty"`
	Attempts         int     `json:"attempts,omitempty"`
	NeedsRetry       bool    `json:"needs_retry,omitempty"`
	CanRetry         bool    `json:"can_retry,omitempty"`
	AlreadyCompleted bool    `json:"already_completed,omitempty"`
	ScoreBonus       float64 `json:"score_bonus,omitempty"`
	TimeBonus        float64 `json:"time_bonus,omitempty"`
	CourseProgress   float64 `json:"course_progress_pct,omitempty"`
	Message          string  `json:"message,omitempty"`

	// Enrollment
	WelcomeBonus bool `json:"welcome_bonus,omitempty"`

	// Course completion
	CompletionBonus int64 `json:"completion_bonus,omitempty"`
	DaysToComplete  int   `json:"days_to_complete,omitempty"`
}

// ─── Access ─────────────────────────────────────────────────────────────────

// ActivityProgress summarizes one activity for a user.
type ActivityProgress struct {
	ActivityID string `json:"activity_id"`
	Title      string `json:"title"`
	Order      int    `json:"order"`
	Score      int    `json:"score"`
	Attempts   int    `json:"attempts"`
	Passed     bool   `json:"passed"`
}

// AccessDecision is the progression gate's answer for one activity.
type AccessDecision struct {
	Allowed            bool               `json:"allowed"`
	Reason             string             `json:"reason"`
	CurrentProgressPct float64            `json:"current_progress_pct"`
	PreviousActivities []ActivityProgress `json:"previous_activities"`
	NextActivity       *ActivityProgress  `json:"next_activity,omitempty"`
}

// ─── Leaderboards ───────────────────────────────────────────────────────────

// Metric selects what a leaderboard ranks by.
type Metric string

const (
	MetricPoints Metric = "points"
	MetricLevel  Metric = "level"
	MetricBadges Metric = "badges"
)

// Period selects the time window of a points leaderboard.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricPoints, MetricLevel, MetricBadges:
		return m, nil
	case "":
		return MetricPoints, nil
	}
	return "", ErrInvalidMetric
}

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime:
		return p, nil
	case "":
		return PeriodAllTime, nil
	}
	return "", ErrInvalidPeriod
}

// Standing is one aggregated leaderboard row as read from storage.
type Standing struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Value  int64  `json:"value"`
	Level  int    `json:"level"`
}

// BoardKey identifies one computed leaderboard. Since is the window start;
// it is zero for all_time and for metrics that are never windowed.
type BoardKey struct {
	Metric Metric
	Period Period
	Since  time.Time
	Limit  int
}

// RankedEntry is a leaderboard row with its rank.
type RankedEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Value  int64  `json:"value"`
	Level  int    `json:"level"`
}
