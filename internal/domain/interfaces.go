package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// The data-access layer handed to the engine. Implementations are already
// scoped to the right tenant; the engine never filters by tenant itself.
// Lookups return (nil, nil) when the record does not exist.

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetCourse(ctx context.Context, id string) (*Course, error)
	GetActivity(ctx context.Context, id string) (*Activity, error)
	GetEnrollment(ctx context.Context, userID, courseID string) (*Enrollment, error)
	GetCompletion(ctx context.Context, userID, activityID string) (*Completion, error)
	ListUserEnrollments(ctx context.Context, userID string) ([]Enrollment, error)

	// ListCourseActivities returns every activity of a course ordered by Order.
	ListCourseActivities(ctx context.Context, courseID string) ([]Activity, error)
	// ListCourseCompletions returns the user's completion records in a course.
	ListCourseCompletions(ctx context.Context, userID, courseID string) ([]Completion, error)
	// ListCompletionDays returns the completion timestamps of all completed
	// activities of a user, oldest first.
	ListCompletionDays(ctx context.Context, userID string) ([]time.Time, error)

	ListActiveBadges(ctx context.Context) ([]Badge, error)
	ListUserBadges(ctx context.Context, userID string) ([]Badge, error)
	ListLedger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error)
	// SumLedger returns the totals of earned and spent entries for a user.
	SumLedger(ctx context.Context, userID string) (earned, spent int64, err error)

	// Leaderboard aggregations, highest value first, ties by user ID.
	StandingsByPoints(ctx context.Context, limit int) ([]Standing, error)
	StandingsByEarnedSince(ctx context.Context, since time.Time, limit int) ([]Standing, error)
	StandingsByLevel(ctx context.Context, limit int) ([]Standing, error)
	StandingsByBadges(ctx context.Context, limit int) ([]Standing, error)

	// MetricValue returns one user's value for a leaderboard metric and
	// CountAbove the number of users whose value is strictly greater.
	MetricValue(ctx context.Context, userID string, metric Metric, since time.Time) (int64, error)
	CountAbove(ctx context.Context, metric Metric, since time.Time, value int64) (int, error)
}

// Tx is a unit of work. Every event runs inside exactly one.
type Tx interface {
	Reader

	// LockUser loads the user and holds a write lock on the row until the
	// transaction ends.
	LockUser(ctx context.Context, id string) (*User, error)
	UpdateUserStats(ctx context.Context, u User) error
	AddUserPoints(ctx context.Context, userID string, delta int64) error

	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error
	SaveCompletion(ctx context.Context, c Completion) error
	// LastCompletionExcluding returns the latest completion time of any
	// activity other than activityID, zero if none.
	LastCompletionExcluding(ctx context.Context, userID, activityID string) (time.Time, error)
	CountCompletedActivities(ctx context.Context, userID string) (int, error)

	InsertEnrollment(ctx context.Context, e Enrollment) error
	UpdateEnrollment(ctx context.Context, e Enrollment) error
	CountEnrollments(ctx context.Context, userID string) (int, error)
	CountCompletedCourses(ctx context.Context, userID string) (int, error)

	HeldBadgeIDs(ctx context.Context, userID string) (map[string]bool, error)
	// InsertBadgeAward returns false when the award already existed.
	InsertBadgeAward(ctx context.Context, a BadgeAward) (bool, error)
}

// Store is the full collaborator interface.
type Store interface {
	Reader
	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// LeaderboardCache is an optional read-through cache for leaderboards.
type LeaderboardCache interface {
	Get(ctx context.Context, key BoardKey) ([]RankedEntry, bool, error)
	Set(ctx context.Context, key BoardKey, entries []RankedEntry) error
	Invalidate(ctx context.Context) error
}
