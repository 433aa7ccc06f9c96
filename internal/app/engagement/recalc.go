package engagement

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutu-network/learnquest/internal/app/ledger"
	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/metrics"
)

// RecalcReport compares a user's cached fields before and after repair.
type RecalcReport struct {
	UserID  string      `json:"user_id"`
	Before  domain.User `json:"before"`
	After   domain.User `json:"after"`
	Changed bool        `json:"changed"`
}

// Recalculate re-derives the cached total from the ledger, the level from
// lifetime earned points and both streaks from the completion history.
func (e *Engine) Recalculate(ctx context.Context, userID string) (*RecalcReport, error) {
	report, err := runTx(ctx, e, "recalculate", userID,
		func(ctx context.Context, tx domain.Tx) (*RecalcReport, error) {
			user, err := e.lockUser(ctx, tx, userID)
			if err != nil {
				return nil, err
			}
			before := *user

			total, err := ledger.TotalFor(ctx, tx, userID)
			if err != nil {
				return nil, fmt.Errorf("sum ledger: %w", err)
			}
			earned, err := ledger.EarnedFor(ctx, tx, userID)
			if err != nil {
				return nil, fmt.Errorf("sum earned: %w", err)
			}
			days, err := tx.ListCompletionDays(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("completion history: %w", err)
			}

			user.TotalPoints = total
			user.Level = LevelForPoints(earned)
			user.CurrentStreak, user.LongestStreak = StreaksFromHistory(days, e.cal.loc)
			if len(days) > 0 {
				user.LastActivityAt = days[len(days)-1]
			} else {
				user.LastActivityAt = time.Time{}
			}
			if err := tx.UpdateUserStats(ctx, *user); err != nil {
				return nil, err
			}

			return &RecalcReport{
				UserID:  userID,
				Before:  before,
				After:   *user,
				Changed: statsDiffer(before, *user),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	metrics.EventsProcessed.WithLabelValues("recalculate", "ok").Inc()

	if report.Changed {
		e.log.Warn("user cache repaired",
			"user_id", userID,
			"points_before", report.Before.TotalPoints, "points_after", report.After.TotalPoints,
			"level_before", report.Before.Level, "level_after", report.After.Level,
		)
	}
	return report, nil
}

// RecalculateAll repairs every user in ID order. Each user runs in its own
// transaction; the first failure stops the sweep.
func (e *Engine) RecalculateAll(ctx context.Context) ([]*RecalcReport, error) {
	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	reports := make([]*RecalcReport, 0, len(users))
	for _, u := range users {
		report, err := e.Recalculate(ctx, u.ID)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func statsDiffer(a, b domain.User) bool {
	return a.TotalPoints != b.TotalPoints ||
		a.Level != b.Level ||
		a.CurrentStreak != b.CurrentStreak ||
		a.LongestStreak != b.LongestStreak ||
		!a.LastActivityAt.Equal(b.LastActivityAt)
}

// ─── User Summary ───────────────────────────────────────────────────────────

// Summary is a read-only profile of a learner's progression.
type Summary struct {
	User          domain.User          `json:"user"`
	Level         domain.LevelInfo     `json:"level"`
	Rank          int                  `json:"rank"`
	Badges        []domain.Badge       `json:"badges"`
	Enrollments   []domain.Enrollment  `json:"enrollments"`
	RecentHistory []domain.LedgerEntry `json:"recent_history"`
}

// UserSummary assembles the profile of one user.
func (e *Engine) UserSummary(ctx context.Context, userID string) (*Summary, error) {
	ctx, span := e.tracer.Start(ctx, "engagement.user_summary",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	s, err := e.summary(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s, nil
}

func (e *Engine) summary(ctx context.Context, userID string) (*Summary, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	badges, err := e.store.ListUserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	enrollments, err := e.store.ListUserEnrollments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	earned, err := ledger.EarnedFor(ctx, e.store, userID)
	if err != nil {
		return nil, fmt.Errorf("sum earned: %w", err)
	}
	history, err := ledger.History(ctx, e.store, userID, 10)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	rank, _, err := e.board.RankOf(ctx, userID, domain.MetricPoints, domain.PeriodAllTime)
	if err != nil {
		return nil, err
	}

	if badges == nil {
		badges = []domain.Badge{}
	}
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}
	if history == nil {
		history = []domain.LedgerEntry{}
	}
	return &Summary{
		User:          *user,
		Level:         LevelFor(earned),
		Rank:          rank,
		Badges:        badges,
		Enrollments:   enrollments,
		RecentHistory: history,
	}, nil
}
