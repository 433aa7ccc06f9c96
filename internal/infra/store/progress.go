package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Enrollment Repository ──────────────────────────────────────────────────

const enrollmentColumns = `user_id, course_id, enrolled_at, completed_at, progress_pct`

func scanEnrollment(row interface{ Scan(...any) error }) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var enrolled int64
	var completed sql.NullInt64
	err := row.Scan(&e.UserID, &e.CourseID, &enrolled, &completed, &e.ProgressPct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.EnrolledAt = fromUnix(enrolled)
	e.CompletedAt = fromNullUnix(completed)
	return &e, nil
}

// GetEnrollment returns the enrollment of a user in a course, or nil.
func (c *conn) GetEnrollment(ctx context.Context, userID, courseID string) (*domain.Enrollment, error) {
	return scanEnrollment(c.queryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? AND course_id = ?`,
		userID, courseID))
}

// InsertEnrollment creates an enrollment. A duplicate pair fails with
// domain.ErrAlreadyEnrolled.
func (c *conn) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	res, err := c.exec(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		e.UserID, e.CourseID, unix(e.EnrolledAt), nullUnix(e.CompletedAt), e.ProgressPct,
	)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return requireRow(res, domain.ErrAlreadyEnrolled)
}

// UpdateEnrollment writes progress and completion of an enrollment.
func (c *conn) UpdateEnrollment(ctx context.Context, e domain.Enrollment) error {
	res, err := c.exec(ctx,
		`UPDATE enrollments SET completed_at = ?, progress_pct = ?
		 WHERE user_id = ? AND course_id = ?`,
		nullUnix(e.CompletedAt), e.ProgressPct, e.UserID, e.CourseID,
	)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return requireRow(res, domain.ErrNotEnrolled)
}

// ListUserEnrollments returns a user's enrollments, oldest first.
func (c *conn) ListUserEnrollments(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	rows, err := c.query(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = ? ORDER BY enrolled_at, course_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CountEnrollments returns how many courses a user is enrolled in.
func (c *conn) CountEnrollments(ctx context.Context, userID string) (int, error) {
	return c.count(ctx, `SELECT COUNT(*) FROM enrollments WHERE user_id = ?`, userID)
}

// CountCompletedCourses returns how many courses a user has completed.
func (c *conn) CountCompletedCourses(ctx context.Context, userID string) (int, error) {
	return c.count(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND completed_at IS NOT NULL`, userID)
}

func (c *conn) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := c.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ─── Completion Repository ──────────────────────────────────────────────────

const completionColumns = `user_id, activity_id, course_id, state, score, attempts,
	completed_at, first_attempt_at, last_attempt_at, metadata`

func scanCompletion(row interface{ Scan(...any) error }) (*domain.Completion, error) {
	var cp domain.Completion
	var completed sql.NullInt64
	var first, last int64
	var meta string
	err := row.Scan(&cp.UserID, &cp.ActivityID, &cp.CourseID, &cp.State, &cp.Score,
		&cp.Attempts, &completed, &first, &last, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp.CompletedAt = fromNullUnix(completed)
	cp.FirstAttemptAt = fromUnix(first)
	cp.LastAttemptAt = fromUnix(last)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &cp.History); err != nil {
			return nil, fmt.Errorf("decode attempt history: %w", err)
		}
	}
	return &cp, nil
}

// GetCompletion returns a user's record for an activity, or nil.
func (c *conn) GetCompletion(ctx context.Context, userID, activityID string) (*domain.Completion, error) {
	return scanCompletion(c.queryRow(ctx,
		`SELECT `+completionColumns+` FROM activity_completions WHERE user_id = ? AND activity_id = ?`,
		userID, activityID))
}

// SaveCompletion inserts or replaces a completion record.
func (c *conn) SaveCompletion(ctx context.Context, cp domain.Completion) error {
	history := cp.History
	if history == nil {
		history = []domain.Attempt{}
	}
	meta, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode attempt history: %w", err)
	}

	_, err = c.exec(ctx,
		`INSERT INTO activity_completions (`+completionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, activity_id) DO UPDATE SET state = excluded.state,
		 score = excluded.score, attempts = excluded.attempts,
		 completed_at = excluded.completed_at, last_attempt_at = excluded.last_attempt_at,
		 metadata = excluded.metadata`,
		cp.UserID, cp.ActivityID, cp.CourseID, string(cp.State), cp.Score, cp.Attempts,
		nullUnix(cp.CompletedAt), unix(cp.FirstAttemptAt), unix(cp.LastAttemptAt), string(meta),
	)
	if err != nil {
		return fmt.Errorf("save completion: %w", err)
	}
	return nil
}

// ListCourseCompletions returns a user's completion records in a course.
func (c *conn) ListCourseCompletions(ctx context.Context, userID, courseID string) ([]domain.Completion, error) {
	rows, err := c.query(ctx,
		`SELECT `+completionColumns+` FROM activity_completions
		 WHERE user_id = ? AND course_id = ? ORDER BY activity_id`,
		userID, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Completion
	for rows.Next() {
		cp, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

// ListCompletionDays returns the completion times of a user's completed
// activities, oldest first.
func (c *conn) ListCompletionDays(ctx context.Context, userID string) ([]time.Time, error) {
	rows, err := c.query(ctx,
		`SELECT completed_at FROM activity_completions
		 WHERE user_id = ? AND state = ? AND completed_at IS NOT NULL
		 ORDER BY completed_at`,
		userID, string(domain.CompletionCompleted),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, fromUnix(ts))
	}
	return out, rows.Err()
}

// LastCompletionExcluding returns the latest completion time among the
// user's other activities, or the zero time.
func (c *conn) LastCompletionExcluding(ctx context.Context, userID, activityID string) (time.Time, error) {
	var ts sql.NullInt64
	err := c.queryRow(ctx,
		`SELECT MAX(completed_at) FROM activity_completions
		 WHERE user_id = ? AND activity_id <> ? AND state = ?`,
		userID, activityID, string(domain.CompletionCompleted),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	return fromNullUnix(ts), nil
}

// CountCompletedActivities returns how many activities a user completed.
func (c *conn) CountCompletedActivities(ctx context.Context, userID string) (int, error) {
	return c.count(ctx,
		`SELECT COUNT(*) FROM activity_completions WHERE user_id = ? AND state = ?`,
		userID, string(domain.CompletionCompleted))
}
