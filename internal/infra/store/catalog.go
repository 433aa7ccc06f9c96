package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Course Repository ──────────────────────────────────────────────────────

// GetCourse returns a course by ID, or nil if not found.
func (c *conn) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	var co domain.Course
	var active int
	err := c.queryRow(ctx,
		`SELECT id, title, points_per_completion, is_active FROM courses WHERE id = ?`, id,
	).Scan(&co.ID, &co.Title, &co.PointsPerCompletion, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	co.IsActive = active != 0
	return &co, nil
}

// UpsertCourse inserts or replaces a course definition.
func (c *conn) UpsertCourse(ctx context.Context, co domain.Course) error {
	_, err := c.exec(ctx,
		`INSERT INTO courses (id, title, points_per_completion, is_active) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title,
		 points_per_completion = excluded.points_per_completion, is_active = excluded.is_active`,
		co.ID, co.Title, co.PointsPerCompletion, boolInt(co.IsActive),
	)
	if err != nil {
		return fmt.Errorf("upsert course %s: %w", co.ID, err)
	}
	return nil
}

// ─── Activity Repository ────────────────────────────────────────────────────

const activityColumns = `id, course_id, title, points_value, duration_minutes, sort_order, is_required, is_active`

func scanActivity(row interface{ Scan(...any) error }) (*domain.Activity, error) {
	var a domain.Activity
	var required, active int
	err := row.Scan(&a.ID, &a.CourseID, &a.Title, &a.PointsValue,
		&a.DurationMinutes, &a.Order, &required, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsRequired = required != 0
	a.IsActive = active != 0
	return &a, nil
}

// GetActivity returns an activity by ID, or nil if not found.
func (c *conn) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	return scanActivity(c.queryRow(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id))
}

// ListCourseActivities returns all activities of a course, active or not,
// ordered by position.
func (c *conn) ListCourseActivities(ctx context.Context, courseID string) ([]domain.Activity, error) {
	rows, err := c.query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE course_id = ? ORDER BY sort_order`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpsertActivity inserts or replaces an activity definition.
func (c *conn) UpsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := c.exec(ctx,
		`INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET course_id = excluded.course_id, title = excluded.title,
		 points_value = excluded.points_value, duration_minutes = excluded.duration_minutes,
		 sort_order = excluded.sort_order, is_required = excluded.is_required,
		 is_active = excluded.is_active`,
		a.ID, a.CourseID, a.Title, a.PointsValue, a.DurationMinutes, a.Order,
		boolInt(a.IsRequired), boolInt(a.IsActive),
	)
	if err != nil {
		return fmt.Errorf("upsert activity %s: %w", a.ID, err)
	}
	return nil
}
