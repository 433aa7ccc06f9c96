package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Column Helpers ─────────────────────────────────────────────────────────

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(ts int64) time.Time { return time.Unix(ts, 0).UTC() }

// nullUnix stores the zero time as NULL.
func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return fromUnix(v.Int64)
}

// boolInt keeps flag columns portable; pgx will not encode bool into INTEGER.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ─── User Repository ────────────────────────────────────────────────────────

const userColumns = `id, name, total_points, level, current_streak, longest_streak, last_activity_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var last sql.NullInt64
	var created int64
	err := row.Scan(&u.ID, &u.Name, &u.TotalPoints, &u.Level,
		&u.CurrentStreak, &u.LongestStreak, &last, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.LastActivityAt = fromNullUnix(last)
	u.CreatedAt = fromUnix(created)
	return &u, nil
}

// GetUser returns a user by ID, or nil if not found.
func (c *conn) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(c.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// LockUser loads a user and holds its row for the rest of the transaction.
// SQLite has no row locks; a no-op write takes the database write lock.
func (c *conn) LockUser(ctx context.Context, id string) (*domain.User, error) {
	if c.d.lockClause == "" {
		if _, err := c.exec(ctx, `UPDATE users SET name = name WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("lock user %s: %w", id, err)
		}
	}
	return scanUser(c.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`+c.d.lockClause, id))
}

// UpsertUser creates a user or updates its name. Progression fields of an
// existing user are left untouched.
func (c *conn) UpsertUser(ctx context.Context, u domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Level < 1 {
		u.Level = 1
	}
	_, err := c.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		u.ID, u.Name, u.TotalPoints, u.Level, u.CurrentStreak, u.LongestStreak,
		nullUnix(u.LastActivityAt), unix(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateUserStats writes the derived progression fields of a user.
func (c *conn) UpdateUserStats(ctx context.Context, u domain.User) error {
	res, err := c.exec(ctx,
		`UPDATE users SET total_points = ?, level = ?, current_streak = ?,
		 longest_streak = ?, last_activity_at = ? WHERE id = ?`,
		u.TotalPoints, u.Level, u.CurrentStreak, u.LongestStreak,
		nullUnix(u.LastActivityAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return requireRow(res, domain.ErrUserNotFound)
}

// AddUserPoints adjusts the cached point total by delta.
func (c *conn) AddUserPoints(ctx context.Context, userID string, delta int64) error {
	res, err := c.exec(ctx,
		`UPDATE users SET total_points = total_points + ? WHERE id = ?`,
		delta, userID,
	)
	if err != nil {
		return fmt.Errorf("add points to %s: %w", userID, err)
	}
	return requireRow(res, domain.ErrUserNotFound)
}

// ListUsers returns all users ordered by ID.
func (c *conn) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := c.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
