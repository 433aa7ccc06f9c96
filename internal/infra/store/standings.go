package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Leaderboard Aggregations ───────────────────────────────────────────────
// All standings sort by value descending and user ID ascending so that
// tied users come back in a stable order.

// StandingsByPoints ranks users by their cached all-time total.
func (c *conn) StandingsByPoints(ctx context.Context, limit int) ([]domain.Standing, error) {
	return c.standings(ctx,
		`SELECT id, name, total_points, level FROM users
		 ORDER BY total_points DESC, id ASC LIMIT ?`, limit)
}

// StandingsByEarnedSince ranks users by points earned at or after since.
// Users without entries in the window are omitted.
func (c *conn) StandingsByEarnedSince(ctx context.Context, since time.Time, limit int) ([]domain.Standing, error) {
	return c.standings(ctx,
		`SELECT u.id, u.name, CAST(SUM(l.amount) AS BIGINT) AS earned, u.level
		 FROM point_ledger l JOIN users u ON u.id = l.user_id
		 WHERE l.type = ? AND l.created_at >= ?
		 GROUP BY u.id, u.name, u.level
		 ORDER BY earned DESC, u.id ASC LIMIT ?`,
		string(domain.LedgerEarned), unix(since), limit)
}

// StandingsByLevel ranks users by level.
func (c *conn) StandingsByLevel(ctx context.Context, limit int) ([]domain.Standing, error) {
	return c.standings(ctx,
		`SELECT id, name, level, level FROM users
		 ORDER BY level DESC, id ASC LIMIT ?`, limit)
}

// StandingsByBadges ranks users by the number of badges held.
func (c *conn) StandingsByBadges(ctx context.Context, limit int) ([]domain.Standing, error) {
	return c.standings(ctx,
		`SELECT u.id, u.name, COUNT(a.badge_id) AS held, u.level
		 FROM users u LEFT JOIN badge_awards a ON a.user_id = u.id
		 GROUP BY u.id, u.name, u.level
		 ORDER BY held DESC, u.id ASC LIMIT ?`, limit)
}

func (c *conn) standings(ctx context.Context, query string, args ...any) ([]domain.Standing, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Standing
	for rows.Next() {
		var s domain.Standing
		if err := rows.Scan(&s.UserID, &s.Name, &s.Value, &s.Level); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MetricValue returns a user's value for a metric. A non-zero since limits
// the points metric to entries earned in the window.
func (c *conn) MetricValue(ctx context.Context, userID string, metric domain.Metric, since time.Time) (int64, error) {
	var query string
	args := []any{userID}
	switch {
	case metric == domain.MetricPoints && !since.IsZero():
		query = `SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM point_ledger
		         WHERE user_id = ? AND type = ? AND created_at >= ?`
		args = append(args, string(domain.LedgerEarned), unix(since))
	case metric == domain.MetricPoints:
		query = `SELECT total_points FROM users WHERE id = ?`
	case metric == domain.MetricLevel:
		query = `SELECT level FROM users WHERE id = ?`
	case metric == domain.MetricBadges:
		query = `SELECT COUNT(*) FROM badge_awards WHERE user_id = ?`
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidMetric, metric)
	}

	var v int64
	if err := c.queryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// CountAbove returns the number of users whose metric value is strictly
// greater than value.
func (c *conn) CountAbove(ctx context.Context, metric domain.Metric, since time.Time, value int64) (int, error) {
	switch {
	case metric == domain.MetricPoints && !since.IsZero():
		return c.count(ctx,
			`SELECT COUNT(*) FROM (
			   SELECT user_id, SUM(amount) AS earned FROM point_ledger
			   WHERE type = ? AND created_at >= ? GROUP BY user_id
			 ) t WHERE t.earned > ?`,
			string(domain.LedgerEarned), unix(since), value)
	case metric == domain.MetricPoints:
		return c.count(ctx, `SELECT COUNT(*) FROM users WHERE total_points > ?`, value)
	case metric == domain.MetricLevel:
		return c.count(ctx, `SELECT COUNT(*) FROM users WHERE level > ?`, value)
	case metric == domain.MetricBadges:
		return c.count(ctx,
			`SELECT COUNT(*) FROM (
			   SELECT user_id, COUNT(*) AS held FROM badge_awards GROUP BY user_id
			 ) t WHERE t.held > ?`, value)
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrInvalidMetric, metric)
}
