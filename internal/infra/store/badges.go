package store

import (
	"context"
	"fmt"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Badge Repository ───────────────────────────────────────────────────────

const badgeColumns = `id, name, description, icon, color, criteria_kind, criteria_threshold, criteria_tag, is_active`

// scanBadge leaves Criteria nil when the stored rule is malformed so that
// one bad row does not hide the rest of the catalogue.
func scanBadge(row interface{ Scan(...any) error }) (domain.Badge, error) {
	var b domain.Badge
	var kind, tag string
	var threshold int64
	var active int
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Color,
		&kind, &threshold, &tag, &active); err != nil {
		return b, err
	}
	b.IsActive = active != 0
	if crit, err := domain.ParseCriteria(kind, threshold, tag); err == nil {
		b.Criteria = crit
	}
	return b, nil
}

func (c *conn) listBadges(ctx context.Context, query string, args ...any) ([]domain.Badge, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListActiveBadges returns every active badge definition ordered by ID.
func (c *conn) ListActiveBadges(ctx context.Context) ([]domain.Badge, error) {
	return c.listBadges(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE is_active = 1 ORDER BY id`)
}

// ListUserBadges returns the badges a user holds in award order.
func (c *conn) ListUserBadges(ctx context.Context, userID string) ([]domain.Badge, error) {
	return c.listBadges(ctx,
		`SELECT b.id, b.name, b.description, b.icon, b.color, b.criteria_kind,
		        b.criteria_threshold, b.criteria_tag, b.is_active
		 FROM badge_awards a JOIN badges b ON b.id = a.badge_id
		 WHERE a.user_id = ? ORDER BY a.earned_at, b.id`, userID)
}

// UpsertBadge inserts or replaces a badge definition.
func (c *conn) UpsertBadge(ctx context.Context, b domain.Badge) error {
	kind, threshold, tag := domain.CriteriaColumns(b.Criteria)
	if kind == "" {
		return fmt.Errorf("badge %s: %w", b.ID, domain.ErrInvalidCriteria)
	}
	_, err := c.exec(ctx,
		`INSERT INTO badges (`+badgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description,
		 icon = excluded.icon, color = excluded.color, criteria_kind = excluded.criteria_kind,
		 criteria_threshold = excluded.criteria_threshold, criteria_tag = excluded.criteria_tag,
		 is_active = excluded.is_active`,
		b.ID, b.Name, b.Description, b.Icon, b.Color, kind, threshold, tag, boolInt(b.IsActive),
	)
	if err != nil {
		return fmt.Errorf("upsert badge %s: %w", b.ID, err)
	}
	return nil
}

// ─── Badge Awards ───────────────────────────────────────────────────────────

// HeldBadgeIDs returns the set of badge IDs a user already holds.
func (c *conn) HeldBadgeIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := c.query(ctx, `SELECT badge_id FROM badge_awards WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		held[id] = true
	}
	return held, rows.Err()
}

// InsertBadgeAward records an award. It reports false when the user
// already held the badge.
func (c *conn) InsertBadgeAward(ctx context.Context, a domain.BadgeAward) (bool, error) {
	res, err := c.exec(ctx,
		`INSERT INTO badge_awards (user_id, badge_id, earned_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		a.UserID, a.BadgeID, unix(a.EarnedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert badge award: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
