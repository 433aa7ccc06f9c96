package store

import (
	"context"
	"fmt"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Point Ledger ───────────────────────────────────────────────────────────

// InsertLedgerEntry appends a ledger entry. Entries are never updated.
func (c *conn) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := c.exec(ctx,
		`INSERT INTO point_ledger (id, user_id, amount, type, source_type, source_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount, string(e.Type), string(e.SourceType),
		e.SourceID, e.Reason, unix(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedger returns a user's most recent ledger entries, newest first.
func (c *conn) ListLedger(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.query(ctx,
		`SELECT id, user_id, amount, type, source_type, source_id, reason, created_at
		 FROM point_ledger WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Type, &e.SourceType,
			&e.SourceID, &e.Reason, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnix(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumLedger returns the earned and spent totals of a user.
func (c *conn) SumLedger(ctx context.Context, userID string) (earned, spent int64, err error) {
	err = c.queryRow(ctx,
		`SELECT
		   CAST(COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS BIGINT),
		   CAST(COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0) AS BIGINT)
		 FROM point_ledger WHERE user_id = ?`,
		string(domain.LedgerEarned), string(domain.LedgerSpent), userID,
	).Scan(&earned, &spent)
	return earned, spent, err
}
