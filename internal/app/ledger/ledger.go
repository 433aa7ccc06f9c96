// Package ledger implements the append-only points ledger.
// Every change to a learner's point total is one ledger row written in the
// same transaction as the cached total, so Σ earned − Σ spent always equals
// the user's TotalPoints.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/learnquest/internal/domain"
)

// Service writes and reads ledger entries.
type Service struct {
	now func() time.Time
}

// NewService creates a ledger service. A nil clock uses time.Now.
func NewService(now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{now: now}
}

// Grant appends an earned entry and adds the amount to the cached total.
func (s *Service) Grant(ctx context.Context, tx domain.Tx, userID string, amount int64,
	source domain.SourceType, sourceID, reason string) (domain.LedgerEntry, error) {
	return s.write(ctx, tx, domain.LedgerEarned, userID, amount, source, sourceID, reason)
}

// Spend appends a spent entry and subtracts the amount from the cached
// total. It fails with ErrInsufficientPoints when the balance is short.
func (s *Service) Spend(ctx context.Context, tx domain.Tx, userID string, amount int64,
	source domain.SourceType, sourceID, reason string) (domain.LedgerEntry, error) {
	if amount <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: got %d", domain.ErrInvalidAmount, amount)
	}

	balance, err := TotalFor(ctx, tx, userID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("get balance: %w", err)
	}
	if balance < amount {
		return domain.LedgerEntry{}, fmt.Errorf("%w: have %d, need %d",
			domain.ErrInsufficientPoints, balance, amount)
	}

	return s.write(ctx, tx, domain.LedgerSpent, userID, amount, source, sourceID, reason)
}

func (s *Service) write(ctx context.Context, tx domain.Tx, typ domain.LedgerEntryType,
	userID string, amount int64, source domain.SourceType, sourceID, reason string) (domain.LedgerEntry, error) {
	if amount <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("%w: got %d", domain.ErrInvalidAmount, amount)
	}

	entry := domain.LedgerEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		Type:       typ,
		SourceType: source,
		SourceID:   sourceID,
		Reason:     reason,
		CreatedAt:  s.now(),
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	if err := tx.AddUserPoints(ctx, userID, entry.Signed()); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("update cached total: %w", err)
	}
	return entry, nil
}

// TotalFor returns Σ earned − Σ spent for a user.
func TotalFor(ctx context.Context, q domain.Reader, userID string) (int64, error) {
	earned, spent, err := q.SumLedger(ctx, userID)
	if err != nil {
		return 0, err
	}
	return earned - spent, nil
}

// EarnedFor returns Σ earned for a user. Spending never lowers it, so it is
// the basis for levels.
func EarnedFor(ctx context.Context, q domain.Reader, userID string) (int64, error) {
	earned, _, err := q.SumLedger(ctx, userID)
	if err != nil {
		return 0, err
	}
	return earned, nil
}

// History returns a user's most recent entries, newest first.
func History(ctx context.Context, q domain.Reader, userID string, limit int) ([]domain.LedgerEntry, error) {
	return q.ListLedger(ctx, userID, limit)
}
