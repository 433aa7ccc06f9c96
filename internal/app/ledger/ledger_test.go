package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.UpsertUser(context.Background(), domain.User{ID: "u1", Name: "Ada"}))
	return db
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

// ─── Service Tests ──────────────────────────────────────────────────────────

func TestGrant_UpdatesCachedTotal(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(fixedClock())
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx domain.Tx) error {
		e, err := svc.Grant(ctx, tx, "u1", 18, domain.SourceActivity, "a1", "completed activity")
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, domain.LedgerEarned, e.Type)
		assert.Equal(t, fixedClock()(), e.CreatedAt)
		return nil
	})
	require.NoError(t, err)

	u, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 18, u.TotalPoints)

	total, err := TotalFor(ctx, db, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 18, total)
}

func TestGrant_RejectsNonPositive(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(nil)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		err := db.WithTx(ctx, func(tx domain.Tx) error {
			_, err := svc.Grant(ctx, tx, "u1", amount, domain.SourceActivity, "", "")
			return err
		})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}

	entries, err := History(ctx, db, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpend_InsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(nil)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx domain.Tx) error {
		if _, err := svc.Grant(ctx, tx, "u1", 10, domain.SourceEnrollment, "c1", "enrolled"); err != nil {
			return err
		}
		_, err := svc.Spend(ctx, tx, "u1", 11, domain.SourceReward, "r1", "sticker")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	// The whole transaction rolled back, including the grant.
	total, err := TotalFor(ctx, db, "u1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

// Ledger reconciliation: the cached total always equals Σ earned − Σ spent.
func TestLedger_Reconciles(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(nil)
	ctx := context.Background()

	ops := []struct {
		spend  bool
		amount int64
	}{
		{false, 30}, {false, 12}, {true, 20}, {false, 5}, {true, 27},
	}
	for _, op := range ops {
		err := db.WithTx(ctx, func(tx domain.Tx) error {
			var err error
			if op.spend {
				_, err = svc.Spend(ctx, tx, "u1", op.amount, domain.SourceReward, "", "")
			} else {
				_, err = svc.Grant(ctx, tx, "u1", op.amount, domain.SourceActivity, "", "")
			}
			return err
		})
		require.NoError(t, err)

		u, err := db.GetUser(ctx, "u1")
		require.NoError(t, err)
		total, err := TotalFor(ctx, db, "u1")
		require.NoError(t, err)
		assert.Equal(t, total, u.TotalPoints)
	}

	entries, err := History(ctx, db, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, len(ops))

	var signed int64
	for _, e := range entries {
		signed += e.Signed()
	}
	assert.Zero(t, signed)

	earned, err := EarnedFor(ctx, db, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 47, earned, "spending leaves lifetime earnings alone")
}
