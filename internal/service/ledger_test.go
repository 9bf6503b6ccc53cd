package service

import (
	"testing"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAdjust_SignedCorrections(t *testing.T) {
	svc, _, ctx := newTestService(t)

	_, err := svc.Adjust(ctx, 1, 0, "noop")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Adjust(ctx, 1, 5, "goodwill credit")
	assert.NoError(t, err)
	_, err = svc.Adjust(ctx, 1, -3, "double-granted shift")
	assert.NoError(t, err)

	// corrections may never push the balance negative
	_, err = svc.Adjust(ctx, 1, -10, "overshoot")
	assert.ErrorIs(t, err, ErrInsufficientTokens)

	w, err := svc.GetWallet(ctx, 1)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, w.Balance)
	assert.EqualValues(t, 5, w.LifetimeEarned)
	assert.EqualValues(t, 3, w.LifetimeSpent)
	assert.EqualValues(t, 2, countTransactions(t, svc, ctx, 1, model.TxAdjustment))
}

// A negative correction against an earned balance must consume the earn lot,
// so a later reconcile only expires what the correction left behind. Without
// the lot linkage the reconcile would try to expire the full lot against the
// reduced balance and flag a phantom inconsistency.
func TestAdjust_NegativeConsumesLotsBeforeExpiry(t *testing.T) {
	svc, _, ctx := newTestService(t)
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	at(svc, base)
	lot, err := svc.Grant(ctx, 1, model.SourceVolunteerShift, decimal.NewFromInt(10), "shift")
	assert.NoError(t, err)

	at(svc, base.Add(day))
	txID, err := svc.Adjust(ctx, 1, -5, "double-granted shift")
	assert.NoError(t, err)

	var adj model.Transaction
	assert.NoError(t, svc.repo.DB(ctx).First(&adj, "id = ?", txID).Error)
	assert.EqualValues(t, -5, adj.Amount)
	if assert.NotNil(t, adj.RelatedTransactionID) {
		assert.Equal(t, lot, *adj.RelatedTransactionID)
	}

	// only the unconsumed remainder of the lot expires
	later := base.Add(366 * day)
	expired, err := svc.Reconcile(ctx, 1, later)
	assert.NoError(t, err)
	assert.EqualValues(t, 5, expired)

	w, err := svc.GetWallet(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, w.Frozen)
	assert.EqualValues(t, 0, w.Balance)
	assert.EqualValues(t, 5, w.LifetimeExpired)

	avail, err := svc.GetAvailableBalance(ctx, 1, later)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, avail)
}

func TestListTransactions_CursorPagination(t *testing.T) {
	svc, _, ctx := newTestService(t)
	at(svc, time.Now())
	for i := 0; i < 5; i++ {
		_, err := svc.Grant(ctx, 1, model.SourceVolunteerShift, decimal.NewFromInt(1), "shift")
		assert.NoError(t, err)
	}

	seen := map[uint64]bool{}
	cursor := ""
	pages := 0
	var lastID uint64
	for {
		txs, next, err := svc.ListTransactions(ctx, 1, 2, cursor)
		assert.NoError(t, err)
		for _, tx := range txs {
			assert.False(t, seen[tx.ID], "duplicate across pages")
			seen[tx.ID] = true
			if lastID != 0 {
				assert.Less(t, tx.ID, lastID, "newest-first ordering")
			}
			lastID = tx.ID
		}
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)
}

func TestListTransactions_BadCursor(t *testing.T) {
	svc, _, ctx := newTestService(t)
	_, _, err := svc.ListTransactions(ctx, 1, 10, "not-a-number")
	assert.Error(t, err)
}
