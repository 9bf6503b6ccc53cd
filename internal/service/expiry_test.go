package service

import (
	"testing"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// A lot dated exactly 365 days back is fully expired; one dated 364 days
// back is untouched.
func TestReconcile_Boundary(t *testing.T) {
	svc, _, ctx := newTestService(t)
	now := time.Now()

	at(svc, now.Add(-365*day))
	oldID, err := svc.Grant(ctx, 1, model.SourceVolunteerShift, decimal.NewFromInt(10), "a year ago")
	assert.NoError(t, err)
	at(svc, now.Add(-364*day))
	_, err = svc.Grant(ctx, 1, model.SourceRepair, decimal.NewFromFloat(2.5), "almost a year ago")
	assert.NoError(t, err)

	expired, err := svc.Reconcile(ctx, 1, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 10, expired)

	w, err := svc.GetWallet(ctx, 1)
	assert.NoError(t, err)
	assert.EqualValues(t, 5, w.Balance)
	assert.EqualValues(t, 10, w.LifetimeExpired)

	// the expire row links back to the consumed lot
	var expireTx model.Transaction
	err = svc.repo.DB(ctx).Where("user_id = ? AND type = ?", 1, model.TxExpire).First(&expireTx).Error
	assert.NoError(t, err)
	if assert.NotNil(t, expireTx.RelatedTransactionID) {
		assert.Equal(t, oldID, *expireTx.RelatedTransactionID)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	svc, _, ctx := newTestService(t)
	now := time.Now()

	at(svc, now.Add(-400*day))
	_, err := svc.Grant(ctx, 1, model.SourceWorkshop, decimal.NewFromInt(2), "long ago")
	assert.NoError(t, err)

	first, err := svc.Reconcile(ctx, 1, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 6, first)

	second, err := svc.Reconcile(ctx, 1, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, second)
	assert.EqualValues(t, 1, countTransactions(t, svc, ctx, 1, model.TxExpire))
}

// A lot fully drained by spends before its window closes leaves nothing to
// expire.
func TestReconcile_SkipsConsumedLots(t *testing.T) {
	svc, _, ctx := newTestService(t)
	now := time.Now()

	at(svc, now.Add(-366*day))
	_, err := svc.Grant(ctx, 1, model.SourceVolunteerShift, decimal.NewFromInt(5), "old shift")
	assert.NoError(t, err)

	at(svc, now.Add(-300*day))
	_, err = svc.Settle(ctx, 1, []CheckoutLine{{Method: model.PayTokens, Amount: 5}})
	assert.NoError(t, err)

	expired, err := svc.Reconcile(ctx, 1, now)
	assert.NoError(t, err)
	assert.EqualValues(t, 0, expired)
	assert.EqualValues(t, 0, countTransactions(t, svc, ctx, 1, model.TxExpire))
}

func TestSweep_CoversAllUsersIndependently(t *testing.T) {
	svc, _, ctx := newTestService(t)
	now := time.Now()

	at(svc, now.Add(-370*day))
	_, err := svc.Grant(ctx, 1, model.SourceVolunteerShift, decimal.NewFromInt(4), "stale")
	assert.NoError(t, err)
	_, err = svc.Grant(ctx, 2, model.SourceRepair, decimal.NewFromInt(1), "stale")
	assert.NoError(t, err)
	at(svc, now.Add(-day))
	_, err = svc.Grant(ctx, 3, model.SourceWorkshop, decimal.NewFromInt(1), "fresh")
	assert.NoError(t, err)

	swept, err := svc.Sweep(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 2, swept)

	for user, want := range map[uint64]int64{1: 0, 2: 0, 3: 3} {
		w, err := svc.GetWallet(ctx, user)
		assert.NoError(t, err)
		assert.EqualValues(t, want, w.Balance, "user %d", user)
	}

	// a second sweep finds nothing left to do
	swept, err = svc.Sweep(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 0, swept)
}
