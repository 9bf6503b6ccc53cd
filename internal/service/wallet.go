package service

import (
	"context"
	"errors"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"gorm.io/gorm"
)

// GetWallet derives the wallet from full ledger replay and cross-checks the
// materialized row against it. A negative derived balance, a diverged row, or
// a broken lifetime invariant freezes the wallet and fails loudly instead of
// clamping.
func (s *TokenService) GetWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	sums, err := s.repo.SumsByType(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		return nil, err
	}
	derived := sums[model.TxEarn] - sums[model.TxSpend] - sums[model.TxExpire] + sums[model.TxAdjustment]
	if derived < 0 {
		s.freeze(ctx, userID, "derived balance negative")
		return nil, ErrLedgerInconsistency
	}

	var w model.Wallet
	err = s.repo.DB(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if len(sums) > 0 {
			// transactions without a projection row: every append creates one
			return nil, ErrLedgerInconsistency
		}
		return &model.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	if w.Balance != derived || w.Balance != w.LifetimeEarned-w.LifetimeSpent-w.LifetimeExpired {
		s.freeze(ctx, userID, "projection diverged from replay")
		return nil, ErrLedgerInconsistency
	}
	s.cacheBalance(ctx, userID, w.Balance)
	return &w, nil
}

// GetAvailableBalance is the balance spendable as of the given instant:
// the derived balance minus remainders of earn lots already past their
// expiry window but not yet materialized as expire rows. Reads stay
// consistent with wall-clock time even before the sweep runs.
func (s *TokenService) GetAvailableBalance(ctx context.Context, userID uint64, asOf time.Time) (int64, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	lots, err := s.repo.EarnLots(ctx, s.repo.DB(ctx), userID)
	if err != nil {
		return 0, err
	}
	var overdue int64
	for _, lot := range lots {
		if lot.Remaining > 0 && lot.Tx.ExpiresAt != nil && !lot.Tx.ExpiresAt.After(asOf) {
			overdue += lot.Remaining
		}
	}
	avail := w.Balance - overdue
	if avail < 0 {
		s.freeze(ctx, userID, "lot accounting exceeds balance")
		return 0, ErrLedgerInconsistency
	}
	return avail, nil
}

// GetBalance is the display fast path: cached if fresh, replayed otherwise.
// Spend authorization never reads the cache.
func (s *TokenService) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, userID); err == nil {
		return bal, nil
	}
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

func (s *TokenService) freeze(ctx context.Context, userID uint64, reason string) {
	s.log.Errorf("ledger inconsistency user=%d: %s; freezing wallet for manual reconciliation", userID, reason)
	if err := s.repo.SetFrozen(ctx, userID, true); err != nil {
		s.log.Errorf("freeze wallet user=%d: %v", userID, err)
	}
}
