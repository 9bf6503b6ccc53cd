package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"gorm.io/gorm"
)

// Reconcile materializes pending expirations for one user: every earn lot
// past its expiry window with an unconsumed remainder gets a compensating
// expire row linked back to it. Idempotent: a lot already drained by spends
// or a previous reconcile has remainder zero and is skipped. Returns the
// number of tokens expired.
func (s *TokenService) Reconcile(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	var total int64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.GetWalletForUpdate(ctx, tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // no wallet, nothing to expire
			}
			return err
		}
		lots, err := s.repo.EarnLots(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			if lot.Remaining <= 0 || lot.Tx.ExpiresAt == nil || lot.Tx.ExpiresAt.After(now) {
				continue
			}
			lotID := lot.Tx.ID
			expireTx := &model.Transaction{
				UserID:               userID,
				Type:                 model.TxExpire,
				Amount:               lot.Remaining,
				SourceType:           lot.Tx.SourceType,
				Description:          fmt.Sprintf("expired unspent tokens from earn #%d", lotID),
				RelatedTransactionID: &lotID,
				CreatedAt:            now,
			}
			if err := s.repo.AppendTransaction(ctx, tx, expireTx); err != nil {
				return err
			}
			total += lot.Remaining
		}
		if total == 0 {
			return nil
		}
		newBal := w.Balance - total
		if newBal < 0 {
			return ErrLedgerInconsistency
		}
		err = s.repo.UpdateWallet(ctx, tx, userID, map[string]interface{}{
			"balance":          newBal,
			"lifetime_expired": w.LifetimeExpired + total,
		}, w.Version)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, userID, "TokenExpired", map[string]interface{}{
			"user_id": userID, "amount": total, "balance": newBal,
		}); err != nil {
			return err
		}
		s.cacheBalance(ctx, userID, newBal)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if total > 0 {
		txAppended.WithLabelValues(string(model.TxExpire)).Inc()
		tokensExpired.Add(float64(total))
	}
	return total, nil
}

// Sweep runs Reconcile over every user holding overdue lots. One user's
// failure never blocks the rest; failed users are picked up again on the
// next scheduled run, which is safe because Reconcile is idempotent.
func (s *TokenService) Sweep(ctx context.Context, now time.Time) (int, error) {
	userIDs, err := s.repo.UsersWithOverdueLots(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range userIDs {
		if _, err := s.Reconcile(ctx, id, now); err != nil {
			sweepFailures.Inc()
			s.log.Errorf("sweep reconcile user=%d: %v", id, err)
			continue
		}
		swept++
	}
	return swept, nil
}
