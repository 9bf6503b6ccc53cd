package service

import (
	"context"
	"strconv"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"gorm.io/gorm"
)

// ListTransactions returns one page of a user's ledger, newest-first. The
// cursor is the last-seen transaction id, so pagination stays stable under
// concurrent appends; an empty next cursor means the history is exhausted.
func (s *TokenService) ListTransactions(ctx context.Context, userID uint64, limit int, cursor string) ([]model.Transaction, string, error) {
	if limit <= 0 || limit > s.maxPage {
		limit = s.maxPage
	}
	q := s.repo.DB(ctx).Where("user_id = ?", userID)
	if cursor != "" {
		lastID, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
		q = q.Where("id < ?", lastID)
	}
	var txs []model.Transaction
	if err := q.Order("id DESC").Limit(limit).Find(&txs).Error; err != nil {
		return nil, "", err
	}
	next := ""
	if len(txs) == limit {
		next = strconv.FormatUint(txs[len(txs)-1].ID, 10)
	}
	return txs, next, nil
}

// Adjust appends a signed manual correction. Adjustments are how the ledger
// is ever "edited": the original rows stay untouched. A positive adjustment
// counts toward lifetime earned, a negative one toward lifetime spent, so
// the projection invariant keeps holding.
func (s *TokenService) Adjust(ctx context.Context, userID uint64, amount int64, description string) (uint64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	var txID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.loadOrCreateWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		if amount < 0 && w.Frozen {
			return ErrWalletFrozen
		}
		newBal := w.Balance + amount
		if newBal < 0 {
			return ErrInsufficientTokens
		}
		if amount > 0 {
			t := &model.Transaction{
				UserID:      userID,
				Type:        model.TxAdjustment,
				Amount:      amount,
				SourceType:  model.SourceManualAdjustment,
				Description: description,
				CreatedAt:   s.now(),
			}
			if err := s.repo.AppendTransaction(ctx, tx, t); err != nil {
				return err
			}
			txID = t.ID
		} else {
			id, err := s.debitAdjustment(ctx, tx, userID, -amount, description)
			if err != nil {
				return err
			}
			txID = id
		}
		fields := map[string]interface{}{"balance": newBal}
		if amount > 0 {
			fields["lifetime_earned"] = w.LifetimeEarned + amount
		} else {
			fields["lifetime_spent"] = w.LifetimeSpent - amount
		}
		if err := s.repo.UpdateWallet(ctx, tx, userID, fields, w.Version); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, userID, "TokenAdjusted", map[string]interface{}{
			"user_id": userID, "amount": amount, "balance": newBal, "transaction_id": txID,
		}); err != nil {
			return err
		}
		s.cacheBalance(ctx, userID, newBal)
		return nil
	})
	if err != nil {
		return 0, err
	}
	txAppended.WithLabelValues(string(model.TxAdjustment)).Inc()
	return txID, nil
}

// debitAdjustment writes a negative correction as lot-linked rows, consuming
// earn lots oldest-first the same way a spend does. Lot remainders must never
// sum past the balance, otherwise a later reconcile would try to expire
// tokens the correction already removed. Any remainder beyond the lots
// (balance from earlier positive adjustments) becomes a single unlinked row.
// Returns the id of the first row written.
func (s *TokenService) debitAdjustment(ctx context.Context, tx *gorm.DB, userID uint64, amount int64, description string) (uint64, error) {
	lots, err := s.repo.EarnLots(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	var first uint64
	need := amount
	for _, lot := range lots {
		if need == 0 {
			break
		}
		if lot.Remaining <= 0 {
			continue
		}
		take := need
		if take > lot.Remaining {
			take = lot.Remaining
		}
		lotID := lot.Tx.ID
		t := &model.Transaction{
			UserID:               userID,
			Type:                 model.TxAdjustment,
			Amount:               -take,
			SourceType:           model.SourceManualAdjustment,
			Description:          description,
			RelatedTransactionID: &lotID,
			CreatedAt:            now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, t); err != nil {
			return 0, err
		}
		if first == 0 {
			first = t.ID
		}
		need -= take
	}
	if need > 0 {
		t := &model.Transaction{
			UserID:      userID,
			Type:        model.TxAdjustment,
			Amount:      -need,
			SourceType:  model.SourceManualAdjustment,
			Description: description,
			CreatedAt:   now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, t); err != nil {
			return 0, err
		}
		if first == 0 {
			first = t.ID
		}
	}
	return first, nil
}

// Unfreeze clears the manual-reconciliation halt. Operator action only,
// taken after the ledger has been audited.
func (s *TokenService) Unfreeze(ctx context.Context, userID uint64) error {
	return s.repo.SetFrozen(ctx, userID, false)
}
