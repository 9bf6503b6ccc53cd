package service

import (
	"context"
	"time"

	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// tokenValidity is the earn-lot lifetime: tokens expire exactly one year
// after they are earned.
const tokenValidity = 365 * 24 * time.Hour

// Grant validates and posts one earn transaction for a completed external
// activity. The token amount comes from the source-specific rate table;
// nothing outside the ledger append changes state.
func (s *TokenService) Grant(ctx context.Context, userID uint64, sourceType model.SourceType, quantity decimal.Decimal, description string) (uint64, error) {
	rate, ok := s.rates[string(sourceType)]
	if !ok {
		return 0, ErrInvalidSource
	}
	amount := rate.Mul(quantity).Floor().IntPart()
	if amount <= 0 {
		return 0, ErrZeroQuantity
	}

	now := s.now()
	expires := now.Add(tokenValidity)
	var txID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.loadOrCreateWallet(ctx, tx, userID)
		if err != nil {
			return err
		}
		t := &model.Transaction{
			UserID:      userID,
			Type:        model.TxEarn,
			Amount:      amount,
			SourceType:  sourceType,
			Description: description,
			ExpiresAt:   &expires,
			CreatedAt:   now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, t); err != nil {
			return err
		}
		newBal := w.Balance + amount
		err = s.repo.UpdateWallet(ctx, tx, userID, map[string]interface{}{
			"balance":         newBal,
			"lifetime_earned": w.LifetimeEarned + amount,
		}, w.Version)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, userID, "TokenEarned", map[string]interface{}{
			"user_id": userID, "source_type": sourceType, "amount": amount,
			"balance": newBal, "transaction_id": t.ID,
		}); err != nil {
			return err
		}
		txID = t.ID
		s.cacheBalance(ctx, userID, newBal)
		return nil
	})
	if err != nil {
		return 0, err
	}
	txAppended.WithLabelValues(string(model.TxEarn)).Inc()
	return txID, nil
}
