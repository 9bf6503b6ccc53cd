package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/projectai397/sakshi-platform-sub001/internal/model"
	"gorm.io/gorm"
)

// CheckoutLine is one cart line's chosen payment route. The closed set of
// methods replaces the string branching the storefront does client-side.
type CheckoutLine struct {
	Method         string `json:"payment_method" binding:"required"`
	Amount         int64  `json:"amount"`
	RequestReason  string `json:"request_reason"`
	IsChildrenFree bool   `json:"is_children_free"`
}

// LineOutcome correlates one settled line with the ledger rows it produced,
// for receipt and audit display.
type LineOutcome struct {
	Method         string   `json:"payment_method"`
	Amount         int64    `json:"amount"`
	TransactionIDs []uint64 `json:"transaction_ids,omitempty"`
}

type SettlementResult struct {
	SettlementID string        `json:"settlement_id"`
	CaptureID    string        `json:"capture_id,omitempty"`
	MoneyTotal   int64         `json:"money_total"`
	TokenTotal   int64         `json:"token_total"`
	Lines        []LineOutcome `json:"lines"`
}

// Settle atomically commits one order's payment across heterogeneous lines.
// The saga order is capture first, then token debit. Money capture and the
// ledger live in different systems, so a failed debit after a successful
// capture triggers the compensating refund, and a failed refund parks the
// settlement for background retry.
func (s *TokenService) Settle(ctx context.Context, userID uint64, lines []CheckoutLine) (*SettlementResult, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidAmount
	}
	var moneyTotal, tokenTotal int64
	for _, line := range lines {
		switch line.Method {
		case model.PayMoney:
			if line.Amount <= 0 {
				return nil, ErrInvalidAmount
			}
			moneyTotal += line.Amount
		case model.PayTokens:
			if line.Amount <= 0 {
				return nil, ErrInvalidAmount
			}
			tokenTotal += line.Amount
		case model.PayFree:
			if line.Amount != 0 {
				return nil, ErrInvalidAmount
			}
			if !line.IsChildrenFree && strings.TrimSpace(line.RequestReason) == "" {
				return nil, ErrFreeRequestJustification
			}
		default:
			return nil, ErrInvalidPaymentMethod
		}
	}

	// Serialize validate-then-append for this user. Held across capture so
	// no concurrent settlement can consume the balance validated here.
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	if tokenTotal > 0 {
		if _, err := s.Reconcile(ctx, userID, now); err != nil {
			return nil, err
		}
		w, err := s.GetWallet(ctx, userID)
		if err != nil {
			return nil, err
		}
		if w.Frozen {
			return nil, ErrWalletFrozen
		}
		avail, err := s.GetAvailableBalance(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		if tokenTotal > avail {
			settlementOutcomes.WithLabelValues("insufficient_tokens").Inc()
			return nil, ErrInsufficientTokens
		}
	}

	settlement := &model.Settlement{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     model.SettlementPending,
		MoneyTotal: moneyTotal,
		TokenTotal: tokenTotal,
	}
	if err := s.repo.CreateSettlement(ctx, settlement); err != nil {
		return nil, err
	}

	// Step 1 of the saga: money capture, bounded by the gateway timeout.
	// Fail-closed: nothing has touched the ledger yet.
	var captureID string
	if moneyTotal > 0 {
		cctx, cancel := context.WithTimeout(ctx, s.captureTimeout)
		id, err := s.pay.Capture(cctx, userID, moneyTotal)
		cancel()
		if err != nil {
			s.markSettlement(ctx, settlement.ID, map[string]interface{}{"status": model.SettlementCaptureFailed})
			settlementOutcomes.WithLabelValues("capture_failed").Inc()
			return nil, err
		}
		captureID = id
		s.markSettlement(ctx, settlement.ID, map[string]interface{}{"capture_id": captureID})
	}

	// Step 2: token debit and line bookkeeping in one DB transaction.
	outcomes := make([]LineOutcome, 0, len(lines))
	var finalBal int64
	debitErr := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var w *model.Wallet
		var lots []lotCursor
		if tokenTotal > 0 {
			var err error
			w, err = s.repo.GetWalletForUpdate(ctx, tx, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrInsufficientTokens
				}
				return err
			}
			if w.Frozen {
				return ErrWalletFrozen
			}
			// Re-validate inside the transaction: the pre-check above and
			// this append must be effectively atomic.
			raw, err := s.repo.EarnLots(ctx, tx, userID)
			if err != nil {
				return err
			}
			var overdue int64
			for _, lot := range raw {
				if lot.Remaining <= 0 {
					continue
				}
				if lot.Tx.ExpiresAt != nil && !lot.Tx.ExpiresAt.After(now) {
					overdue += lot.Remaining
					continue
				}
				lots = append(lots, lotCursor{id: lot.Tx.ID, remaining: lot.Remaining})
			}
			if tokenTotal > w.Balance-overdue {
				return ErrInsufficientTokens
			}
		}

		cursor := 0
		for _, line := range lines {
			outcome := LineOutcome{Method: line.Method, Amount: line.Amount}
			if line.Method == model.PayTokens {
				ids, err := s.debitLine(ctx, tx, userID, settlement.ID, line.Amount, lots, &cursor, now)
				if err != nil {
					return err
				}
				outcome.TransactionIDs = ids
			}
			sl := &model.SettlementLine{
				SettlementID:   settlement.ID,
				PaymentMethod:  line.Method,
				Amount:         line.Amount,
				RequestReason:  line.RequestReason,
				IsChildrenFree: line.IsChildrenFree,
			}
			if len(outcome.TransactionIDs) > 0 {
				sl.TransactionID = &outcome.TransactionIDs[0]
			}
			if err := s.repo.CreateSettlementLine(ctx, tx, sl); err != nil {
				return err
			}
			outcomes = append(outcomes, outcome)
		}

		if tokenTotal > 0 {
			finalBal = w.Balance - tokenTotal
			err := s.repo.UpdateWallet(ctx, tx, userID, map[string]interface{}{
				"balance":        finalBal,
				"lifetime_spent": w.LifetimeSpent + tokenTotal,
			}, w.Version)
			if err != nil {
				return err
			}
			if err := s.emit(ctx, tx, userID, "TokenSpent", map[string]interface{}{
				"user_id": userID, "amount": tokenTotal, "balance": finalBal,
				"settlement_id": settlement.ID,
			}); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateSettlement(ctx, tx, settlement.ID, map[string]interface{}{
			"status": model.SettlementCompleted,
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, userID, "SettlementCompleted", map[string]interface{}{
			"user_id": userID, "settlement_id": settlement.ID,
			"money_total": moneyTotal, "token_total": tokenTotal,
		})
	})
	if debitErr != nil {
		s.compensate(ctx, settlement.ID, captureID)
		settlementOutcomes.WithLabelValues("debit_failed").Inc()
		return nil, debitErr
	}

	if tokenTotal > 0 {
		txAppended.WithLabelValues(string(model.TxSpend)).Inc()
		s.cacheBalance(ctx, userID, finalBal)
	}
	settlementOutcomes.WithLabelValues("completed").Inc()
	return &SettlementResult{
		SettlementID: settlement.ID,
		CaptureID:    captureID,
		MoneyTotal:   moneyTotal,
		TokenTotal:   tokenTotal,
		Lines:        outcomes,
	}, nil
}

// lotCursor tracks one lot's remainder while a settlement walks the FIFO
// queue across multiple token lines.
type lotCursor struct {
	id        uint64
	remaining int64
}

// debitLine consumes earn lots oldest-first for one token line, appending a
// linked spend row per lot touched. Any remainder beyond the lots (balance
// contributed by positive adjustments, which carry no expiry) is spent as a
// single unlinked row.
func (s *TokenService) debitLine(ctx context.Context, tx *gorm.DB, userID uint64, settlementID string, amount int64, lots []lotCursor, cursor *int, now time.Time) ([]uint64, error) {
	var ids []uint64
	need := amount
	for need > 0 && *cursor < len(lots) {
		lot := &lots[*cursor]
		if lot.remaining <= 0 {
			*cursor++
			continue
		}
		take := need
		if take > lot.remaining {
			take = lot.remaining
		}
		lotID := lot.id
		spend := &model.Transaction{
			UserID:               userID,
			Type:                 model.TxSpend,
			Amount:               take,
			SourceType:           model.SourcePurchase,
			Description:          "checkout settlement " + settlementID,
			RelatedTransactionID: &lotID,
			CreatedAt:            now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, spend); err != nil {
			return nil, err
		}
		ids = append(ids, spend.ID)
		lot.remaining -= take
		need -= take
		if lot.remaining == 0 {
			*cursor++
		}
	}
	if need > 0 {
		spend := &model.Transaction{
			UserID:      userID,
			Type:        model.TxSpend,
			Amount:      need,
			SourceType:  model.SourcePurchase,
			Description: "checkout settlement " + settlementID,
			CreatedAt:   now,
		}
		if err := s.repo.AppendTransaction(ctx, tx, spend); err != nil {
			return nil, err
		}
		ids = append(ids, spend.ID)
	}
	return ids, nil
}

// compensate unwinds the saga after a debit failure. A captured payment is
// refunded; if even the refund fails the settlement parks in refund_pending
// and cmd/poller retries it with backoff.
func (s *TokenService) compensate(ctx context.Context, settlementID, captureID string) {
	if captureID == "" {
		s.markSettlement(ctx, settlementID, map[string]interface{}{"status": model.SettlementFailed})
		return
	}
	if err := s.pay.Refund(ctx, captureID); err != nil {
		s.log.Errorf("settlement %s: compensating refund failed, queued for retry: %v", settlementID, err)
		s.markSettlement(ctx, settlementID, map[string]interface{}{"status": model.SettlementRefundPending})
		return
	}
	s.markSettlement(ctx, settlementID, map[string]interface{}{"status": model.SettlementRefunded})
}

// RetryRefunds re-drives parked compensating refunds. Called from cmd/poller
// on an interval, which provides the backoff.
func (s *TokenService) RetryRefunds(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListRefundPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, st := range pending {
		if st.CaptureID == nil {
			s.markSettlement(ctx, st.ID, map[string]interface{}{"status": model.SettlementFailed})
			continue
		}
		if err := s.pay.Refund(ctx, *st.CaptureID); err != nil {
			s.log.Errorf("settlement %s: refund retry %d failed: %v", st.ID, st.RefundTries+1, err)
			s.markSettlement(ctx, st.ID, map[string]interface{}{"refund_tries": st.RefundTries + 1})
			continue
		}
		s.markSettlement(ctx, st.ID, map[string]interface{}{"status": model.SettlementRefunded})
		done++
	}
	return done, nil
}

func (s *TokenService) markSettlement(ctx context.Context, id string, fields map[string]interface{}) {
	if err := s.repo.UpdateSettlement(ctx, nil, id, fields); err != nil {
		s.log.Errorf("update settlement %s: %v", id, err)
	}
}
