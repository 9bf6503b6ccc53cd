package service

import "errors"

var (
	// ErrInvalidAmount means a non-positive (or, for adjustments, zero)
	// amount was passed.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidCursor means a history cursor was not a transaction id.
	ErrInvalidCursor = errors.New("invalid pagination cursor")

	// ErrInvalidSource means the earn source type has no rate-table entry.
	ErrInvalidSource = errors.New("unrecognized source type")

	// ErrZeroQuantity means the rate computation resolved to zero tokens.
	ErrZeroQuantity = errors.New("grant resolves to zero tokens")

	// ErrInsufficientTokens means a debit exceeds the available balance.
	// Surfaced to the caller verbatim; not retryable.
	ErrInsufficientTokens = errors.New("insufficient token balance")

	// ErrFreeRequestJustification means a free line on a non-child-free
	// product carried no request reason.
	ErrFreeRequestJustification = errors.New("free request requires a justification")

	// ErrInvalidPaymentMethod means a checkout line carried an unknown
	// payment method.
	ErrInvalidPaymentMethod = errors.New("unknown payment method")

	// ErrLedgerInconsistency means the derived balance went negative or the
	// projection diverged from replay. Fatal for the wallet: debits are
	// halted until manual reconciliation.
	ErrLedgerInconsistency = errors.New("ledger inconsistency detected")

	// ErrWalletFrozen means debits are halted pending manual reconciliation.
	ErrWalletFrozen = errors.New("wallet frozen pending manual reconciliation")
)
