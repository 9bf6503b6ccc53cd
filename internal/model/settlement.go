package model

import "time"

// Settlement statuses. A settlement is the durable saga record for one
// checkout: capture money, then debit tokens, refunding on debit failure.
const (
	SettlementPending       = "pending"
	SettlementCaptureFailed = "capture_failed"
	SettlementRefundPending = "refund_pending"
	SettlementRefunded      = "refunded"
	SettlementCompleted     = "completed"
	SettlementFailed        = "failed"
)

// Payment methods a checkout line can carry.
const (
	PayMoney  = "money"
	PayTokens = "seva_tokens"
	PayFree   = "free"
)

type Settlement struct {
	ID     string `gorm:"primaryKey;size:36"`
	UserID uint64 `gorm:"not null;index"`
	Status string `gorm:"size:24;not null"`
	// CaptureID is set once the payment gateway confirmed the money capture.
	CaptureID   *string `gorm:"size:64"`
	MoneyTotal  int64   `gorm:"not null;default:0"`
	TokenTotal  int64   `gorm:"not null;default:0"`
	RefundTries int     `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Settlement) TableName() string { return "settlement" }

type SettlementLine struct {
	ID            uint64 `gorm:"primaryKey"`
	SettlementID  string `gorm:"size:36;not null;index"`
	PaymentMethod string `gorm:"size:16;not null"`
	// Amount is minor currency units for money lines, token count for token
	// lines, zero for free lines.
	Amount         int64  `gorm:"not null"`
	RequestReason  string `gorm:"size:255"`
	IsChildrenFree bool   `gorm:"not null;default:false"`
	// TransactionID points at the (first) spend row debited for this line.
	TransactionID *uint64
}

func (SettlementLine) TableName() string { return "settlement_line" }
