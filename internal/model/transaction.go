package model

import "time"

// TxType is the ledger event kind. Sign is implied by type: earn adds,
// spend and expire subtract. Adjustment is the one type whose Amount
// carries its own sign.
type TxType string

const (
	TxEarn       TxType = "earn"
	TxSpend      TxType = "spend"
	TxExpire     TxType = "expire"
	TxAdjustment TxType = "adjustment"
)

// SourceType is the business origin of a ledger event.
type SourceType string

const (
	SourceVolunteerShift   SourceType = "volunteer_shift"
	SourceRepair           SourceType = "repair"
	SourceDonation         SourceType = "donation"
	SourceWorkshop         SourceType = "workshop"
	SourceSwapEvent        SourceType = "swap_event"
	SourcePurchase         SourceType = "purchase"
	SourceManualAdjustment SourceType = "manual_adjustment"
)

// Transaction is one immutable token ledger row. The table is append-only:
// the repo exposes no update or delete, corrections are new adjustment rows.
type Transaction struct {
	ID          uint64     `gorm:"primaryKey" json:"id"`
	UserID      uint64     `gorm:"not null;index" json:"user_id"`
	Type        TxType     `gorm:"size:16;not null" json:"type"`
	Amount      int64      `gorm:"not null" json:"amount"`
	SourceType  SourceType `gorm:"size:32;not null" json:"source_type"`
	Description string     `gorm:"size:255" json:"description"`
	// ExpiresAt is set only on earn rows, exactly one year after CreatedAt.
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	// RelatedTransactionID links a spend, expire, or negative adjustment row
	// to the earn lot it consumes.
	RelatedTransactionID *uint64   `gorm:"index" json:"related_transaction_id,omitempty"`
	CreatedAt            time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Transaction) TableName() string { return "token_transaction" }
