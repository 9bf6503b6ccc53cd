package model

import "time"

// Wallet is the materialized projection of one user's token ledger. Business
// code never writes it directly: every change happens in the same DB
// transaction as the ledger append that caused it, and the row must stay
// re-derivable by full replay of token_transaction.
type Wallet struct {
	UserID          uint64 `gorm:"primaryKey;column:user_id" json:"user_id"`
	Balance         int64  `gorm:"not null;default:0" json:"balance"`
	LifetimeEarned  int64  `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeSpent   int64  `gorm:"not null;default:0" json:"lifetime_spent"`
	LifetimeExpired int64  `gorm:"not null;default:0" json:"lifetime_expired"`
	// Frozen halts further debits after a detected ledger inconsistency,
	// pending manual reconciliation.
	Frozen    bool      `gorm:"not null;default:false" json:"frozen"`
	Version   uint64    `gorm:"not null;default:0" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallet" }
