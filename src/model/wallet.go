package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds the available/reserved balance for one (user, currency)
// pair. Rows are created lazily on first use and never deleted. Both
// balances must stay >= 0 at all times; only the ledger mutates them.
type Wallet struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"not null;index:idx_wallet_user_currency,unique" json:"user_id"`
	Currency         string          `gorm:"size:10;not null;index:idx_wallet_user_currency,unique" json:"currency"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"available_balance"`
	ReservedBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reserved_balance"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName allows you to control the exact table name for wallets.
func (Wallet) TableName() string {
	return "wallets"
}

// TotalBalance is available + reserved.
func (w *Wallet) TotalBalance() decimal.Decimal {
	return w.AvailableBalance.Add(w.ReservedBalance)
}
