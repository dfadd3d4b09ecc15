package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	WalletTxTypeTradeBuy  = "trade_buy"
	WalletTxTypeTradeSell = "trade_sell"
	WalletTxTypeFee       = "fee"

	WalletTxStatusCompleted = "completed"
)

// WalletTransaction is the per-counterparty audit record written next to
// every trade, inside the same transaction as the balance mutations.
// Append-only: a row's status is set at creation and never revisited.
type WalletTransaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	TradeID   uint            `gorm:"index" json:"trade_id"`
	UserID    uint            `gorm:"index" json:"user_id"`
	Currency  string          `gorm:"size:10;not null" json:"currency"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Type      string          `gorm:"size:20;not null" json:"type"`
	Status    string          `gorm:"size:20;not null;default:completed" json:"status"`
	Reference string          `gorm:"size:64;index" json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}

// TableName allows you to control the exact table name for wallet transactions.
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
