package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FeeTxTypeTradeBuy  = "trade_buy"
	FeeTxTypeTradeSell = "trade_sell"
)

// FeeSchedule configures the percentage fee charged per (currency,
// transaction type). Missing rows mean a zero fee.
type FeeSchedule struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Currency        string          `gorm:"size:10;not null;index:idx_fee_currency_type,unique" json:"currency"`
	TransactionType string          `gorm:"size:20;not null;index:idx_fee_currency_type,unique" json:"transaction_type"`
	Percentage      decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"percentage"`
	Active          bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName allows you to control the exact table name for fee schedules.
func (FeeSchedule) TableName() string {
	return "fee_schedules"
}
