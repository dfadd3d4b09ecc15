package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one match between a buy and a sell
// order. Rows are append-only: never updated, never deleted. Reference
// is the settlement idempotency key derived from the two order IDs and
// the maker's fill sequence.
type Trade struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Reference   string `gorm:"size:64;not null;uniqueIndex" json:"reference"`
	BuyOrderID  uint   `gorm:"index" json:"buy_order_id"`
	SellOrderID uint   `gorm:"index" json:"sell_order_id"`
	BuyerID     uint   `gorm:"index" json:"buyer_id"`
	SellerID    uint   `gorm:"index" json:"seller_id"`

	BaseCurrency  string `gorm:"size:10;not null;index:idx_trades_pair" json:"base_currency"`
	QuoteCurrency string `gorm:"size:10;not null;index:idx_trades_pair" json:"quote_currency"`

	Price       decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"price"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"quantity"`
	BaseAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"base_amount"`
	QuoteAmount decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"quote_amount"`
	BuyerFee    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"buyer_fee"`
	SellerFee   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"seller_fee"`

	ExecutedAt time.Time `gorm:"index" json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName allows you to control the exact table name for trades.
func (Trade) TableName() string {
	return "trades"
}
