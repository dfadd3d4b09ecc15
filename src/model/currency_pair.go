package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPair is a tradable pair registered on the platform. Placement
// validation rejects any pair without an active row here.
type CurrencyPair struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BaseCurrency  string          `gorm:"size:10;not null;index:idx_pair,unique" json:"base_currency"`
	QuoteCurrency string          `gorm:"size:10;not null;index:idx_pair,unique" json:"quote_currency"`
	MinQuantity   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"min_quantity"`
	Active        bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName allows you to control the exact table name for currency pairs.
func (CurrencyPair) TableName() string {
	return "currency_pairs"
}

// Symbol returns the "BASE/QUOTE" label for this pair.
func (p *CurrencyPair) Symbol() string {
	return p.BaseCurrency + "/" + p.QuoteCurrency
}
