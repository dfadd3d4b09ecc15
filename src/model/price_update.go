package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriceUpdateReasonVwap             = "vwap_calculation"
	PriceUpdateReasonMarketAdjustment = "market_adjustment"
	PriceUpdateReasonUserDisabled     = "user_disabled"
	PriceUpdateReasonBoundsAdjustment = "bounds_adjustment"
)

// PriceUpdate is the append-only audit trail of dynamic price changes
// applied to a resting order.
type PriceUpdate struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"index" json:"order_id"`
	UserID           uint            `gorm:"index" json:"user_id"`
	OldPrice         decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"old_price"`
	NewPrice         decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"new_price"`
	ChangePercentage decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"change_percentage"`
	Reason           string          `gorm:"size:30;not null" json:"reason"`
	VwapReference    decimal.Decimal `gorm:"type:numeric(20,6)" json:"vwap_reference"`
	VolumeReference  decimal.Decimal `gorm:"type:numeric(20,2)" json:"volume_reference"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName allows you to control the exact table name for price updates.
func (PriceUpdate) TableName() string {
	return "price_updates"
}
