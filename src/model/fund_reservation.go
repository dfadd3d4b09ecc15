package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReservationStatusActive   = "active"
	ReservationStatusReleased = "released"
)

// FundReservation tracks the funds earmarked against a single order.
// ReleasedAmount grows as quantity is matched or cancelled; the
// reservation is terminal once released equals reserved.
type FundReservation struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"not null;uniqueIndex" json:"order_id"`
	UserID         uint            `gorm:"index" json:"user_id"`
	Currency       string          `gorm:"size:10;not null" json:"currency"`
	ReservedAmount decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reserved_amount"`
	ReleasedAmount decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"released_amount"`
	Status         string          `gorm:"size:50;not null;default:active" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName allows you to control the exact table name for fund reservations.
func (FundReservation) TableName() string {
	return "fund_reservations"
}

// Outstanding is the portion still held: reserved minus released.
func (r *FundReservation) Outstanding() decimal.Decimal {
	return r.ReservedAmount.Sub(r.ReleasedAmount)
}
