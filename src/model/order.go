package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"
)

const (
	OrderStatusPending         = "pending"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
)

// Order represents a buy/sell order between users on a currency pair.
// Quantities are money amounts (2 decimals), prices are rates (6 decimals).
type Order struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	UserID        uint   `gorm:"index" json:"user_id"`
	Side          string `gorm:"size:10;not null" json:"side"`
	Type          string `gorm:"size:10;not null" json:"type"`
	BaseCurrency  string `gorm:"size:10;not null;index:idx_orders_pair" json:"base_currency"`
	QuoteCurrency string `gorm:"size:10;not null;index:idx_orders_pair" json:"quote_currency"`

	Quantity          decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"quantity"`
	RemainingQuantity decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"remaining_quantity"`
	FilledQuantity    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"filled_quantity"`

	// Price is zero for market orders; they never rest on the book.
	Price            decimal.Decimal `gorm:"type:numeric(20,6)" json:"price"`
	AverageFillPrice decimal.Decimal `gorm:"type:numeric(20,6)" json:"average_fill_price"`

	Status string `gorm:"size:50;not null;default:pending;index" json:"status"`

	DynamicPricingEnabled bool            `json:"dynamic_pricing_enabled"`
	OriginalPrice         decimal.Decimal `gorm:"type:numeric(20,6)" json:"original_price"`
	MinPriceBound         decimal.Decimal `gorm:"type:numeric(20,6)" json:"min_price_bound"`
	MaxPriceBound         decimal.Decimal `gorm:"type:numeric(20,6)" json:"max_price_bound"`
	PriceUpdateCount      int             `json:"price_update_count"`
	LastPriceUpdate       *time.Time      `json:"last_price_update,omitempty"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// One-to-one relation with the funds reservation backing this order
	Reservation *FundReservation `gorm:"foreignKey:OrderID" json:"reservation,omitempty"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order can no longer change state.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

// Pair returns the "BASE/QUOTE" label used for lock keys and grouping.
func (o *Order) Pair() string {
	return o.BaseCurrency + "/" + o.QuoteCurrency
}

// ReservedCurrency is the currency held against this order: quote funds
// back a buy, base funds back a sell.
func (o *Order) ReservedCurrency() string {
	if o.Side == OrderSideBuy {
		return o.QuoteCurrency
	}
	return o.BaseCurrency
}
