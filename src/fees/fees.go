package fees

import (
	"context"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/model"
	"walletexchange/src/repository"
)

// MoneyPlaces is the fixed precision for money amounts; RatePlaces for
// prices and percentages. Settlement arithmetic never touches floats.
const (
	MoneyPlaces = 2
	RatePlaces  = 6
)

var hundred = decimal.NewFromInt(100)

// RoundMoney applies the platform's deterministic rounding contract:
// round-half-up to 2 decimals. decimal.Round rounds half away from
// zero, which is identical for the non-negative amounts handled here.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// RoundRate rounds a price or percentage to 6 decimals.
func RoundRate(rate decimal.Decimal) decimal.Decimal {
	return rate.Round(RatePlaces)
}

// Service computes per-side trade fees from the fee schedule. The fee is
// a percentage of the credited amount, deducted before crediting.
type Service struct {
	schedules *repository.FeeScheduleRepository
}

// NewService builds a fee service on the main database.
func NewService() *Service {
	return &Service{schedules: repository.NewFeeScheduleRepository()}
}

// WithDB rebinds the service to a specific transaction.
func (s *Service) WithDB(db *gorm.DB) *Service {
	return &Service{schedules: s.schedules.WithDB(db)}
}

// BuyerFee is charged on the base amount credited to the buyer.
func (s *Service) BuyerFee(
	ctx context.Context,
	baseCurrency string,
	baseAmount decimal.Decimal,
) (decimal.Decimal, error) {
	return s.fee(ctx, baseCurrency, model.FeeTxTypeTradeBuy, baseAmount)
}

// SellerFee is charged on the quote amount credited to the seller.
func (s *Service) SellerFee(
	ctx context.Context,
	quoteCurrency string,
	quoteAmount decimal.Decimal,
) (decimal.Decimal, error) {
	return s.fee(ctx, quoteCurrency, model.FeeTxTypeTradeSell, quoteAmount)
}

func (s *Service) fee(
	ctx context.Context,
	currency string,
	transactionType string,
	amount decimal.Decimal,
) (decimal.Decimal, error) {

	rate, err := s.schedules.FindRate(ctx, currency, transactionType)
	if err != nil {
		return decimal.Zero, err
	}

	if rate.IsZero() {
		return decimal.Zero, nil
	}

	fee := RoundMoney(amount.Mul(rate).Div(hundred))

	logger.WithFields(map[string]interface{}{
		"component": "fees",
		"currency":  currency,
		"tx_type":   transactionType,
		"rate":      rate,
		"fee":       fee,
	}).Debug("Fee computed")

	return fee, nil
}
