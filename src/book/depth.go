package book

import (
	"context"

	"github.com/shopspring/decimal"

	"walletexchange/src/exchange"
	"walletexchange/src/model"
)

// PriceLevel is one aggregated row of the depth snapshot.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// DepthSnapshot aggregates resting liquidity per price level: bids best
// (highest) first, asks best (lowest) first, with running totals.
type DepthSnapshot struct {
	BaseCurrency  string       `json:"base_currency"`
	QuoteCurrency string       `json:"quote_currency"`
	Bids          []PriceLevel `json:"bids"`
	Asks          []PriceLevel `json:"asks"`
}

// Depth builds the order-book depth snapshot for a pair, capped at
// levels rows per side.
func (s *Service) Depth(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
	levels int,
) (*DepthSnapshot, error) {

	if levels <= 0 {
		levels = 20
	}

	pair, err := s.pairs.FindActive(ctx, baseCurrency, quoteCurrency)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, exchange.Validationf("unsupported currency pair %s/%s", baseCurrency, quoteCurrency)
	}

	bids, err := s.orders.FindRestingByPair(ctx, baseCurrency, quoteCurrency, model.OrderSideBuy)
	if err != nil {
		return nil, err
	}
	asks, err := s.orders.FindRestingByPair(ctx, baseCurrency, quoteCurrency, model.OrderSideSell)
	if err != nil {
		return nil, err
	}

	return &DepthSnapshot{
		BaseCurrency:  baseCurrency,
		QuoteCurrency: quoteCurrency,
		Bids:          aggregateLevels(bids, levels),
		Asks:          aggregateLevels(asks, levels),
	}, nil
}

// aggregateLevels folds orders (already sorted best price first) into
// price levels with cumulative totals.
func aggregateLevels(orders []model.Order, levels int) []PriceLevel {
	out := make([]PriceLevel, 0, levels)
	total := decimal.Zero

	for _, order := range orders {
		if len(out) > 0 && out[len(out)-1].Price.Equal(order.Price) {
			total = total.Add(order.RemainingQuantity)
			out[len(out)-1].Quantity = out[len(out)-1].Quantity.Add(order.RemainingQuantity)
			out[len(out)-1].Total = total
			continue
		}

		if len(out) == levels {
			break
		}

		total = total.Add(order.RemainingQuantity)
		out = append(out, PriceLevel{
			Price:    order.Price,
			Quantity: order.RemainingQuantity,
			Total:    total,
		})
	}

	return out
}
