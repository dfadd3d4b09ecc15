package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/exchange"
	"walletexchange/src/fees"
	"walletexchange/src/ledger"
	"walletexchange/src/locks"
	"walletexchange/src/model"
	"walletexchange/src/repository"
	"walletexchange/src/settlement"
)

// Engine matches incoming taker orders against resting liquidity using
// price-time priority. All matching for one currency pair is serialized
// behind the pair's lock key, so the same resting quantity can never be
// consumed twice and FIFO ordering is never violated.
type Engine struct {
	db       *gorm.DB
	keys     *locks.Manager
	orders   *repository.OrderRepository
	ledger   *ledger.Ledger
	recorder *settlement.Recorder
	feeSvc   *fees.Service
}

// NewEngine builds a matching engine on the main database.
func NewEngine(
	keys *locks.Manager,
	l *ledger.Ledger,
	recorder *settlement.Recorder,
	feeSvc *fees.Service,
) *Engine {
	return &Engine{
		db:       database.MainDB,
		keys:     keys,
		orders:   repository.NewOrderRepository(),
		ledger:   l,
		recorder: recorder,
		feeSvc:   feeSvc,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests.
func (e *Engine) WithDB(db *gorm.DB) *Engine {
	return &Engine{
		db:       db,
		keys:     e.keys,
		orders:   e.orders.WithDB(db),
		ledger:   e.ledger.WithDB(db),
		recorder: e.recorder,
		feeSvc:   e.feeSvc,
	}
}

// MatchIncoming runs the matching loop for a freshly inserted limit
// taker: repeatedly take the best-priced crossing maker and fill
// min(taker remaining, maker remaining) at the maker's price, until the
// taker is exhausted or nothing crosses. Acquires the pair lock.
func (e *Engine) MatchIncoming(ctx context.Context, orderID uint) error {
	taker, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if taker == nil {
		return fmt.Errorf("%w: order %d", exchange.ErrNotFound, orderID)
	}

	unlock := e.keys.Lock(locks.PairKey(taker.BaseCurrency, taker.QuoteCurrency))
	defer unlock()

	for {
		taker, err = e.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if taker.IsTerminal() || !taker.RemainingQuantity.IsPositive() {
			return nil
		}

		maker, err := e.orders.FindBestMaker(
			ctx,
			taker.BaseCurrency,
			taker.QuoteCurrency,
			oppositeSide(taker.Side),
			&taker.Price,
		)
		if err != nil {
			return err
		}
		if maker == nil {
			return nil
		}

		qty := decimal.Min(taker.RemainingQuantity, maker.RemainingQuantity)
		if err := e.ExecuteFill(ctx, taker.ID, maker.ID, qty); err != nil {
			if errors.Is(err, exchange.ErrDuplicateSettlement) {
				continue
			}
			return err
		}
	}
}

// PlannedFill is one step of a market order execution plan.
type PlannedFill struct {
	MakerID     uint
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	QuoteAmount decimal.Decimal
}

// MarketPlan is the dry-run result for a market taker, computed while
// holding the pair lock so the book cannot shift before execution.
type MarketPlan struct {
	Fills        []PlannedFill
	FillQuantity decimal.Decimal
	QuoteTotal   decimal.Decimal
	TopOfBook    decimal.Decimal
	AveragePrice decimal.Decimal
	UnmatchedQty decimal.Decimal
}

// PlanMarket walks the opposite side of the book best price first and
// plans fills for a market taker. The caller must hold the pair lock.
// Fails with ErrLiquidityUnavailable when nothing rests, and with
// ErrSlippageExceeded when the cumulative average execution price would
// deviate from top-of-book beyond slippageLimit (a fraction, e.g. 0.01).
func (e *Engine) PlanMarket(
	ctx context.Context,
	side string,
	baseCurrency string,
	quoteCurrency string,
	quantity decimal.Decimal,
	slippageLimit *decimal.Decimal,
) (*MarketPlan, error) {

	makers, err := e.orders.FindRestingByPair(ctx, baseCurrency, quoteCurrency, oppositeSide(side))
	if err != nil {
		return nil, err
	}
	if len(makers) == 0 {
		return nil, fmt.Errorf("%w: no resting %s orders for %s/%s",
			exchange.ErrLiquidityUnavailable, oppositeSide(side), baseCurrency, quoteCurrency)
	}

	plan := &MarketPlan{
		FillQuantity: decimal.Zero,
		QuoteTotal:   decimal.Zero,
		TopOfBook:    makers[0].Price,
	}

	remaining := quantity
	notional := decimal.Zero

	for _, maker := range makers {
		if !remaining.IsPositive() {
			break
		}

		qty := decimal.Min(remaining, maker.RemainingQuantity)
		quoteAmount := fees.RoundMoney(maker.Price.Mul(qty))

		plan.Fills = append(plan.Fills, PlannedFill{
			MakerID:     maker.ID,
			Price:       maker.Price,
			Quantity:    qty,
			QuoteAmount: quoteAmount,
		})

		plan.FillQuantity = plan.FillQuantity.Add(qty)
		plan.QuoteTotal = plan.QuoteTotal.Add(quoteAmount)
		notional = notional.Add(maker.Price.Mul(qty))
		remaining = remaining.Sub(qty)
	}

	plan.UnmatchedQty = remaining
	plan.AveragePrice = fees.RoundRate(notional.Div(plan.FillQuantity))

	if slippageLimit != nil {
		deviation := plan.AveragePrice.Sub(plan.TopOfBook).Abs().Div(plan.TopOfBook)
		if deviation.GreaterThan(*slippageLimit) {
			logger.WithFields(map[string]interface{}{
				"component": "matching",
				"op":        "PlanMarket",
				"pair":      baseCurrency + "/" + quoteCurrency,
				"deviation": deviation,
				"limit":     *slippageLimit,
			}).Warn("Market order rejected, slippage limit breached")

			return nil, fmt.Errorf("%w: average price %s deviates %s from top of book %s",
				exchange.ErrSlippageExceeded, plan.AveragePrice, deviation, plan.TopOfBook)
		}
	}

	return plan, nil
}

// ExecutePlan applies each planned fill. The caller must still hold the
// pair lock taken before PlanMarket.
func (e *Engine) ExecutePlan(ctx context.Context, takerID uint, plan *MarketPlan) error {
	for _, fill := range plan.Fills {
		err := e.ExecuteFill(ctx, takerID, fill.MakerID, fill.Quantity)
		if err != nil && !errors.Is(err, exchange.ErrDuplicateSettlement) {
			return err
		}
	}
	return nil
}

// ExecuteFill settles one match between taker and maker as a single
// atomic unit: trade row, ledger legs, audit rows, both orders' fill
// counters and both reservations all commit or none do.
func (e *Engine) ExecuteFill(
	ctx context.Context,
	takerID uint,
	makerID uint,
	quantity decimal.Decimal,
) error {

	return e.db.Transaction(func(tx *gorm.DB) error {
		orders := e.orders.WithDB(tx)

		taker, err := orders.FindForUpdate(ctx, takerID)
		if err != nil {
			return err
		}
		maker, err := orders.FindForUpdate(ctx, makerID)
		if err != nil {
			return err
		}
		if taker == nil || maker == nil {
			return fmt.Errorf("%w: fill references missing order", exchange.ErrNotFound)
		}
		if taker.IsTerminal() || maker.IsTerminal() {
			return fmt.Errorf("%w: fill against terminal order", exchange.ErrInvalidStateTransition)
		}

		qty := decimal.Min(quantity, decimal.Min(taker.RemainingQuantity, maker.RemainingQuantity))
		if !qty.IsPositive() {
			return fmt.Errorf("%w: nothing left to fill", exchange.ErrInvalidStateTransition)
		}

		// Maker price authority: execution always happens at the
		// resting order's price.
		price := maker.Price

		buyOrder, sellOrder := taker, maker
		if taker.Side == model.OrderSideSell {
			buyOrder, sellOrder = maker, taker
		}

		buyReservation, err := orders.FindReservationForUpdate(ctx, buyOrder.ID)
		if err != nil {
			return err
		}
		sellReservation, err := orders.FindReservationForUpdate(ctx, sellOrder.ID)
		if err != nil {
			return err
		}
		if buyReservation == nil || sellReservation == nil {
			return fmt.Errorf("%w: fill references order without reservation", exchange.ErrNotFound)
		}

		// Half-up rounding of each fill can sum past the once-rounded
		// quote hold; the last slice of the hold absorbs the remainder.
		quoteAmount := fees.RoundMoney(price.Mul(qty))
		if quoteAmount.GreaterThan(buyReservation.Outstanding()) {
			quoteAmount = buyReservation.Outstanding()
		}
		if !quoteAmount.IsPositive() {
			return fmt.Errorf("%w: buy order %d has no quote hold left",
				exchange.ErrInvalidStateTransition, buyOrder.ID)
		}

		feeSvc := e.feeSvc.WithDB(tx)
		buyerFee, err := feeSvc.BuyerFee(ctx, taker.BaseCurrency, qty)
		if err != nil {
			return err
		}
		sellerFee, err := feeSvc.SellerFee(ctx, taker.QuoteCurrency, quoteAmount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		trade := &model.Trade{
			Reference:     settlement.Reference(buyOrder.ID, sellOrder.ID, buyOrder.FilledQuantity.String()),
			BuyOrderID:    buyOrder.ID,
			SellOrderID:   sellOrder.ID,
			BuyerID:       buyOrder.UserID,
			SellerID:      sellOrder.UserID,
			BaseCurrency:  taker.BaseCurrency,
			QuoteCurrency: taker.QuoteCurrency,
			Price:         price,
			Quantity:      qty,
			BaseAmount:    qty,
			QuoteAmount:   quoteAmount,
			BuyerFee:      buyerFee,
			SellerFee:     sellerFee,
			ExecutedAt:    now,
		}

		if err := e.recorder.WithDB(tx).Record(ctx, trade); err != nil {
			return err
		}

		applyFill(buyOrder, price, qty, now)
		applyFill(sellOrder, price, qty, now)

		if err := orders.Save(ctx, buyOrder); err != nil {
			return err
		}
		if err := orders.Save(ctx, sellOrder); err != nil {
			return err
		}

		if err := e.consumeReservation(ctx, tx, buyOrder, buyReservation, quoteAmount); err != nil {
			return err
		}
		if err := e.consumeReservation(ctx, tx, sellOrder, sellReservation, qty); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"component":  "matching",
			"op":         "ExecuteFill",
			"buy_order":  buyOrder.ID,
			"sell_order": sellOrder.ID,
			"price":      price,
			"qty":        qty,
		}).Info("Fill executed")

		return nil
	})
}

// consumeReservation marks the matched portion of an order's reservation
// as no longer held and, once the order is filled, returns any leftover
// hold (price improvement on buys) to the available balance. The
// reservation row must already be locked by the surrounding transaction.
func (e *Engine) consumeReservation(
	ctx context.Context,
	tx *gorm.DB,
	order *model.Order,
	reservation *model.FundReservation,
	consumed decimal.Decimal,
) error {

	if consumed.GreaterThan(reservation.Outstanding()) {
		return fmt.Errorf("%w: consuming %s exceeds outstanding hold %s on order %d",
			exchange.ErrInvalidStateTransition, consumed, reservation.Outstanding(), order.ID)
	}

	orders := e.orders.WithDB(tx)

	reservation.ReleasedAmount = reservation.ReleasedAmount.Add(consumed)
	if reservation.ReleasedAmount.Equal(reservation.ReservedAmount) {
		reservation.Status = model.ReservationStatusReleased
	}

	if err := orders.SaveReservation(ctx, reservation); err != nil {
		return err
	}

	// A filled buy order that executed below its limit still holds the
	// price difference; hand it back now that nothing can consume it.
	if order.Status == model.OrderStatusFilled && reservation.Outstanding().IsPositive() {
		return e.ledger.WithDB(tx).Release(ctx, reservation, reservation.Outstanding())
	}

	return nil
}

func applyFill(order *model.Order, price, qty decimal.Decimal, now time.Time) {
	prevNotional := order.AverageFillPrice.Mul(order.FilledQuantity)

	order.FilledQuantity = order.FilledQuantity.Add(qty)
	order.RemainingQuantity = order.Quantity.Sub(order.FilledQuantity)
	order.AverageFillPrice = fees.RoundRate(
		prevNotional.Add(price.Mul(qty)).Div(order.FilledQuantity),
	)

	if order.RemainingQuantity.IsZero() {
		order.Status = model.OrderStatusFilled
		filledAt := now
		order.FilledAt = &filledAt
	} else {
		order.Status = model.OrderStatusPartiallyFilled
	}
}

func oppositeSide(side string) string {
	if side == model.OrderSideBuy {
		return model.OrderSideSell
	}
	return model.OrderSideBuy
}
