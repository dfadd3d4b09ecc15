package pricing

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
)

var hundred = decimal.NewFromInt(100)

// Adjuster periodically retunes resting dynamic orders toward the
// pair's recent VWAP, inside the configured bounds. It takes the same
// pair lock as the matching engine before touching a price, so a price
// change can never race an in-flight match.
type Adjuster struct {
	db       *gorm.DB
	keys     *locks.Manager
	orders   *repository.OrderRepository
	trades   *repository.TradeRepository
	updates  *repository.PriceUpdateRepository
	settings *repository.PricingSettingRepository
	ledger   *ledger.Ledger
}

// NewAdjuster builds the adjuster on the main database.
func NewAdjuster(keys *locks.Manager, l *ledger.Ledger) *Adjuster {
	return &Adjuster{
		db:       database.MainDB,
		keys:     keys,
		orders:   repository.NewOrderRepository(),
		trades:   repository.NewTradeRepository(),
		updates:  repository.NewPriceUpdateRepository(),
		settings: repository.NewPricingSettingRepository(),
		ledger:   l,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests.
func (a *Adjuster) WithDB(db *gorm.DB) *Adjuster {
	return &Adjuster{
		db:       db,
		keys:     a.keys,
		orders:   a.orders.WithDB(db),
		trades:   a.trades.WithDB(db),
		updates:  a.updates.WithDB(db),
		settings: a.settings.WithDB(db),
		ledger:   a.ledger.WithDB(db),
	}
}

// EffectiveConfig re-reads the settings store. Exposed so the loop can
// pick up a retuned update interval between cycles.
func (a *Adjuster) EffectiveConfig(ctx context.Context) (*EffectiveConfig, error) {
	return LoadEffectiveConfig(ctx, a.settings)
}

// RunCycle executes one adjustment pass over every pair that currently
// has resting dynamic orders. Configuration is read fresh at cycle
// start; per-pair failures are logged and do not stop the cycle.
func (a *Adjuster) RunCycle(ctx context.Context) error {
	cfg, err := a.EffectiveConfig(ctx)
	if err != nil {
		return err
	}

	pairs, err := a.orders.FindPairsWithDynamicOrders(ctx)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if err := a.adjustPair(ctx, cfg, pair.BaseCurrency, pair.QuoteCurrency); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "pricing",
				"op":        "RunCycle",
				"pair":      pair.BaseCurrency + "/" + pair.QuoteCurrency,
			}).WithError(err).Error("Pair adjustment failed, continuing cycle")
		}
	}

	return nil
}

func (a *Adjuster) adjustPair(
	ctx context.Context,
	cfg *EffectiveConfig,
	baseCurrency string,
	quoteCurrency string,
) error {

	unlock := a.keys.Lock(locks.PairKey(baseCurrency, quoteCurrency))
	defer unlock()

	since := time.Now().UTC().Add(-cfg.VwapWindow)
	volume, err := a.trades.SumPairVolumeSince(ctx, baseCurrency, quoteCurrency, since)
	if err != nil {
		return err
	}

	// Insufficient signal is not zero signal: below the volume floor
	// the pair is skipped entirely and no price moves.
	if volume.Volume.LessThan(cfg.MinVolumeForVwap) {
		logger.WithFields(map[string]interface{}{
			"component":  "pricing",
			"op":         "adjustPair",
			"pair":       baseCurrency + "/" + quoteCurrency,
			"volume":     volume.Volume,
			"min_volume": cfg.MinVolumeForVwap,
		}).WithError(exchange.ErrStaleSignal).Info("Skipping pair, trade volume below VWAP floor")

		return nil
	}

	vwap := fees.RoundRate(volume.Notional.Div(volume.Volume))

	orders, err := a.orders.FindDynamicByPair(ctx, baseCurrency, quoteCurrency)
	if err != nil {
		return err
	}

	for _, order := range orders {
		if err := a.adjustOrder(ctx, cfg, order.ID, vwap, volume.Volume); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "pricing",
				"op":        "adjustPair",
				"order_id":  order.ID,
			}).WithError(err).Error("Order adjustment failed, continuing pair")
		}
	}

	return nil
}

// adjustOrder applies one bounded price update to a single order inside
// its own transaction.
func (a *Adjuster) adjustOrder(
	ctx context.Context,
	cfg *EffectiveConfig,
	orderID uint,
	vwap decimal.Decimal,
	volume decimal.Decimal,
) error {

	return a.db.Transaction(func(tx *gorm.DB) error {
		orders := a.orders.WithDB(tx)

		order, err := orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil || order.IsTerminal() || !order.DynamicPricingEnabled {
			return nil
		}

		target, reason, apply := computeTarget(cfg, order, vwap)
		if !apply {
			return nil
		}

		// A buy maker's quote hold was sized at the old price; raising
		// the price means the next fill settles for more than is held.
		// Grow the hold first, or leave the price where it is.
		if order.Side == model.OrderSideBuy && target.GreaterThan(order.Price) {
			skipped, err := a.topUpBuyHold(ctx, tx, order, target)
			if err != nil {
				return err
			}
			if skipped {
				return nil
			}
		}

		finalChange := fees.RoundRate(target.Sub(order.Price).Div(order.Price).Mul(hundred))

		update := &model.PriceUpdate{
			OrderID:          order.ID,
			UserID:           order.UserID,
			OldPrice:         order.Price,
			NewPrice:         target,
			ChangePercentage: finalChange,
			Reason:           reason,
			VwapReference:    vwap,
			VolumeReference:  volume,
		}
		if err := a.updates.WithDB(tx).Create(ctx, update); err != nil {
			return err
		}

		now := time.Now().UTC()
		order.Price = target
		order.PriceUpdateCount++
		order.LastPriceUpdate = &now

		if err := orders.Save(ctx, order); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"component": "pricing",
			"op":        "adjustOrder",
			"order_id":  order.ID,
			"old_price": update.OldPrice,
			"new_price": update.NewPrice,
			"reason":    reason,
		}).Info("Dynamic price updated")

		return nil
	})
}

// topUpBuyHold reserves the additional quote needed to keep a buy
// order's reservation covering its remaining quantity at the new price.
// Returns skipped=true when the buyer's available balance cannot fund
// the larger hold, in which case the price update must not happen.
func (a *Adjuster) topUpBuyHold(
	ctx context.Context,
	tx *gorm.DB,
	order *model.Order,
	target decimal.Decimal,
) (skipped bool, err error) {

	orders := a.orders.WithDB(tx)

	reservation, err := orders.FindReservationForUpdate(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if reservation == nil {
		return false, fmt.Errorf("%w: reservation for order %d", exchange.ErrNotFound, order.ID)
	}

	required := fees.RoundMoney(target.Mul(order.RemainingQuantity))
	topUp := required.Sub(reservation.Outstanding())
	if !topUp.IsPositive() {
		return false, nil
	}

	if err := a.ledger.WithDB(tx).Reserve(ctx, order.UserID, order.QuoteCurrency, topUp); err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			logger.WithFields(map[string]interface{}{
				"component": "pricing",
				"op":        "adjustOrder",
				"order_id":  order.ID,
				"top_up":    topUp,
			}).Info("Skipping price raise, buyer cannot fund the larger hold")

			return true, nil
		}
		return false, err
	}

	reservation.ReservedAmount = reservation.ReservedAmount.Add(topUp)
	return false, orders.SaveReservation(ctx, reservation)
}

// computeTarget derives the bounded competitive price for one order
// from the pair's VWAP. Sell orders undercut the VWAP, buy orders
// overbid it, both by the configured competitive margin; the result is
// clamped to the order's price bounds, dropped when below the change
// threshold, and capped so one cycle can never shock the price.
// apply is false when the order's price should not move.
func computeTarget(
	cfg *EffectiveConfig,
	order *model.Order,
	vwap decimal.Decimal,
) (target decimal.Decimal, reason string, apply bool) {

	margin := vwap.Mul(cfg.CompetitiveMarginPct).Div(hundred)
	target = vwap.Add(margin)
	if order.Side == model.OrderSideSell {
		target = vwap.Sub(margin)
	}

	reason = model.PriceUpdateReasonVwap
	if order.MaxPriceBound.IsPositive() {
		if target.LessThan(order.MinPriceBound) {
			target = order.MinPriceBound
			reason = model.PriceUpdateReasonBoundsAdjustment
		} else if target.GreaterThan(order.MaxPriceBound) {
			target = order.MaxPriceBound
			reason = model.PriceUpdateReasonBoundsAdjustment
		}
	}

	changePct := target.Sub(order.Price).Div(order.Price).Mul(hundred)
	if changePct.Abs().LessThan(cfg.MinChangeThreshold) {
		return decimal.Zero, "", false
	}

	if changePct.Abs().GreaterThan(cfg.MaxChangePerUpdate) {
		step := order.Price.Mul(cfg.MaxChangePerUpdate).Div(hundred)
		if changePct.IsNegative() {
			target = order.Price.Sub(step)
		} else {
			target = order.Price.Add(step)
		}
	}

	target = fees.RoundRate(target)
	if target.Equal(order.Price) {
		return decimal.Zero, "", false
	}

	return target, reason, true
}

// DisableForOrder turns dynamic pricing off for one order, recording a
// user_disabled audit row. Calling it on an order that already has
// dynamic pricing off is an idempotent no-op.
func (a *Adjuster) DisableForOrder(
	ctx context.Context,
	user *model.User,
	orderID uint,
) (*model.Order, error) {

	order, err := a.orders.FindByIDAndUser(ctx, orderID, user.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", exchange.ErrNotFound, orderID)
	}
	if !order.DynamicPricingEnabled {
		return order, nil
	}

	unlock := a.keys.Lock(locks.PairKey(order.BaseCurrency, order.QuoteCurrency))
	defer unlock()

	err = a.db.Transaction(func(tx *gorm.DB) error {
		orders := a.orders.WithDB(tx)

		locked, err := orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked == nil || !locked.DynamicPricingEnabled {
			return nil
		}

		update := &model.PriceUpdate{
			OrderID:          locked.ID,
			UserID:           locked.UserID,
			OldPrice:         locked.Price,
			NewPrice:         locked.Price,
			ChangePercentage: decimal.Zero,
			Reason:           model.PriceUpdateReasonUserDisabled,
		}
		if err := a.updates.WithDB(tx).Create(ctx, update); err != nil {
			return err
		}

		locked.DynamicPricingEnabled = false
		return orders.Save(ctx, locked)
	})
	if err != nil {
		return nil, err
	}

	return a.orders.FindByID(ctx, orderID)
}
