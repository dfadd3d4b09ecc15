package book

import (
	"context"
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
	"walletexchange/src/matching"
	"walletexchange/src/model"
	"walletexchange/src/pricing"
	"walletexchange/src/repository"
)

// Service owns order placement, the order state machine and
// cancellation. It is the only entry point that creates orders, so every
// order is guaranteed to carry a successful fund reservation.
type Service struct {
	db           *gorm.DB
	keys         *locks.Manager
	orders       *repository.OrderRepository
	pairs        *repository.CurrencyPairRepository
	priceUpdates *repository.PriceUpdateRepository
	ledger       *ledger.Ledger
	engine       *matching.Engine
	settings     *repository.PricingSettingRepository
}

// NewService builds the order book service on the main database.
func NewService(
	keys *locks.Manager,
	l *ledger.Ledger,
	engine *matching.Engine,
) *Service {
	return &Service{
		db:           database.MainDB,
		keys:         keys,
		orders:       repository.NewOrderRepository(),
		pairs:        repository.NewCurrencyPairRepository(),
		priceUpdates: repository.NewPriceUpdateRepository(),
		ledger:       l,
		engine:       engine,
		settings:     repository.NewPricingSettingRepository(),
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests.
func (s *Service) WithDB(db *gorm.DB) *Service {
	return &Service{
		db:           db,
		keys:         s.keys,
		orders:       s.orders.WithDB(db),
		pairs:        s.pairs.WithDB(db),
		priceUpdates: s.priceUpdates.WithDB(db),
		ledger:       s.ledger.WithDB(db),
		engine:       s.engine.WithDB(db),
		settings:     s.settings.WithDB(db),
	}
}

// PlaceOrderRequest carries the caller's placement inputs. Decimals are
// already parsed; precision is validated here.
type PlaceOrderRequest struct {
	Side                  string
	Type                  string
	BaseCurrency          string
	QuoteCurrency         string
	Quantity              decimal.Decimal
	Price                 decimal.Decimal
	DynamicPricingEnabled bool
	SlippageLimit         *decimal.Decimal
}

// PlaceOrder validates, reserves and inserts an order, then resolves it
// against the book. Market orders block until fully settled or rejected;
// limit orders return once reserved, inserted and matched against
// whatever crosses right now.
func (s *Service) PlaceOrder(
	ctx context.Context,
	user *model.User,
	req PlaceOrderRequest,
) (*model.Order, error) {

	if err := s.validate(ctx, user, &req); err != nil {
		return nil, err
	}

	if req.Type == model.OrderTypeMarket {
		return s.placeMarket(ctx, user, req)
	}
	return s.placeLimit(ctx, user, req)
}

func (s *Service) validate(
	ctx context.Context,
	user *model.User,
	req *PlaceOrderRequest,
) error {

	if req.Side != model.OrderSideBuy && req.Side != model.OrderSideSell {
		return exchange.Validationf("unknown side %q", req.Side)
	}
	if req.Type != model.OrderTypeLimit && req.Type != model.OrderTypeMarket {
		return exchange.Validationf("unknown order type %q", req.Type)
	}
	if req.BaseCurrency == req.QuoteCurrency {
		return exchange.Validationf("base and quote currency must differ")
	}
	if !req.Quantity.IsPositive() {
		return exchange.Validationf("quantity must be positive, got %s", req.Quantity)
	}
	if !req.Quantity.Equal(req.Quantity.Round(fees.MoneyPlaces)) {
		return exchange.Validationf("quantity %s exceeds supported precision of %d decimals",
			req.Quantity, fees.MoneyPlaces)
	}

	pair, err := s.pairs.FindActive(ctx, req.BaseCurrency, req.QuoteCurrency)
	if err != nil {
		return err
	}
	if pair == nil {
		return exchange.Validationf("unsupported currency pair %s/%s",
			req.BaseCurrency, req.QuoteCurrency)
	}
	if req.Quantity.LessThan(pair.MinQuantity) {
		return exchange.Validationf("quantity %s below pair minimum %s",
			req.Quantity, pair.MinQuantity)
	}

	switch req.Type {
	case model.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return exchange.Validationf("limit orders require a positive price, got %s", req.Price)
		}
		if !req.Price.Equal(req.Price.Round(fees.RatePlaces)) {
			return exchange.Validationf("price %s exceeds supported precision of %d decimals",
				req.Price, fees.RatePlaces)
		}
		if req.DynamicPricingEnabled && !user.KYCCompleted {
			return exchange.Validationf("dynamic pricing requires completed KYC")
		}

	case model.OrderTypeMarket:
		if !req.Price.IsZero() {
			return exchange.Validationf("market orders must not carry a price")
		}
		if req.DynamicPricingEnabled {
			return exchange.Validationf("market orders never rest, dynamic pricing is not applicable")
		}
		if !user.KYCCompleted {
			return exchange.Validationf("market orders require completed KYC")
		}
		if req.SlippageLimit != nil && !req.SlippageLimit.IsPositive() {
			return exchange.Validationf("slippage limit must be positive, got %s", *req.SlippageLimit)
		}
	}

	return nil
}

func (s *Service) placeLimit(
	ctx context.Context,
	user *model.User,
	req PlaceOrderRequest,
) (*model.Order, error) {

	reserveAmount := req.Quantity
	reserveCurrency := req.BaseCurrency
	if req.Side == model.OrderSideBuy {
		reserveAmount = fees.RoundMoney(req.Price.Mul(req.Quantity))
		reserveCurrency = req.QuoteCurrency
	}

	order := &model.Order{
		UserID:                user.ID,
		Side:                  req.Side,
		Type:                  model.OrderTypeLimit,
		BaseCurrency:          req.BaseCurrency,
		QuoteCurrency:         req.QuoteCurrency,
		Quantity:              req.Quantity,
		RemainingQuantity:     req.Quantity,
		FilledQuantity:        decimal.Zero,
		Price:                 req.Price,
		AverageFillPrice:      decimal.Zero,
		Status:                model.OrderStatusPending,
		DynamicPricingEnabled: req.DynamicPricingEnabled,
		OriginalPrice:         req.Price,
	}

	if req.DynamicPricingEnabled {
		boundsPct, err := s.priceBoundsPercentage(ctx)
		if err != nil {
			return nil, err
		}
		margin := req.Price.Mul(boundsPct).Div(decimal.NewFromInt(100))
		order.MinPriceBound = fees.RoundRate(req.Price.Sub(margin))
		order.MaxPriceBound = fees.RoundRate(req.Price.Add(margin))
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.WithDB(tx).Reserve(ctx, user.ID, reserveCurrency, reserveAmount); err != nil {
			return err
		}

		orders := s.orders.WithDB(tx)
		if err := orders.Create(ctx, order); err != nil {
			return err
		}

		return orders.CreateReservation(ctx, &model.FundReservation{
			OrderID:        order.ID,
			UserID:         user.ID,
			Currency:       reserveCurrency,
			ReservedAmount: reserveAmount,
			ReleasedAmount: decimal.Zero,
			Status:         model.ReservationStatusActive,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.engine.MatchIncoming(ctx, order.ID); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "book",
			"op":        "placeLimit",
			"order_id":  order.ID,
		}).WithError(err).Error("Immediate matching failed, order rests as placed")
	}

	return s.orders.FindByID(ctx, order.ID)
}

func (s *Service) placeMarket(
	ctx context.Context,
	user *model.User,
	req PlaceOrderRequest,
) (*model.Order, error) {

	unlock := s.keys.Lock(locks.PairKey(req.BaseCurrency, req.QuoteCurrency))
	defer unlock()

	plan, err := s.engine.PlanMarket(
		ctx, req.Side, req.BaseCurrency, req.QuoteCurrency, req.Quantity, req.SlippageLimit,
	)
	if err != nil {
		return nil, err
	}

	reserveAmount := req.Quantity
	reserveCurrency := req.BaseCurrency
	if req.Side == model.OrderSideBuy {
		reserveAmount = plan.QuoteTotal
		reserveCurrency = req.QuoteCurrency
	}

	order := &model.Order{
		UserID:            user.ID,
		Side:              req.Side,
		Type:              model.OrderTypeMarket,
		BaseCurrency:      req.BaseCurrency,
		QuoteCurrency:     req.QuoteCurrency,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		FilledQuantity:    decimal.Zero,
		Price:             decimal.Zero,
		AverageFillPrice:  decimal.Zero,
		Status:            model.OrderStatusPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.WithDB(tx).Reserve(ctx, user.ID, reserveCurrency, reserveAmount); err != nil {
			return err
		}

		orders := s.orders.WithDB(tx)
		if err := orders.Create(ctx, order); err != nil {
			return err
		}

		return orders.CreateReservation(ctx, &model.FundReservation{
			OrderID:        order.ID,
			UserID:         user.ID,
			Currency:       reserveCurrency,
			ReservedAmount: reserveAmount,
			ReleasedAmount: decimal.Zero,
			Status:         model.ReservationStatusActive,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.engine.ExecutePlan(ctx, order.ID, plan); err != nil {
		// A half-executed market order must not stay on the book; hand
		// the unconsumed hold back before surfacing the failure.
		if cancelErr := s.cancelLocked(ctx, order.ID); cancelErr != nil {
			logger.WithFields(map[string]interface{}{
				"component": "book",
				"op":        "placeMarket",
				"order_id":  order.ID,
			}).WithError(cancelErr).Error("Failed to cancel market order after execution failure")
		}
		return nil, err
	}

	// Market orders never rest: whatever the plan could not cover is
	// cancelled right away and its hold handed back.
	if plan.UnmatchedQty.IsPositive() {
		if err := s.cancelLocked(ctx, order.ID); err != nil {
			return nil, err
		}
	}

	return s.orders.FindByID(ctx, order.ID)
}

// Cancel transitions a pending or partially filled order to cancelled
// and releases exactly the outstanding reservation. Racing a concurrent
// fill is safe: the row lock means a cancel observed after a match
// commits only releases the remainder that match left behind.
func (s *Service) Cancel(
	ctx context.Context,
	user *model.User,
	orderID uint,
) (*model.Order, error) {

	order, err := s.orders.FindByIDAndUser(ctx, orderID, user.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", exchange.ErrNotFound, orderID)
	}

	unlock := s.keys.Lock(locks.PairKey(order.BaseCurrency, order.QuoteCurrency))
	defer unlock()

	if err := s.cancelLocked(ctx, orderID); err != nil {
		return nil, err
	}

	return s.orders.FindByID(ctx, orderID)
}

// cancelLocked performs the cancel transition inside one transaction.
// The caller must hold the pair lock.
func (s *Service) cancelLocked(ctx context.Context, orderID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithDB(tx)

		order, err := orders.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: order %d", exchange.ErrNotFound, orderID)
		}
		if order.IsTerminal() {
			return fmt.Errorf("%w: order %d is already %s",
				exchange.ErrInvalidStateTransition, orderID, order.Status)
		}

		reservation, err := orders.FindReservationForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if reservation != nil && reservation.Outstanding().IsPositive() {
			if err := s.ledger.WithDB(tx).Release(ctx, reservation, reservation.Outstanding()); err != nil {
				return err
			}
		}

		now := nowUTC()
		order.Status = model.OrderStatusCancelled
		order.CancelledAt = &now

		if err := orders.Save(ctx, order); err != nil {
			return err
		}

		logger.WithFields(map[string]interface{}{
			"component": "book",
			"op":        "Cancel",
			"order_id":  orderID,
			"filled":    order.FilledQuantity,
		}).Info("Order cancelled")

		return nil
	})
}

// History lists a user's orders with the repository's filters.
func (s *Service) History(
	ctx context.Context,
	user *model.User,
	options repository.OrderSearchOptions,
) ([]model.Order, error) {
	options.UserID = user.ID
	return s.orders.Search(ctx, options)
}

// PriceHistoryResult is the paginated price trail of one order plus its
// aggregate summary.
type PriceHistoryResult struct {
	Updates []model.PriceUpdate `json:"updates"`
	Summary PriceHistorySummary `json:"summary"`
}

// PriceHistorySummary aggregates an order's dynamic price movement.
type PriceHistorySummary struct {
	MinPrice              decimal.Decimal `json:"min_price"`
	MaxPrice              decimal.Decimal `json:"max_price"`
	TotalChangePercentage decimal.Decimal `json:"total_change_percentage"`
}

// PriceHistory returns the order's price updates (newest first) and a
// min/max/total-change summary. Only the order's owner may read it.
func (s *Service) PriceHistory(
	ctx context.Context,
	user *model.User,
	orderID uint,
	limit int,
	offset int,
) (*PriceHistoryResult, error) {

	order, err := s.orders.FindByIDAndUser(ctx, orderID, user.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", exchange.ErrNotFound, orderID)
	}

	updates, err := s.priceUpdates.FindByOrderID(ctx, orderID, limit, offset)
	if err != nil {
		return nil, err
	}

	summary := PriceHistorySummary{
		MinPrice: order.Price,
		MaxPrice: order.Price,
	}

	agg, err := s.priceUpdates.Summarize(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if agg != nil {
		summary.MinPrice = agg.MinPrice
		summary.MaxPrice = agg.MaxPrice
	}

	if order.OriginalPrice.IsPositive() {
		summary.TotalChangePercentage = fees.RoundRate(
			order.Price.Sub(order.OriginalPrice).
				Div(order.OriginalPrice).
				Mul(decimal.NewFromInt(100)),
		)
	}

	return &PriceHistoryResult{Updates: updates, Summary: summary}, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *Service) priceBoundsPercentage(ctx context.Context) (decimal.Decimal, error) {
	settings, err := s.settings.LoadAll(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.SettingDecimal(settings, model.SettingPriceBoundsPercentage,
		pricing.DefaultPriceBoundsPercentage), nil
}
