package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// OrderRepository handles read/write operations for orders and their
// fund reservations.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ---------------------------------------------------
// Order methods
// ---------------------------------------------------

// Create inserts a new order into the database.
// The given order will be updated with the generated ID and timestamps.
func (r *OrderRepository) Create(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "Create",
		"side": order.Side,
		"type": order.Type,
		"pair": order.Pair(),
		"qty":  order.Quantity,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByIDAndUser fetches an order owned by the given user.
// Returns (nil, nil) if the order is not found or owned by someone else.
func (r *OrderRepository) FindByIDAndUser(
	ctx context.Context,
	id uint,
	userID uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "FindByIDAndUser",
			"id":      id,
			"user_id": userID,
		}).WithError(err).Error("Failed to fetch order by ID and user")

		return nil, err
	}

	return &order, nil
}

// FindForUpdate loads an order with a row lock. Must be called inside a
// transaction; matching and cancellation both go through here so a
// cancel racing a fill always observes the committed quantities.
func (r *OrderRepository) FindForUpdate(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindForUpdate",
			"id":   id,
		}).WithError(err).Error("Failed to lock order row")

		return nil, err
	}

	return &order, nil
}

// Save persists the mutable fields of an order after a fill, a cancel or
// a dynamic price change.
func (r *OrderRepository) Save(
	ctx context.Context,
	order *model.Order,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"remaining_quantity":      order.RemainingQuantity,
			"filled_quantity":         order.FilledQuantity,
			"average_fill_price":      order.AverageFillPrice,
			"status":                  order.Status,
			"price":                   order.Price,
			"dynamic_pricing_enabled": order.DynamicPricingEnabled,
			"price_update_count":      order.PriceUpdateCount,
			"last_price_update":       order.LastPriceUpdate,
			"filled_at":               order.FilledAt,
			"cancelled_at":            order.CancelledAt,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Save",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to save order")

		return err
	}

	return nil
}

// FindBestMaker returns the best-priced resting limit order on the given
// side of a pair, FIFO on ties. priceLimit restricts crossing for limit
// takers (maximum for sell makers, minimum for buy makers); pass nil for
// market takers. Returns (nil, nil) when no maker qualifies.
func (r *OrderRepository) FindBestMaker(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
	makerSide string,
	priceLimit *decimal.Decimal,
) (*model.Order, error) {

	q := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ?", baseCurrency, quoteCurrency).
		Where("side = ? AND type = ?", makerSide, model.OrderTypeLimit).
		Where("status IN ?", []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled})

	if makerSide == model.OrderSideSell {
		if priceLimit != nil {
			q = q.Where("price <= ?", *priceLimit)
		}
		q = q.Order("price ASC, created_at ASC, id ASC")
	} else {
		if priceLimit != nil {
			q = q.Where("price >= ?", *priceLimit)
		}
		q = q.Order("price DESC, created_at ASC, id ASC")
	}

	var order model.Order
	if err := q.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindBestMaker",
			"pair": baseCurrency + "/" + quoteCurrency,
			"side": makerSide,
		}).WithError(err).Error("Failed to fetch best maker")

		return nil, err
	}

	return &order, nil
}

// FindRestingByPair returns all resting limit orders on one side of a
// pair, best price first, FIFO on ties. Used for market-order fill
// planning and depth snapshots.
func (r *OrderRepository) FindRestingByPair(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
	side string,
) ([]model.Order, error) {

	q := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ?", baseCurrency, quoteCurrency).
		Where("side = ? AND type = ?", side, model.OrderTypeLimit).
		Where("status IN ?", []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled})

	if side == model.OrderSideSell {
		q = q.Order("price ASC, created_at ASC, id ASC")
	} else {
		q = q.Order("price DESC, created_at ASC, id ASC")
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindRestingByPair",
			"pair": baseCurrency + "/" + quoteCurrency,
			"side": side,
		}).WithError(err).Error("Failed to fetch resting orders")

		return nil, err
	}

	return orders, nil
}

// OrderSearchOptions filters order history queries.
type OrderSearchOptions struct {
	UserID        uint
	Status        *string
	BaseCurrency  *string
	QuoteCurrency *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Search lists a user's orders newest first with optional filters and pagination.
func (r *OrderRepository) Search(
	ctx context.Context,
	options OrderSearchOptions,
) ([]model.Order, error) {

	q := r.db.WithContext(ctx).Where("user_id = ?", options.UserID)

	if options.Status != nil {
		q = q.Where("status = ?", *options.Status)
	}
	if options.BaseCurrency != nil {
		q = q.Where("base_currency = ?", *options.BaseCurrency)
	}
	if options.QuoteCurrency != nil {
		q = q.Where("quote_currency = ?", *options.QuoteCurrency)
	}
	if options.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *options.CreatedBefore)
	}

	q = q.Order("created_at DESC, id DESC")

	if options.Limit > 0 {
		q = q.Limit(options.Limit)
	}
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	var orders []model.Order
	if err := q.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "OrderRepository",
			"op":      "Search",
			"user_id": options.UserID,
		}).WithError(err).Error("Failed to search orders")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "Search",
		"user_id":     options.UserID,
		"rows_return": len(orders),
	}).Debug("Orders fetched")

	return orders, nil
}

// FindPairsWithDynamicOrders returns the distinct currency pairs that
// currently have resting orders opted into dynamic pricing.
func (r *OrderRepository) FindPairsWithDynamicOrders(
	ctx context.Context,
) ([]model.CurrencyPair, error) {

	var pairs []model.CurrencyPair

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Distinct("base_currency", "quote_currency").
		Where("dynamic_pricing_enabled = ?", true).
		Where("status IN ?", []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled}).
		Find(&pairs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindPairsWithDynamicOrders",
		}).WithError(err).Error("Failed to list pairs with dynamic orders")

		return nil, err
	}

	return pairs, nil
}

// FindDynamicByPair returns the resting orders of one pair that are
// opted into dynamic pricing, oldest first.
func (r *OrderRepository) FindDynamicByPair(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ?", baseCurrency, quoteCurrency).
		Where("dynamic_pricing_enabled = ?", true).
		Where("status IN ?", []string{model.OrderStatusPending, model.OrderStatusPartiallyFilled}).
		Order("created_at ASC, id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindDynamicByPair",
			"pair": baseCurrency + "/" + quoteCurrency,
		}).WithError(err).Error("Failed to fetch dynamic orders")

		return nil, err
	}

	return orders, nil
}

// ---------------------------------------------------
// FundReservation methods
// ---------------------------------------------------

// CreateReservation inserts the fund reservation backing an order.
func (r *OrderRepository) CreateReservation(
	ctx context.Context,
	reservation *model.FundReservation,
) error {

	err := r.db.WithContext(ctx).Create(reservation).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "CreateReservation",
			"order_id": reservation.OrderID,
		}).WithError(err).Error("Failed to create fund reservation")

		return err
	}

	return nil
}

// FindReservationForUpdate loads the reservation of an order with a row
// lock. Must be called inside a transaction.
// Returns (nil, nil) if no reservation exists.
func (r *OrderRepository) FindReservationForUpdate(
	ctx context.Context,
	orderID uint,
) (*model.FundReservation, error) {

	var reservation model.FundReservation

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&reservation).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindReservationForUpdate",
			"order_id": orderID,
		}).WithError(err).Error("Failed to lock fund reservation")

		return nil, err
	}

	return &reservation, nil
}

// SaveReservation persists the mutable amounts and status of a reservation.
func (r *OrderRepository) SaveReservation(
	ctx context.Context,
	reservation *model.FundReservation,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.FundReservation{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]interface{}{
			"reserved_amount": reservation.ReservedAmount,
			"released_amount": reservation.ReleasedAmount,
			"status":          reservation.Status,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "OrderRepository",
			"op":             "SaveReservation",
			"reservation_id": reservation.ID,
		}).WithError(err).Error("Failed to save fund reservation")

		return err
	}

	return nil
}
