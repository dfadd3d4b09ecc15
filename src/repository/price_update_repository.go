package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// PriceUpdateRepository handles the append-only price update audit trail.
type PriceUpdateRepository struct {
	db *gorm.DB
}

// NewPriceUpdateRepository creates a new repository instance using the main read/write database.
func NewPriceUpdateRepository() *PriceUpdateRepository {
	logger.WithField("component", "PriceUpdateRepository").
		Info("Creating new PriceUpdateRepository with MainDB")

	return &PriceUpdateRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PriceUpdateRepository) WithDB(db *gorm.DB) *PriceUpdateRepository {
	return &PriceUpdateRepository{db: db}
}

// Create appends one price update row.
func (r *PriceUpdateRepository) Create(
	ctx context.Context,
	update *model.PriceUpdate,
) error {

	err := r.db.WithContext(ctx).Create(update).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PriceUpdateRepository",
			"op":       "Create",
			"order_id": update.OrderID,
			"reason":   update.Reason,
		}).WithError(err).Error("Failed to create price update")

		return err
	}

	return nil
}

// FindByOrderID lists price updates for an order newest first, paginated.
func (r *PriceUpdateRepository) FindByOrderID(
	ctx context.Context,
	orderID uint,
	limit int,
	offset int,
) ([]model.PriceUpdate, error) {

	if limit <= 0 {
		limit = 20
	}

	var updates []model.PriceUpdate

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&updates).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PriceUpdateRepository",
			"op":       "FindByOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch price updates")

		return nil, err
	}

	return updates, nil
}

// PriceSummary aggregates the price history of one order.
type PriceSummary struct {
	MinPrice decimal.Decimal `json:"min_price"`
	MaxPrice decimal.Decimal `json:"max_price"`
}

// Summarize returns the min/max prices ever recorded for the order.
// Returns (nil, nil) when the order has no price history.
func (r *PriceUpdateRepository) Summarize(
	ctx context.Context,
	orderID uint,
) (*PriceSummary, error) {

	var row struct {
		MinPrice decimal.Decimal
		MaxPrice decimal.Decimal
		Count    int64
	}

	err := r.db.WithContext(ctx).
		Model(&model.PriceUpdate{}).
		Select("COALESCE(MIN(new_price), 0) AS min_price, COALESCE(MAX(new_price), 0) AS max_price, COUNT(*) AS count").
		Where("order_id = ?", orderID).
		Scan(&row).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "PriceUpdateRepository",
			"op":       "Summarize",
			"order_id": orderID,
		}).WithError(err).Error("Failed to summarize price updates")

		return nil, err
	}

	if row.Count == 0 {
		return nil, nil
	}

	return &PriceSummary{MinPrice: row.MinPrice, MaxPrice: row.MaxPrice}, nil
}
