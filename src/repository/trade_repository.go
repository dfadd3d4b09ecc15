package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// TradeRepository handles the append-only trade log.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main read/write database.
func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create appends a trade row. The unique index on reference turns a
// settlement replay into gorm.ErrDuplicatedKey.
func (r *TradeRepository) Create(
	ctx context.Context,
	trade *model.Trade,
) error {

	err := r.db.WithContext(ctx).Create(trade).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "Create",
			"reference": trade.Reference,
		}).WithError(err).Error("Failed to create trade")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "Create",
		"trade_id": trade.ID,
		"price":    trade.Price,
		"qty":      trade.Quantity,
	}).Info("Trade recorded")

	return nil
}

// FindByReference fetches a trade by its idempotency reference.
// Returns (nil, nil) if the trade is not found.
func (r *TradeRepository) FindByReference(
	ctx context.Context,
	reference string,
) (*model.Trade, error) {

	var trade model.Trade

	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&trade).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "TradeRepository",
			"op":        "FindByReference",
			"reference": reference,
		}).WithError(err).Error("Failed to fetch trade by reference")

		return nil, err
	}

	return &trade, nil
}

// FindByOrderID lists trades in which the order took part, oldest first.
func (r *TradeRepository) FindByOrderID(
	ctx context.Context,
	orderID uint,
) ([]model.Trade, error) {

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("buy_order_id = ? OR sell_order_id = ?", orderID, orderID).
		Order("id ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "FindByOrderID",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch trades for order")

		return nil, err
	}

	return trades, nil
}

// PairVolume aggregates the executed volume and notional of a pair since
// the given cutoff. VWAP = notional / volume when volume > 0.
type PairVolume struct {
	Volume   decimal.Decimal
	Notional decimal.Decimal
}

// SumPairVolumeSince computes cumulative base volume and quote notional
// for trades of a pair executed after the cutoff.
func (r *TradeRepository) SumPairVolumeSince(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
	since time.Time,
) (*PairVolume, error) {

	var row struct {
		Volume   decimal.Decimal
		Notional decimal.Decimal
	}

	err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Select("COALESCE(SUM(quantity), 0) AS volume, COALESCE(SUM(quote_amount), 0) AS notional").
		Where("base_currency = ? AND quote_currency = ?", baseCurrency, quoteCurrency).
		Where("executed_at >= ?", since).
		Scan(&row).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "SumPairVolumeSince",
			"pair": baseCurrency + "/" + quoteCurrency,
		}).WithError(err).Error("Failed to aggregate pair volume")

		return nil, err
	}

	return &PairVolume{Volume: row.Volume, Notional: row.Notional}, nil
}
