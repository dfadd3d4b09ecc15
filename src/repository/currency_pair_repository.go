package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// CurrencyPairRepository handles the registry of tradable pairs.
type CurrencyPairRepository struct {
	db *gorm.DB
}

// NewCurrencyPairRepository creates a new repository instance using the main read/write database.
func NewCurrencyPairRepository() *CurrencyPairRepository {
	logger.WithField("component", "CurrencyPairRepository").
		Info("Creating new CurrencyPairRepository with MainDB")

	return &CurrencyPairRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *CurrencyPairRepository) WithDB(db *gorm.DB) *CurrencyPairRepository {
	return &CurrencyPairRepository{db: db}
}

// FindActive fetches an active pair by its currencies.
// Returns (nil, nil) if the pair is unknown or inactive.
func (r *CurrencyPairRepository) FindActive(
	ctx context.Context,
	baseCurrency string,
	quoteCurrency string,
) (*model.CurrencyPair, error) {

	var pair model.CurrencyPair

	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND active = ?", baseCurrency, quoteCurrency, true).
		First(&pair).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "CurrencyPairRepository",
			"op":   "FindActive",
			"pair": baseCurrency + "/" + quoteCurrency,
		}).WithError(err).Error("Failed to fetch currency pair")

		return nil, err
	}

	return &pair, nil
}

// Create registers a tradable pair.
func (r *CurrencyPairRepository) Create(
	ctx context.Context,
	pair *model.CurrencyPair,
) error {

	err := r.db.WithContext(ctx).Create(pair).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CurrencyPairRepository",
			"op":   "Create",
			"pair": pair.Symbol(),
		}).WithError(err).Error("Failed to create currency pair")

		return err
	}

	return nil
}
