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

// FeeScheduleRepository reads the fee percentage configuration.
type FeeScheduleRepository struct {
	db *gorm.DB
}

// NewFeeScheduleRepository creates a new repository instance using the main read/write database.
func NewFeeScheduleRepository() *FeeScheduleRepository {
	logger.WithField("component", "FeeScheduleRepository").
		Info("Creating new FeeScheduleRepository with MainDB")

	return &FeeScheduleRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *FeeScheduleRepository) WithDB(db *gorm.DB) *FeeScheduleRepository {
	return &FeeScheduleRepository{db: db}
}

// FindRate returns the active fee percentage for (currency, txType).
// Missing rows mean the platform charges nothing for that combination.
func (r *FeeScheduleRepository) FindRate(
	ctx context.Context,
	currency string,
	transactionType string,
) (decimal.Decimal, error) {

	var schedule model.FeeSchedule

	err := r.db.WithContext(ctx).
		Where("currency = ? AND transaction_type = ? AND active = ?", currency, transactionType, true).
		First(&schedule).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "FeeScheduleRepository",
			"op":       "FindRate",
			"currency": currency,
			"tx_type":  transactionType,
		}).WithError(err).Error("Failed to fetch fee rate")

		return decimal.Zero, err
	}

	return schedule.Percentage, nil
}

// Create registers a fee schedule row.
func (r *FeeScheduleRepository) Create(
	ctx context.Context,
	schedule *model.FeeSchedule,
) error {

	err := r.db.WithContext(ctx).Create(schedule).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "FeeScheduleRepository",
			"op":       "Create",
			"currency": schedule.Currency,
			"tx_type":  schedule.TransactionType,
		}).WithError(err).Error("Failed to create fee schedule")

		return err
	}

	return nil
}
