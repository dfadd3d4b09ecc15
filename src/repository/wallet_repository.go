package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// WalletRepository handles read/write operations for wallet balances.
type WalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new repository instance using the main read/write database.
func NewWalletRepository() *WalletRepository {
	logger.WithField("component", "WalletRepository").
		Info("Creating new WalletRepository with MainDB")

	return &WalletRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WalletRepository) WithDB(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetOrCreateForUpdate loads the wallet row for (userID, currency) with a
// row lock, creating it with zero balances on first use. Must be called
// inside a transaction.
func (r *WalletRepository) GetOrCreateForUpdate(
	ctx context.Context,
	userID uint,
	currency string,
) (*model.Wallet, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "WalletRepository",
		"op":       "GetOrCreateForUpdate",
		"user_id":  userID,
		"currency": currency,
	}).Debug("Locking wallet row")

	var wallet model.Wallet

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&wallet).Error

	if err == nil {
		return &wallet, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(map[string]interface{}{
			"repo":     "WalletRepository",
			"op":       "GetOrCreateForUpdate",
			"user_id":  userID,
			"currency": currency,
		}).WithError(err).Error("Failed to lock wallet row")

		return nil, err
	}

	wallet = model.Wallet{
		UserID:           userID,
		Currency:         currency,
		AvailableBalance: decimal.Zero,
		ReservedBalance:  decimal.Zero,
	}

	if err := r.db.WithContext(ctx).Create(&wallet).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WalletRepository",
			"op":       "GetOrCreateForUpdate",
			"user_id":  userID,
			"currency": currency,
		}).WithError(err).Error("Failed to lazily create wallet")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "WalletRepository",
		"op":        "GetOrCreateForUpdate",
		"user_id":   userID,
		"currency":  currency,
		"wallet_id": wallet.ID,
	}).Info("Wallet created lazily")

	return &wallet, nil
}

// Save persists the mutated balances of the given wallet.
func (r *WalletRepository) Save(
	ctx context.Context,
	wallet *model.Wallet,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ?", wallet.ID).
		Updates(map[string]interface{}{
			"available_balance": wallet.AvailableBalance,
			"reserved_balance":  wallet.ReservedBalance,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "WalletRepository",
			"op":        "Save",
			"wallet_id": wallet.ID,
		}).WithError(err).Error("Failed to save wallet balances")

		return err
	}

	return nil
}

// FindByUserAndCurrency fetches a wallet without locking.
// Returns (nil, nil) if the wallet does not exist yet.
func (r *WalletRepository) FindByUserAndCurrency(
	ctx context.Context,
	userID uint,
	currency string,
) (*model.Wallet, error) {

	var wallet model.Wallet

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&wallet).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "WalletRepository",
			"op":       "FindByUserAndCurrency",
			"user_id":  userID,
			"currency": currency,
		}).WithError(err).Error("Failed to fetch wallet")

		return nil, err
	}

	return &wallet, nil
}
