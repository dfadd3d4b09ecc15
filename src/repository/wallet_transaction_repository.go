package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// WalletTransactionRepository handles the append-only settlement audit rows.
type WalletTransactionRepository struct {
	db *gorm.DB
}

// NewWalletTransactionRepository creates a new repository instance using the main read/write database.
func NewWalletTransactionRepository() *WalletTransactionRepository {
	logger.WithField("component", "WalletTransactionRepository").
		Info("Creating new WalletTransactionRepository with MainDB")

	return &WalletTransactionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *WalletTransactionRepository) WithDB(db *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: db}
}

// Create appends one wallet transaction audit row.
func (r *WalletTransactionRepository) Create(
	ctx context.Context,
	walletTx *model.WalletTransaction,
) error {

	err := r.db.WithContext(ctx).Create(walletTx).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WalletTransactionRepository",
			"op":       "Create",
			"trade_id": walletTx.TradeID,
			"user_id":  walletTx.UserID,
		}).WithError(err).Error("Failed to create wallet transaction")

		return err
	}

	return nil
}

// FindByTradeID lists the audit rows written for one trade.
func (r *WalletTransactionRepository) FindByTradeID(
	ctx context.Context,
	tradeID uint,
) ([]model.WalletTransaction, error) {

	var rows []model.WalletTransaction

	err := r.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("id ASC").
		Find(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "WalletTransactionRepository",
			"op":       "FindByTradeID",
			"trade_id": tradeID,
		}).WithError(err).Error("Failed to fetch wallet transactions")

		return nil, err
	}

	return rows, nil
}
