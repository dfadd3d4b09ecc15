package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"walletexchange/src/database"
	"walletexchange/src/model"
)

// PricingSettingRepository reads and writes the versioned dynamic
// pricing configuration.
type PricingSettingRepository struct {
	db *gorm.DB
}

// NewPricingSettingRepository creates a new repository instance using the main read/write database.
func NewPricingSettingRepository() *PricingSettingRepository {
	logger.WithField("component", "PricingSettingRepository").
		Info("Creating new PricingSettingRepository with MainDB")

	return &PricingSettingRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PricingSettingRepository) WithDB(db *gorm.DB) *PricingSettingRepository {
	return &PricingSettingRepository{db: db}
}

// LoadAll returns the current settings as a key -> value map. Callers
// re-read at the start of every pricing cycle instead of caching.
func (r *PricingSettingRepository) LoadAll(
	ctx context.Context,
) (map[string]string, error) {

	var rows []model.PricingSetting

	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PricingSettingRepository",
			"op":   "LoadAll",
		}).WithError(err).Error("Failed to load pricing settings")

		return nil, err
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}

	return settings, nil
}

// Set updates one setting, bumping its version, or inserts it at version 1.
func (r *PricingSettingRepository) Set(
	ctx context.Context,
	key string,
	value string,
) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.PricingSetting

		err := tx.Where("key = ?", key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = model.PricingSetting{Key: key, Value: value, Version: 1}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&model.PricingSetting{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"value":   value,
				"version": row.Version + 1,
			}).Error
	})
}
