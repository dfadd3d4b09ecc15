package migrations

import "gorm.io/gorm"

type pricingSettingRow struct {
	Key     string
	Value   string
	Version int
}

func (pricingSettingRow) TableName() string { return "pricing_settings" }

// seedDefaultPricingSettings inserts the baseline dynamic pricing
// configuration. Values are strings so operators can retune them at
// runtime without a deploy; the adjuster re-reads them every cycle.
func seedDefaultPricingSettings(tx *gorm.DB) error {
	defaults := []pricingSettingRow{
		{Key: "vwap_window_hours", Value: "24", Version: 1},
		{Key: "competitive_margin_percentage", Value: "0.5", Version: 1},
		{Key: "update_interval_minutes", Value: "5", Version: 1},
		{Key: "min_change_threshold_percentage", Value: "0.1", Version: 1},
		{Key: "max_change_per_update_percentage", Value: "5", Version: 1},
		{Key: "min_volume_for_vwap", Value: "10", Version: 1},
		{Key: "price_bounds_percentage", Value: "10", Version: 1},
	}

	for _, row := range defaults {
		var count int64
		if err := tx.Table("pricing_settings").Where("key = ?", row.Key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := tx.Table("pricing_settings").Create(&row).Error; err != nil {
			return err
		}
	}

	return nil
}
