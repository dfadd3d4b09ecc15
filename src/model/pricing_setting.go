package model

import "time"

// Setting keys consulted by the dynamic pricing adjuster at the start of
// every cycle.
const (
	SettingVwapWindowHours              = "vwap_window_hours"
	SettingCompetitiveMarginPercentage  = "competitive_margin_percentage"
	SettingUpdateIntervalMinutes        = "update_interval_minutes"
	SettingMinChangeThresholdPercentage = "min_change_threshold_percentage"
	SettingMaxChangePerUpdatePercentage = "max_change_per_update_percentage"
	SettingMinVolumeForVwap             = "min_volume_for_vwap"
	SettingPriceBoundsPercentage        = "price_bounds_percentage"
)

// PricingSetting is one versioned key/value row of the dynamic pricing
// configuration. Updates bump Version in place; readers always see the
// latest value, never a process-lifetime cache.
type PricingSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:100;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"size:100;not null" json:"value"`
	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for pricing settings.
func (PricingSetting) TableName() string {
	return "pricing_settings"
}
