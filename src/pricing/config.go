package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"walletexchange/src/model"
	"walletexchange/src/repository"
)

// Compiled fallbacks used when a settings row is missing or unparseable.
// The settings store always wins when it holds a valid value.
var (
	DefaultVwapWindowHours              = decimal.NewFromInt(24)
	DefaultCompetitiveMarginPercentage  = decimal.RequireFromString("0.5")
	DefaultUpdateIntervalMinutes        = decimal.NewFromInt(5)
	DefaultMinChangeThresholdPercentage = decimal.RequireFromString("0.1")
	DefaultMaxChangePerUpdatePercentage = decimal.NewFromInt(5)
	DefaultMinVolumeForVwap             = decimal.NewFromInt(10)
	DefaultPriceBoundsPercentage        = decimal.NewFromInt(10)
)

// Config holds the process-level loop settings.
type Config struct {
	LoopPeriod time.Duration `envconfig:"PRICING_LOOP_PERIOD" default:"1m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// EffectiveConfig is the dynamic pricing configuration in force for one
// adjustment cycle. It is rebuilt from the settings store at the start
// of every cycle, never cached across cycles.
type EffectiveConfig struct {
	VwapWindow           time.Duration
	CompetitiveMarginPct decimal.Decimal
	UpdateInterval       time.Duration
	MinChangeThreshold   decimal.Decimal
	MaxChangePerUpdate   decimal.Decimal
	MinVolumeForVwap     decimal.Decimal
	PriceBoundsPct       decimal.Decimal
}

// LoadEffectiveConfig reads the settings rows and applies fallbacks for
// anything missing or malformed.
func LoadEffectiveConfig(
	ctx context.Context,
	settings *repository.PricingSettingRepository,
) (*EffectiveConfig, error) {

	values, err := settings.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	windowHours := SettingDecimal(values, model.SettingVwapWindowHours, DefaultVwapWindowHours)
	intervalMinutes := SettingDecimal(values, model.SettingUpdateIntervalMinutes, DefaultUpdateIntervalMinutes)

	return &EffectiveConfig{
		VwapWindow:           time.Duration(windowHours.IntPart()) * time.Hour,
		CompetitiveMarginPct: SettingDecimal(values, model.SettingCompetitiveMarginPercentage, DefaultCompetitiveMarginPercentage),
		UpdateInterval:       time.Duration(intervalMinutes.IntPart()) * time.Minute,
		MinChangeThreshold:   SettingDecimal(values, model.SettingMinChangeThresholdPercentage, DefaultMinChangeThresholdPercentage),
		MaxChangePerUpdate:   SettingDecimal(values, model.SettingMaxChangePerUpdatePercentage, DefaultMaxChangePerUpdatePercentage),
		MinVolumeForVwap:     SettingDecimal(values, model.SettingMinVolumeForVwap, DefaultMinVolumeForVwap),
		PriceBoundsPct:       SettingDecimal(values, model.SettingPriceBoundsPercentage, DefaultPriceBoundsPercentage),
	}, nil
}

// SettingDecimal parses one settings value, falling back (with a
// warning) when the stored string is not a valid decimal.
func SettingDecimal(values map[string]string, key string, fallback decimal.Decimal) decimal.Decimal {
	raw, ok := values[key]
	if !ok {
		return fallback
	}

	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "pricing",
			"key":       key,
			"value":     raw,
		}).Warn("Unparseable pricing setting, using default")

		return fallback
	}

	return parsed
}
