package pricing

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
)

// StartLoop runs the adjuster on a fixed interval until ctx is
// cancelled. The interval follows the update_interval_minutes setting,
// re-read after every cycle, so operators can retune it live.
func StartLoop(ctx context.Context, adjuster *Adjuster) error {
	config := GetConfig()

	interval := config.LoopPeriod
	if cfg, err := adjuster.EffectiveConfig(ctx); err == nil && cfg.UpdateInterval > 0 {
		interval = cfg.UpdateInterval
	}

	ticker := time.NewTicker(interval) // Set up a ticker that fires periodically
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("Dynamic pricing loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Dynamic pricing loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("pricing loop tick")

			if err := adjuster.RunCycle(ctx); err != nil {
				logger.WithError(err).Error("Pricing cycle failed, will retry next tick")
			}

			cfg, err := adjuster.EffectiveConfig(ctx)
			if err != nil {
				logger.WithError(err).Error("Failed to re-read pricing settings")
				continue
			}
			if cfg.UpdateInterval > 0 && cfg.UpdateInterval != interval {
				interval = cfg.UpdateInterval
				ticker.Reset(interval)

				logger.WithField("interval", interval.String()).
					Info("Pricing loop interval retuned")
			}
		}
	}
}
