package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"cardstate/pkg/config"
	"cardstate/pkg/logger"
	"cardstate/pkg/store"
	"cardstate/pkg/telemetry"
)

// Start starts the notification retention scheduler if enabled. Each run
// purges read notifications older than Retention.MaxAge. Returns a cancel
// func that stops the scheduler.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	maxAge := cfg.MaxAge.Duration()
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", maxAge.String(), "dry_run", cfg.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, maxAge, cfg.DryRun)
	return cancel, nil
}

// runScheduler computes the next tick for the configured cron expression
// with gronx and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, maxAge time.Duration, dryRun bool) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(maxAge, dryRun); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single purge pass. Exposed so admin triggers and tests
// can run retention on demand.
func RunOnce(maxAge time.Duration, dryRun bool) error {
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	if dryRun {
		logger.Info("retention_dry_run", "cutoff", cutoff)
		return nil
	}
	purged, err := store.PurgeReadNotificationsBefore(cutoff)
	if err != nil {
		return err
	}
	telemetry.RetentionPurged.Add(float64(purged))
	logger.Info("retention_run_complete", "purged", purged, "cutoff", cutoff)
	return nil
}
