package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/job"
)

// Maintenance hook names. The handlers run on the MAINTENANCE lane so
// housekeeping never competes with delivery work.
const (
	HookDLQSweep    = "dlq_sweep"
	HookLedgerSweep = "ledger_sweep"
	HookSyncReap    = "sync_reap"
)

// MaintenanceConfig tunes the recurring housekeeping jobs.
// Zero values fall back to the defaults below.
type MaintenanceConfig struct {
	// DLQRetention is how long dead letters are kept before the sweep
	// purges them. Default 30 days.
	DLQRetention time.Duration

	// DLQSweepSchedule is the cron expression for the dead letter
	// sweep. Default "0 3 * * *" (daily, off-peak).
	DLQSweepSchedule string

	// LedgerSweepSchedule is the cron expression for the expired-claim
	// sweep. Default "@every 1h".
	LedgerSweepSchedule string

	// SyncStaleAfter is how long a sync run may go without an update
	// before the reaper fails it and frees the progress slot.
	// Default 30 minutes.
	SyncStaleAfter time.Duration

	// SyncReapSchedule is the cron expression for the stale-sync
	// reaper. Default "@every 5m".
	SyncReapSchedule string
}

// DefaultMaintenanceConfig returns the standard housekeeping cadence.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		DLQRetention:        30 * 24 * time.Hour,
		DLQSweepSchedule:    "0 3 * * *",
		LedgerSweepSchedule: "@every 1h",
		SyncStaleAfter:      30 * time.Minute,
		SyncReapSchedule:    "@every 5m",
	}
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	d := DefaultMaintenanceConfig()
	if c.DLQRetention <= 0 {
		c.DLQRetention = d.DLQRetention
	}
	if c.DLQSweepSchedule == "" {
		c.DLQSweepSchedule = d.DLQSweepSchedule
	}
	if c.LedgerSweepSchedule == "" {
		c.LedgerSweepSchedule = d.LedgerSweepSchedule
	}
	if c.SyncStaleAfter <= 0 {
		c.SyncStaleAfter = d.SyncStaleAfter
	}
	if c.SyncReapSchedule == "" {
		c.SyncReapSchedule = d.SyncReapSchedule
	}
	return c
}

// dlqSweepArgs is the payload for the dead letter sweep job.
type dlqSweepArgs struct {
	RetentionHours int `json:"retention_hours"`
}

// syncReapArgs is the payload for the stale-sync reaper job.
type syncReapArgs struct {
	StaleAfterMinutes int `json:"stale_after_minutes"`
}

// RegisterMaintenance registers the recurring housekeeping jobs: the
// dead letter retention sweep, the expired idempotency claim sweep,
// and the stale sync reaper. Each runs on the MAINTENANCE lane under
// the cron scheduler's per-entry lock, so a fleet of instances fires
// each sweep once per window. Registration is idempotent.
func RegisterMaintenance(ctx context.Context, eng *Engine, cfg MaintenanceConfig) error {
	cfg = cfg.withDefaults()

	Register(eng, job.NewDefinition(HookDLQSweep, func(ctx context.Context, args dlqSweepArgs) error {
		retention := time.Duration(args.RetentionHours) * time.Hour
		if retention <= 0 {
			retention = cfg.DLQRetention
		}
		removed, err := eng.dlqService.Cleanup(ctx, retention)
		if err != nil {
			return err
		}
		if removed > 0 {
			eng.logger.Info("dead letter sweep", slog.Int64("removed", removed))
		}
		return nil
	}))

	Register(eng, job.NewDefinition(HookLedgerSweep, func(ctx context.Context, _ struct{}) error {
		_, err := eng.claims.Cleanup(ctx)
		return err
	}))

	Register(eng, job.NewDefinition(HookSyncReap, func(ctx context.Context, args syncReapArgs) error {
		staleAfter := time.Duration(args.StaleAfterMinutes) * time.Minute
		if staleAfter <= 0 {
			staleAfter = cfg.SyncStaleAfter
		}
		reaped, err := eng.tracker.FailStale(ctx, staleAfter)
		if err != nil {
			return err
		}
		if reaped {
			eng.logger.Warn("stale sync reaped", slog.Duration("stale_after", staleAfter))
		}
		return nil
	}))

	if err := RegisterRecurring(ctx, eng, &cron.Definition[dlqSweepArgs]{
		Name:     "dlq-sweep",
		Schedule: cfg.DLQSweepSchedule,
		Hook:     HookDLQSweep,
		Args:     dlqSweepArgs{RetentionHours: int(cfg.DLQRetention / time.Hour)},
		Lane:     job.LaneMaintenance,
	}); err != nil {
		return fmt.Errorf("register dlq sweep: %w", err)
	}

	if err := RegisterRecurring(ctx, eng, &cron.Definition[struct{}]{
		Name:     "ledger-sweep",
		Schedule: cfg.LedgerSweepSchedule,
		Hook:     HookLedgerSweep,
		Lane:     job.LaneMaintenance,
	}); err != nil {
		return fmt.Errorf("register ledger sweep: %w", err)
	}

	if err := RegisterRecurring(ctx, eng, &cron.Definition[syncReapArgs]{
		Name:     "sync-reap",
		Schedule: cfg.SyncReapSchedule,
		Hook:     HookSyncReap,
		Args:     syncReapArgs{StaleAfterMinutes: int(cfg.SyncStaleAfter / time.Minute)},
		Lane:     job.LaneMaintenance,
	}); err != nil {
		return fmt.Errorf("register sync reap: %w", err)
	}

	return nil
}
