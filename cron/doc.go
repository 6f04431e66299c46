// Package cron provides recurring job schedules with named-lock
// double-fire prevention.
//
// Cron entries are stored in the database and evaluated by every running
// instance. A per-entry named lock (courier:cron:<name>) plus a due-time
// recheck under the lock guarantees each entry fires once per window even
// with multiple instances ticking concurrently.
//
// # Entry
//
// An [Entry] represents a recurring job schedule:
//   - Schedule: standard 5-field cron expression or a descriptor like
//     "@every 6h"
//   - Hook: the registered job hook to enqueue when fired
//   - Lane: target priority lane (maintenance entries use MAINTENANCE)
//   - Args: static JSON args passed to every triggered job
//   - Enabled: whether the entry fires
//
// # Registering a Schedule
//
// Use engine.ScheduleRecurring to add an entry at startup:
//
//	engine.ScheduleRecurring(ctx, eng, "dlq-cleanup", "@every 6h",
//	    "cleanup_dead_letters", CleanupArgs{Retention: "720h"}, job.LaneMaintenance)
//
// Courier registers its own maintenance entries this way: the dead letter
// retention sweep, the idempotency ledger TTL sweep, and the stale sync
// progress reconciliation.
//
// # Scheduler
//
// The [Scheduler] evaluates due entries on every tick, acquires the named
// lock for each, enqueues the corresponding job, and advances LastRunAt
// and NextRunAt inside the lock window. The [ext.CronFired] extension hook
// fires after each enqueue.
package cron
