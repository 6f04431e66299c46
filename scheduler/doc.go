// Package scheduler is the caller-facing facade for submitting work.
//
// A [Service] wraps a job store and turns intent into persisted jobs:
//
//	sched := scheduler.New(store,
//	    scheduler.WithCronStore(store),
//	    scheduler.WithDLQStore(store),
//	    scheduler.WithExtensions(exts))
//
//	j, err := sched.Schedule(ctx, "send_receipt", receiptArgs{OrderID: "o-17"},
//	    job.WithLane(job.LaneCritical))
//
// Scheduling is always asynchronous. A delay option shifts eligibility
// into the future; without one the job becomes eligible at the next
// worker pickup. Validation failures (empty hook, unknown lane,
// unserializable args) and store unavailability come back as errors on
// the call, never as panics and never as silently dropped work.
//
// # Identity
//
// Every job carries a fingerprint derived from its hook and args.
// [Service.IsPending] and [Service.CancelMatching] match on it, so "is
// this exact sync already queued?" and "cancel that broadcast" work
// without the caller tracking job IDs. [Service.Cancel] drops the args
// dimension and clears everything queued for a hook. Cancellation only
// touches pending and retrying jobs; running jobs always finish on
// their own.
//
// # Recurring work
//
// [Service.ScheduleRecurring] persists a cron entry that enqueues the
// hook on a fixed interval. Registration is idempotent per hook, so
// services can re-declare their schedules on every boot.
//
// # Failure visibility
//
// [Service.FailedJobs] merges the dead letter store with jobs that
// reached the failed state outside it, giving operators one ordered
// view of everything that gave up.
//
// The service also re-submits dead letter payloads during replay and
// fires stored cron entries; both paths go through the same enqueue and
// notification flow as first-hand scheduling.
package scheduler
