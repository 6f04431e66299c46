// Package ext defines the extension system for Courier.
// Extensions are notified of lifecycle events (job enqueued, completed,
// failed, sync started, breaker opened, etc.) and can react to them:
// logging, metrics, alerting, and so on.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/progress"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDLQ is called when a job is moved to the dead letter store.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Sync lifecycle hooks
// ──────────────────────────────────────────────────

// SyncStarted is called when a tracked sync run begins.
type SyncStarted interface {
	OnSyncStarted(ctx context.Context, run *progress.Run) error
}

// SyncCompleted is called when a tracked sync run finishes with all
// items accounted for.
type SyncCompleted interface {
	OnSyncCompleted(ctx context.Context, run *progress.Run, elapsed time.Duration) error
}

// SyncFailed is called when a tracked sync run is marked failed,
// either explicitly or by the stale sweep.
type SyncFailed interface {
	OnSyncFailed(ctx context.Context, run *progress.Run, reason string) error
}

// ──────────────────────────────────────────────────
// Campaign lifecycle hooks
// ──────────────────────────────────────────────────

// CampaignStarted is called when a broadcast campaign begins fan-out.
type CampaignStarted interface {
	OnCampaignStarted(ctx context.Context, campaignID id.CampaignID, recipients int) error
}

// CampaignFinished is called when a broadcast campaign reaches a
// terminal state, with its final delivery counters.
type CampaignFinished interface {
	OnCampaignFinished(ctx context.Context, campaignID id.CampaignID, sent, failed, skipped int64) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// BreakerStateChange is called when a circuit breaker transitions
// between states.
type BreakerStateChange interface {
	OnBreakerStateChange(ctx context.Context, change breaker.StateChange) error
}

// CronFired is called when a cron entry fires and enqueues a job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
