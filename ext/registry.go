package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/progress"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type syncStartedEntry struct {
	name string
	hook SyncStarted
}

type syncCompletedEntry struct {
	name string
	hook SyncCompleted
}

type syncFailedEntry struct {
	name string
	hook SyncFailed
}

type campaignStartedEntry struct {
	name string
	hook CampaignStarted
}

type campaignFinishedEntry struct {
	name string
	hook CampaignFinished
}

type breakerStateChangeEntry struct {
	name string
	hook BreakerStateChange
}

type cronFiredEntry struct {
	name string
	hook CronFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobEnqueued        []jobEnqueuedEntry
	jobStarted         []jobStartedEntry
	jobCompleted       []jobCompletedEntry
	jobFailed          []jobFailedEntry
	jobRetrying        []jobRetryingEntry
	jobDLQ             []jobDLQEntry
	syncStarted        []syncStartedEntry
	syncCompleted      []syncCompletedEntry
	syncFailed         []syncFailedEntry
	campaignStarted    []campaignStartedEntry
	campaignFinished   []campaignFinishedEntry
	breakerStateChange []breakerStateChangeEntry
	cronFired          []cronFiredEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry. A nil logger falls back to
// slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, h})
	}
	if h, ok := e.(SyncStarted); ok {
		r.syncStarted = append(r.syncStarted, syncStartedEntry{name, h})
	}
	if h, ok := e.(SyncCompleted); ok {
		r.syncCompleted = append(r.syncCompleted, syncCompletedEntry{name, h})
	}
	if h, ok := e.(SyncFailed); ok {
		r.syncFailed = append(r.syncFailed, syncFailedEntry{name, h})
	}
	if h, ok := e.(CampaignStarted); ok {
		r.campaignStarted = append(r.campaignStarted, campaignStartedEntry{name, h})
	}
	if h, ok := e.(CampaignFinished); ok {
		r.campaignFinished = append(r.campaignFinished, campaignFinishedEntry{name, h})
	}
	if h, ok := e.(BreakerStateChange); ok {
		r.breakerStateChange = append(r.breakerStateChange, breakerStateChangeEntry{name, h})
	}
	if h, ok := e.(CronFired); ok {
		r.cronFired = append(r.cronFired, cronFiredEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all extensions that implement JobDLQ.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDLQ", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Sync event emitters
// ──────────────────────────────────────────────────

// EmitSyncStarted notifies all extensions that implement SyncStarted.
func (r *Registry) EmitSyncStarted(ctx context.Context, run *progress.Run) {
	for _, e := range r.syncStarted {
		if err := e.hook.OnSyncStarted(ctx, run); err != nil {
			r.logHookError("OnSyncStarted", e.name, err)
		}
	}
}

// EmitSyncCompleted notifies all extensions that implement SyncCompleted.
func (r *Registry) EmitSyncCompleted(ctx context.Context, run *progress.Run, elapsed time.Duration) {
	for _, e := range r.syncCompleted {
		if err := e.hook.OnSyncCompleted(ctx, run, elapsed); err != nil {
			r.logHookError("OnSyncCompleted", e.name, err)
		}
	}
}

// EmitSyncFailed notifies all extensions that implement SyncFailed.
func (r *Registry) EmitSyncFailed(ctx context.Context, run *progress.Run, reason string) {
	for _, e := range r.syncFailed {
		if err := e.hook.OnSyncFailed(ctx, run, reason); err != nil {
			r.logHookError("OnSyncFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Campaign event emitters
// ──────────────────────────────────────────────────

// EmitCampaignStarted notifies all extensions that implement CampaignStarted.
func (r *Registry) EmitCampaignStarted(ctx context.Context, campaignID id.CampaignID, recipients int) {
	for _, e := range r.campaignStarted {
		if err := e.hook.OnCampaignStarted(ctx, campaignID, recipients); err != nil {
			r.logHookError("OnCampaignStarted", e.name, err)
		}
	}
}

// EmitCampaignFinished notifies all extensions that implement CampaignFinished.
func (r *Registry) EmitCampaignFinished(ctx context.Context, campaignID id.CampaignID, sent, failed, skipped int64) {
	for _, e := range r.campaignFinished {
		if err := e.hook.OnCampaignFinished(ctx, campaignID, sent, failed, skipped); err != nil {
			r.logHookError("OnCampaignFinished", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitBreakerStateChange notifies all extensions that implement
// BreakerStateChange.
func (r *Registry) EmitBreakerStateChange(ctx context.Context, change breaker.StateChange) {
	for _, e := range r.breakerStateChange {
		if err := e.hook.OnBreakerStateChange(ctx, change); err != nil {
			r.logHookError("OnBreakerStateChange", e.name, err)
		}
	}
}

// EmitCronFired notifies all extensions that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobID id.JobID) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, jobID); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
