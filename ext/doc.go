// Package ext defines the extension system for Courier.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, emitting webhooks, paging on-call, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s (%s) completed in %s", j.ID, j.Hook, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued] job was accepted into a lane
//   - [JobStarted] worker began executing the job
//   - [JobCompleted] job finished successfully
//   - [JobFailed] job failed with no retries remaining
//   - [JobRetrying] job failed but will be retried
//   - [JobDLQ] job was moved to the dead letter store
//
// # Sync Lifecycle Hooks
//
//   - [SyncStarted] a tracked sync run began
//   - [SyncCompleted] the run finished with all items accounted for
//   - [SyncFailed] the run was marked failed or swept as stale
//
// # Campaign Lifecycle Hooks
//
//   - [CampaignStarted] a broadcast campaign began fan-out
//   - [CampaignFinished] the campaign reached a terminal state
//
// # Other Hooks
//
//   - [BreakerStateChange] a circuit breaker changed state
//   - [CronFired] a cron entry was triggered and a job was enqueued
//   - [Shutdown] the courier is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
