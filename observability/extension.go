package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/progress"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/waveline/courier/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.JobEnqueued        = (*MetricsExtension)(nil)
	_ ext.JobCompleted       = (*MetricsExtension)(nil)
	_ ext.JobFailed          = (*MetricsExtension)(nil)
	_ ext.JobRetrying        = (*MetricsExtension)(nil)
	_ ext.JobDLQ             = (*MetricsExtension)(nil)
	_ ext.SyncStarted        = (*MetricsExtension)(nil)
	_ ext.SyncCompleted      = (*MetricsExtension)(nil)
	_ ext.SyncFailed         = (*MetricsExtension)(nil)
	_ ext.CampaignStarted    = (*MetricsExtension)(nil)
	_ ext.CampaignFinished   = (*MetricsExtension)(nil)
	_ ext.BreakerStateChange = (*MetricsExtension)(nil)
	_ ext.CronFired          = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as an extension to track enqueue rates, completion and
// failure counts, dead-lettered jobs, sync runs, campaign outcomes,
// breaker transitions, and cron fires.
type MetricsExtension struct {
	jobsEnqueued   metric.Int64Counter
	jobsCompleted  metric.Int64Counter
	jobsFailed     metric.Int64Counter
	jobsRetried    metric.Int64Counter
	jobsDeadLetter metric.Int64Counter

	syncsStarted  metric.Int64Counter
	syncsFinished metric.Int64Counter

	campaignsStarted  metric.Int64Counter
	campaignsFinished metric.Int64Counter
	campaignMessages  metric.Int64Counter

	breakerTransitions metric.Int64Counter
	cronFires          metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no provider is configured, the instruments are noops
// and every hook becomes a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully instead of failing construction.
	m.jobsEnqueued, _ = meter.Int64Counter("courier.jobs.enqueued",
		metric.WithDescription("Jobs accepted into the lanes"))
	m.jobsCompleted, _ = meter.Int64Counter("courier.jobs.completed",
		metric.WithDescription("Jobs that finished successfully"))
	m.jobsFailed, _ = meter.Int64Counter("courier.jobs.failed",
		metric.WithDescription("Jobs that failed terminally"))
	m.jobsRetried, _ = meter.Int64Counter("courier.jobs.retried",
		metric.WithDescription("Jobs scheduled for another attempt"))
	m.jobsDeadLetter, _ = meter.Int64Counter("courier.jobs.dead_lettered",
		metric.WithDescription("Jobs parked in the dead letter store"))

	m.syncsStarted, _ = meter.Int64Counter("courier.syncs.started",
		metric.WithDescription("Tracked sync runs started"))
	m.syncsFinished, _ = meter.Int64Counter("courier.syncs.finished",
		metric.WithDescription("Tracked sync runs finished, by status"))

	m.campaignsStarted, _ = meter.Int64Counter("courier.campaigns.started",
		metric.WithDescription("Broadcast campaigns that began fan-out"))
	m.campaignsFinished, _ = meter.Int64Counter("courier.campaigns.finished",
		metric.WithDescription("Broadcast campaigns that reached a terminal state"))
	m.campaignMessages, _ = meter.Int64Counter("courier.campaigns.messages",
		metric.WithDescription("Campaign recipient outcomes, by result"))

	m.breakerTransitions, _ = meter.Int64Counter("courier.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"))
	m.cronFires, _ = meter.Int64Counter("courier.cron.fired",
		metric.WithDescription("Cron entries that fired and enqueued a job"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobsEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobsCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobsFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobsRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobDLQ implements ext.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job, _ error) error {
	m.jobsDeadLetter.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Sync lifecycle hooks ────────────────────────────

// OnSyncStarted implements ext.SyncStarted.
func (m *MetricsExtension) OnSyncStarted(ctx context.Context, _ *progress.Run) error {
	m.syncsStarted.Add(ctx, 1)
	return nil
}

// OnSyncCompleted implements ext.SyncCompleted.
func (m *MetricsExtension) OnSyncCompleted(ctx context.Context, _ *progress.Run, _ time.Duration) error {
	m.syncsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "completed")))
	return nil
}

// OnSyncFailed implements ext.SyncFailed.
func (m *MetricsExtension) OnSyncFailed(ctx context.Context, _ *progress.Run, _ string) error {
	m.syncsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "failed")))
	return nil
}

// ── Campaign lifecycle hooks ────────────────────────

// OnCampaignStarted implements ext.CampaignStarted.
func (m *MetricsExtension) OnCampaignStarted(ctx context.Context, _ id.CampaignID, _ int) error {
	m.campaignsStarted.Add(ctx, 1)
	return nil
}

// OnCampaignFinished implements ext.CampaignFinished.
func (m *MetricsExtension) OnCampaignFinished(ctx context.Context, _ id.CampaignID, sent, failed, skipped int64) error {
	m.campaignsFinished.Add(ctx, 1)
	m.campaignMessages.Add(ctx, sent, metric.WithAttributes(attribute.String("result", "sent")))
	m.campaignMessages.Add(ctx, failed, metric.WithAttributes(attribute.String("result", "failed")))
	m.campaignMessages.Add(ctx, skipped, metric.WithAttributes(attribute.String("result", "skipped")))
	return nil
}

// ── Other lifecycle hooks ───────────────────────────

// OnBreakerStateChange implements ext.BreakerStateChange.
func (m *MetricsExtension) OnBreakerStateChange(ctx context.Context, change breaker.StateChange) error {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", change.Name),
		attribute.String("to", string(change.To)),
	))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string, _ id.JobID) error {
	m.cronFires.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entryName)))
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("hook", j.Hook),
		attribute.String("lane", j.Lane.String()),
	)
}
