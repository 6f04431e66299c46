package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/ext"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/observability"
	"github.com/waveline/courier/progress"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:   id.NewJobID(),
		Hook: "send_receipt",
		Lane: job.LaneCritical,
	}
}

func newTestRun() *progress.Run {
	return &progress.Run{
		SyncID:     id.NewSyncID(),
		Status:     progress.StatusInProgress,
		TotalItems: 10,
	}
}

// counterTotal sums every data point of the named Int64 counter, or
// returns -1 when the instrument recorded nothing.
func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name != name {
				continue
			}
			sum, ok := sm.Metrics[i].Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data, got %T", name, sm.Metrics[i].Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return -1
}

// counterAttr returns the value of the data point carrying the given
// string attribute, or -1 when no such data point exists.
func counterAttr(t *testing.T, reader *sdkmetric.ManualReader, name, key, val string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name != name {
				continue
			}
			sum, ok := sm.Metrics[i].Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data, got %T", name, sm.Metrics[i].Data)
			}
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == val {
					return dp.Value
				}
			}
		}
	}
	return -1
}

func TestMetricsExtensionName(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtensionCountsJobEvents(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	j := newTestJob()

	if err := e.OnJobEnqueued(ctx, j); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := e.OnJobCompleted(ctx, j, 100*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if err := e.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}
	if err := e.OnJobRetrying(ctx, j, 1, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("OnJobRetrying: %v", err)
	}
	if err := e.OnJobDLQ(ctx, j, errors.New("terminal")); err != nil {
		t.Fatalf("OnJobDLQ: %v", err)
	}

	for _, name := range []string{
		"courier.jobs.enqueued",
		"courier.jobs.completed",
		"courier.jobs.failed",
		"courier.jobs.retried",
		"courier.jobs.dead_lettered",
	} {
		if got := counterTotal(t, reader, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}

	if got := counterAttr(t, reader, "courier.jobs.enqueued", "hook", "send_receipt"); got != 1 {
		t.Errorf("enqueued counter missing hook attribute, got %d", got)
	}
}

func TestMetricsExtensionCountsSyncOutcomes(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	run := newTestRun()

	if err := e.OnSyncStarted(ctx, run); err != nil {
		t.Fatalf("OnSyncStarted: %v", err)
	}
	if err := e.OnSyncCompleted(ctx, run, 2*time.Second); err != nil {
		t.Fatalf("OnSyncCompleted: %v", err)
	}
	if err := e.OnSyncFailed(ctx, run, "upstream quota exhausted"); err != nil {
		t.Fatalf("OnSyncFailed: %v", err)
	}

	if got := counterTotal(t, reader, "courier.syncs.started"); got != 1 {
		t.Errorf("syncs.started: want 1, got %d", got)
	}
	if got := counterAttr(t, reader, "courier.syncs.finished", "status", "completed"); got != 1 {
		t.Errorf("syncs.finished{completed}: want 1, got %d", got)
	}
	if got := counterAttr(t, reader, "courier.syncs.finished", "status", "failed"); got != 1 {
		t.Errorf("syncs.finished{failed}: want 1, got %d", got)
	}
}

func TestMetricsExtensionCountsCampaignOutcomes(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()
	campaignID := id.NewCampaignID()

	if err := e.OnCampaignStarted(ctx, campaignID, 10); err != nil {
		t.Fatalf("OnCampaignStarted: %v", err)
	}
	if err := e.OnCampaignFinished(ctx, campaignID, 7, 2, 1); err != nil {
		t.Fatalf("OnCampaignFinished: %v", err)
	}

	if got := counterTotal(t, reader, "courier.campaigns.started"); got != 1 {
		t.Errorf("campaigns.started: want 1, got %d", got)
	}
	if got := counterTotal(t, reader, "courier.campaigns.finished"); got != 1 {
		t.Errorf("campaigns.finished: want 1, got %d", got)
	}
	if got := counterAttr(t, reader, "courier.campaigns.messages", "result", "sent"); got != 7 {
		t.Errorf("campaigns.messages{sent}: want 7, got %d", got)
	}
	if got := counterTotal(t, reader, "courier.campaigns.messages"); got != 10 {
		t.Errorf("campaigns.messages total: want 10, got %d", got)
	}
}

func TestMetricsExtensionCountsBreakerAndCron(t *testing.T) {
	e, reader := newTestExtension(t)
	ctx := context.Background()

	change := breaker.StateChange{
		Name: "whatsapp",
		From: breaker.StateClosed,
		To:   breaker.StateOpen,
		At:   time.Now(),
	}
	if err := e.OnBreakerStateChange(ctx, change); err != nil {
		t.Fatalf("OnBreakerStateChange: %v", err)
	}
	if err := e.OnCronFired(ctx, "dlq-sweep", id.NewJobID()); err != nil {
		t.Fatalf("OnCronFired: %v", err)
	}

	if got := counterAttr(t, reader, "courier.breaker.transitions", "breaker", "whatsapp"); got != 1 {
		t.Errorf("breaker.transitions{whatsapp}: want 1, got %d", got)
	}
	if got := counterAttr(t, reader, "courier.cron.fired", "entry", "dlq-sweep"); got != 1 {
		t.Errorf("cron.fired{dlq-sweep}: want 1, got %d", got)
	}
}

func TestMetricsExtensionViaRegistry(t *testing.T) {
	e, reader := newTestExtension(t)

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()
	run := newTestRun()

	reg.EmitJobEnqueued(ctx, j)
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitJobRetrying(ctx, j, 1, time.Now())
	reg.EmitJobDLQ(ctx, j, errors.New("dead"))
	reg.EmitSyncStarted(ctx, run)
	reg.EmitSyncCompleted(ctx, run, time.Second)
	reg.EmitCampaignStarted(ctx, id.NewCampaignID(), 5)
	reg.EmitCronFired(ctx, "hourly", id.NewJobID())

	for _, name := range []string{
		"courier.jobs.enqueued",
		"courier.jobs.completed",
		"courier.jobs.failed",
		"courier.jobs.retried",
		"courier.jobs.dead_lettered",
		"courier.syncs.started",
		"courier.syncs.finished",
		"courier.campaigns.started",
		"courier.cron.fired",
	} {
		if got := counterTotal(t, reader, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}

func TestMetricsExtensionDefaultNoopSafe(t *testing.T) {
	// Without a global MeterProvider the instruments are noops; every
	// hook must still be callable.
	e := observability.NewMetricsExtension()
	ctx := context.Background()

	if err := e.OnJobEnqueued(ctx, newTestJob()); err != nil {
		t.Fatalf("OnJobEnqueued: %v", err)
	}
	if err := e.OnSyncStarted(ctx, newTestRun()); err != nil {
		t.Fatalf("OnSyncStarted: %v", err)
	}
	if err := e.OnCampaignFinished(ctx, id.NewCampaignID(), 1, 0, 0); err != nil {
		t.Fatalf("OnCampaignFinished: %v", err)
	}
}
