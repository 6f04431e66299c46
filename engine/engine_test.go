package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/backoff"
	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/engine"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/progress"
	"github.com/waveline/courier/store/memory"
)

// ──────────────────────────────────────────────────
// Test payloads
// ──────────────────────────────────────────────────

type receiptArgs struct {
	OrderID string `json:"order_id"`
	Phone   string `json:"phone"`
}

// ──────────────────────────────────────────────────
// End-to-end: Register → Schedule → Process
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd_RegisterScheduleProcess(t *testing.T) {
	s := memory.New()
	c, err := courier.New(
		courier.WithStore(s),
		courier.WithConcurrency(2),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	var processed atomic.Bool
	var gotArgs receiptArgs
	def := job.NewDefinition("send_receipt", func(_ context.Context, a receiptArgs) error {
		gotArgs = a
		processed.Store(true)
		return nil
	})
	engine.Register(eng, def)

	// Schedule.
	j, err := eng.Schedule(context.Background(), "send_receipt", receiptArgs{
		OrderID: "ord_81",
		Phone:   "+2348012345678",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if j.Hook != "send_receipt" {
		t.Errorf("job.Hook = %q, want %q", j.Hook, "send_receipt")
	}
	if j.State != job.StatePending {
		t.Errorf("job.State = %q, want %q", j.State, job.StatePending)
	}

	// Start processing.
	if startErr := eng.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait for processing.
	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// Verify args.
	if gotArgs.OrderID != "ord_81" {
		t.Errorf("args.OrderID = %q, want %q", gotArgs.OrderID, "ord_81")
	}
	if gotArgs.Phone != "+2348012345678" {
		t.Errorf("args.Phone = %q, want %q", gotArgs.Phone, "+2348012345678")
	}

	// Verify job state in store.
	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("job.State = %q, want %q", got.State, job.StateCompleted)
	}

	// Stop.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Extension lifecycle events
// ──────────────────────────────────────────────────

type lifecycleTracker struct {
	enqueued      atomic.Bool
	started       atomic.Bool
	completed     atomic.Bool
	failed        atomic.Bool
	shutdown      atomic.Bool
	retryingCount atomic.Int32
	dlq           atomic.Bool

	// Sync hooks.
	syncStarted   atomic.Bool
	syncCompleted atomic.Bool
	syncFailed    atomic.Bool

	// Breaker hooks.
	mu             sync.Mutex
	breakerChanges []breaker.StateChange

	// Cron hooks.
	cronFired      atomic.Bool
	cronFiredEntry atomic.Value // stores string
	cronFiredJobID atomic.Value // stores id.JobID
}

func (e *lifecycleTracker) Name() string { return "lifecycle-tracker" }

func (e *lifecycleTracker) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.enqueued.Store(true)
	return nil
}

func (e *lifecycleTracker) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.started.Store(true)
	return nil
}

func (e *lifecycleTracker) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *lifecycleTracker) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.failed.Store(true)
	return nil
}

func (e *lifecycleTracker) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.retryingCount.Add(1)
	return nil
}

func (e *lifecycleTracker) OnJobDLQ(_ context.Context, _ *job.Job, _ error) error {
	e.dlq.Store(true)
	return nil
}

func (e *lifecycleTracker) OnShutdown(_ context.Context) error {
	e.shutdown.Store(true)
	return nil
}

func (e *lifecycleTracker) OnSyncStarted(_ context.Context, _ *progress.Run) error {
	e.syncStarted.Store(true)
	return nil
}

func (e *lifecycleTracker) OnSyncCompleted(_ context.Context, _ *progress.Run, _ time.Duration) error {
	e.syncCompleted.Store(true)
	return nil
}

func (e *lifecycleTracker) OnSyncFailed(_ context.Context, _ *progress.Run, _ string) error {
	e.syncFailed.Store(true)
	return nil
}

func (e *lifecycleTracker) OnBreakerStateChange(_ context.Context, change breaker.StateChange) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakerChanges = append(e.breakerChanges, change)
	return nil
}

func (e *lifecycleTracker) OnCronFired(_ context.Context, entryName string, jobID id.JobID) error {
	e.cronFired.Store(true)
	e.cronFiredEntry.Store(entryName)
	e.cronFiredJobID.Store(jobID)
	return nil
}

func TestEngine_ExtensionLifecycleEvents(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c, engine.WithExtension(tracker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	var processed atomic.Bool
	engine.Register(eng, job.NewDefinition("tracked_job", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return nil
	}))

	// Schedule fires OnJobEnqueued.
	_, err = eng.Schedule(context.Background(), "tracked_job", struct{}{})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !tracker.enqueued.Load() {
		t.Error("expected OnJobEnqueued to fire on schedule")
	}

	// Start and wait for processing.
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// Give extensions a moment to fire.
	time.Sleep(50 * time.Millisecond)

	if !tracker.started.Load() {
		t.Error("expected OnJobStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnJobCompleted to fire")
	}

	// Stop fires OnShutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !tracker.shutdown.Load() {
		t.Error("expected OnShutdown to fire on stop")
	}
}

// ──────────────────────────────────────────────────
// Failed job triggers OnJobFailed
// ──────────────────────────────────────────────────

func TestEngine_FailedJobExtension(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c, engine.WithExtension(tracker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	var processed atomic.Bool
	engine.Register(eng, job.NewDefinition("failing_job", func(_ context.Context, _ struct{}) error {
		processed.Store(true)
		return errors.New("intentional failure")
	}))

	// MaxAttempts=1 so the job goes to the dead letter store with no retries.
	if _, err := eng.Schedule(context.Background(), "failing_job", struct{}{},
		job.WithMaxAttempts(1),
	); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	// Give extensions a moment to fire.
	time.Sleep(50 * time.Millisecond)

	if !tracker.failed.Load() {
		t.Error("expected OnJobFailed to fire for failing job")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Graceful shutdown drains the pool
// ──────────────────────────────────────────────────

func TestEngine_GracefulShutdown(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s), courier.WithConcurrency(4))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	engine.Register(eng, job.NewDefinition("noop", func(_ context.Context, _ struct{}) error {
		return nil
	}))

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the pool start.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Schedule with options
// ──────────────────────────────────────────────────

func TestEngine_ScheduleWithOptions(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	engine.Register(eng, job.NewDefinition("payment_webhook", func(_ context.Context, _ struct{}) error {
		return nil
	}))

	scheduled := time.Now().UTC().Add(1 * time.Hour)
	j, err := eng.Schedule(context.Background(), "payment_webhook", struct{}{},
		job.WithLane(job.LaneCritical),
		job.WithMaxAttempts(5),
		job.WithRunAt(scheduled),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if j.Lane != job.LaneCritical {
		t.Errorf("Lane = %q, want %q", j.Lane, job.LaneCritical)
	}
	if j.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want %d", j.MaxAttempts, 5)
	}
	if !j.RunAt.Equal(scheduled) {
		t.Errorf("RunAt = %v, want %v", j.RunAt, scheduled)
	}
}

// ──────────────────────────────────────────────────
// Build errors
// ──────────────────────────────────────────────────

func TestEngine_BuildNoStore(t *testing.T) {
	c, err := courier.New()
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	_, err = engine.Build(c)
	if !errors.Is(err, courier.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got: %v", err)
	}
}

// badStore only implements Storer but not store.Store.
type badStore struct{}

func (badStore) Migrate(_ context.Context) error { return nil }
func (badStore) Ping(_ context.Context) error    { return nil }
func (badStore) Close() error                    { return nil }

func TestEngine_BuildBadStore(t *testing.T) {
	c, err := courier.New(courier.WithStore(badStore{}))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	_, err = engine.Build(c)
	if err == nil {
		t.Fatal("expected error for store that doesn't implement store.Store")
	}
}

// ──────────────────────────────────────────────────
// Multiple jobs processed concurrently
// ──────────────────────────────────────────────────

func TestEngine_ConcurrentJobs(t *testing.T) {
	s := memory.New()
	c, err := courier.New(
		courier.WithStore(s),
		courier.WithConcurrency(4),
		courier.WithLogger(slog.Default()),
	)
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	var count atomic.Int32
	engine.Register(eng, job.NewDefinition("counter", func(_ context.Context, _ struct{}) error {
		count.Add(1)
		time.Sleep(10 * time.Millisecond) // Simulate work.
		return nil
	}))

	// Schedule 20 jobs.
	for range 20 {
		if _, err := eng.Schedule(context.Background(), "counter", struct{}{}); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for all jobs.
	deadline := time.After(10 * time.Second)
	for count.Load() < 20 {
		select {
		case <-deadline:
			t.Fatalf("timed out: only %d/20 jobs processed", count.Load())
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := count.Load(); got != 20 {
		t.Errorf("processed %d jobs, want 20", got)
	}
}

// ──────────────────────────────────────────────────
// Retry, backoff and dead letters
// ──────────────────────────────────────────────────

func TestEngine_RetryThenSucceed(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c,
		engine.WithExtension(tracker),
		engine.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	// Handler fails first 2 calls, succeeds on 3rd.
	var attempts atomic.Int32
	var processed atomic.Bool
	engine.Register(eng, job.NewDefinition("retry_succeed", func(_ context.Context, _ struct{}) error {
		n := attempts.Add(1)
		if n <= 2 {
			return errors.New("transient error")
		}
		processed.Store(true)
		return nil
	}))

	j, err := eng.Schedule(context.Background(), "retry_succeed", struct{}{},
		job.WithMaxAttempts(3),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if startErr := eng.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	deadline := time.After(10 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to succeed after retries")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	// Give extensions a moment to fire.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// Verify job state.
	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("job state = %q, want %q", got.State, job.StateCompleted)
	}
	if got.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", got.Attempt)
	}

	// Verify extensions.
	if tracker.retryingCount.Load() != 2 {
		t.Errorf("retrying events = %d, want 2", tracker.retryingCount.Load())
	}
	if tracker.dlq.Load() {
		t.Error("expected no dead letter event")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnJobCompleted to fire")
	}
}

func TestEngine_ExhaustAttemptsToDeadLetter(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c,
		engine.WithExtension(tracker),
		engine.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	// Handler always fails.
	var attempts atomic.Int32
	engine.Register(eng, job.NewDefinition("always_fail", func(_ context.Context, _ struct{}) error {
		attempts.Add(1)
		return errors.New("permanent error")
	}))

	j, err := eng.Schedule(context.Background(), "always_fail", struct{}{},
		job.WithMaxAttempts(2),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if startErr := eng.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait for the job to exhaust attempts and reach the dead letter store.
	deadline := time.After(10 * time.Second)
	for !tracker.dlq.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to reach the dead letter store")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	// Give extensions a moment to fire.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// Verify job state.
	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed {
		t.Errorf("job state = %q, want %q", got.State, job.StateFailed)
	}

	// Verify the dead letter store.
	dlqCount, err := s.CountDLQ(context.Background())
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if dlqCount != 1 {
		t.Errorf("dead letter count = %d, want 1", dlqCount)
	}

	// Verify extensions.
	if !tracker.failed.Load() {
		t.Error("expected OnJobFailed to fire")
	}
	if !tracker.dlq.Load() {
		t.Error("expected OnJobDLQ to fire")
	}
	if tracker.retryingCount.Load() != 1 {
		t.Errorf("retrying events = %d, want 1", tracker.retryingCount.Load())
	}
}

func TestEngine_DeadLetterReplay(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c,
		engine.WithExtension(tracker),
		engine.WithBackoff(backoff.NewConstant(10*time.Millisecond)),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	// Phase 1: the handler fails once to park the job in the dead
	// letter store, then succeeds on replay.
	var attempts atomic.Int32
	var succeeded atomic.Bool
	engine.Register(eng, job.NewDefinition("replay_job", func(_ context.Context, _ struct{}) error {
		n := attempts.Add(1)
		if n <= 1 {
			return errors.New("initial failure")
		}
		succeeded.Store(true)
		return nil
	}))

	_, err = eng.Schedule(context.Background(), "replay_job", struct{}{},
		job.WithMaxAttempts(1),
	)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if startErr := eng.Start(context.Background()); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait for the dead letter.
	deadline := time.After(10 * time.Second)
	for !tracker.dlq.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to reach the dead letter store")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	// Give it a moment for store updates.
	time.Sleep(50 * time.Millisecond)

	// Find the dead letter entry.
	dlqStore := eng.DLQService().DLQStore()
	entries, listErr := dlqStore.ListDLQ(context.Background(), dlq.ListOpts{})
	if listErr != nil {
		t.Fatalf("ListDLQ: %v", listErr)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead letter entry, got %d", len(entries))
	}

	// Phase 2: replay the entry. The handler succeeds on the 2nd attempt.
	replayedJob, replayErr := eng.DLQService().Replay(context.Background(), entries[0].ID)
	if replayErr != nil {
		t.Fatalf("Replay: %v", replayErr)
	}

	// Wait for the replayed job to succeed.
	deadline = time.After(10 * time.Second)
	for !succeeded.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for replayed job to succeed")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	// Give the store time to update.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(ctx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// Verify replayed job state.
	got, err := s.GetJob(context.Background(), replayedJob.ID)
	if err != nil {
		t.Fatalf("GetJob for replayed job: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("replayed job state = %q, want %q", got.State, job.StateCompleted)
	}

	// A successful replay removes the entry; a job is never active and
	// dead-lettered at once.
	if _, err := dlqStore.GetDLQ(context.Background(), entries[0].ID); !errors.Is(err, courier.ErrDLQNotFound) {
		t.Errorf("GetDLQ after replay: err = %v, want ErrDLQNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Sync progress notifications
// ──────────────────────────────────────────────────

func TestEngine_SyncNotificationsFlowToExtensions(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c, engine.WithExtension(tracker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	ctx := context.Background()
	syncID, started, err := eng.Progress().Start(ctx, 2)
	if err != nil {
		t.Fatalf("Start sync: %v", err)
	}
	if !started {
		t.Fatal("expected sync to start")
	}
	if !tracker.syncStarted.Load() {
		t.Error("expected OnSyncStarted to fire")
	}

	if _, err := eng.Progress().Update(ctx, syncID, 2, 2, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !tracker.syncCompleted.Load() {
		t.Error("expected OnSyncCompleted to fire when all items are accounted")
	}
	if tracker.syncFailed.Load() {
		t.Error("unexpected OnSyncFailed")
	}
}

// ──────────────────────────────────────────────────
// Breaker state changes reach extensions
// ──────────────────────────────────────────────────

func TestEngine_BreakerStateChangeReachesExtensions(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c,
		engine.WithExtension(tracker),
		engine.WithBreakerDefaults(breaker.Settings{FailureThreshold: 2, Cooldown: time.Minute}),
	)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	b := eng.Breakers().Get("whatsapp")
	boom := errors.New("gateway down")
	for range 2 {
		_ = b.Do(context.Background(), func(_ context.Context) error { return boom })
	}

	if got := b.State(); got != breaker.StateOpen {
		t.Fatalf("breaker state = %q, want %q", got, breaker.StateOpen)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if len(tracker.breakerChanges) == 0 {
		t.Fatal("expected a breaker state change event")
	}
	change := tracker.breakerChanges[len(tracker.breakerChanges)-1]
	if change.Name != "whatsapp" {
		t.Errorf("change.Name = %q, want %q", change.Name, "whatsapp")
	}
	if change.To != breaker.StateOpen {
		t.Errorf("change.To = %q, want %q", change.To, breaker.StateOpen)
	}
}

// ──────────────────────────────────────────────────
// Cron scheduling
// ──────────────────────────────────────────────────

type reportArgs struct {
	Report string `json:"report"`
}

func TestEngine_CronFiresAndEnqueuesJob(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	// Register the job handler that the cron will enqueue.
	var processed atomic.Bool
	var gotArgs atomic.Value
	engine.Register(eng, job.NewDefinition("daily_report", func(_ context.Context, a reportArgs) error {
		gotArgs.Store(a)
		processed.Store(true)
		return nil
	}))

	// Register a cron that fires every second.
	ctx := context.Background()
	err = engine.RegisterRecurring(ctx, eng, &cron.Definition[reportArgs]{
		Name:     "daily-report",
		Schedule: "@every 1s",
		Hook:     "daily_report",
		Args:     reportArgs{Report: "sales"},
		Lane:     job.LaneMaintenance,
	})
	if err != nil {
		t.Fatalf("RegisterRecurring: %v", err)
	}

	// Start the engine (starts scheduler + pool).
	if startErr := eng.Start(ctx); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait for the job handler to be invoked (cron fires → enqueues → pool processes).
	deadline := time.After(10 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for cron-enqueued job to be processed")
		default:
			time.Sleep(50 * time.Millisecond)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(stopCtx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// Verify args round-tripped correctly.
	args, ok := gotArgs.Load().(reportArgs)
	if !ok {
		t.Fatal("expected reportArgs to be stored")
	}
	if args.Report != "sales" {
		t.Errorf("args.Report = %q, want %q", args.Report, "sales")
	}

	// Verify the cron entry was updated.
	entries, err := s.ListCrons(context.Background())
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 cron entry, got %d", len(entries))
	}
	if entries[0].LastRunAt == nil {
		t.Error("expected LastRunAt to be set after cron fired")
	}
}

func TestEngine_CronExtensionHookFires(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	tracker := &lifecycleTracker{}
	eng, err := engine.Build(c, engine.WithExtension(tracker))
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	engine.Register(eng, job.NewDefinition("hook_job", func(_ context.Context, _ struct{}) error {
		return nil
	}))

	ctx := context.Background()
	err = engine.RegisterRecurring(ctx, eng, &cron.Definition[struct{}]{
		Name:     "hook-cron",
		Schedule: "@every 1s",
		Hook:     "hook_job",
		Lane:     job.LaneMaintenance,
	})
	if err != nil {
		t.Fatalf("RegisterRecurring: %v", err)
	}

	if startErr := eng.Start(ctx); startErr != nil {
		t.Fatalf("Start: %v", startErr)
	}

	// Wait for the cron hook to fire.
	deadline := time.After(5 * time.Second)
	for !tracker.cronFired.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for OnCronFired hook")
		default:
			time.Sleep(50 * time.Millisecond)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if stopErr := eng.Stop(stopCtx); stopErr != nil {
		t.Fatalf("Stop: %v", stopErr)
	}

	// Verify the hook received the correct entry name.
	entryName, ok := tracker.cronFiredEntry.Load().(string)
	if !ok || entryName != "hook-cron" {
		t.Errorf("OnCronFired entry = %q, want %q", entryName, "hook-cron")
	}
}

func TestEngine_RegisterRecurringIdempotent(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	engine.Register(eng, job.NewDefinition("idempotent_job", func(_ context.Context, _ struct{}) error {
		return nil
	}))

	ctx := context.Background()
	def := &cron.Definition[struct{}]{
		Name:     "idempotent-cron",
		Schedule: "@every 1s",
		Hook:     "idempotent_job",
		Lane:     job.LaneNormal,
	}

	// First registration.
	if regErr := engine.RegisterRecurring(ctx, eng, def); regErr != nil {
		t.Fatalf("first RegisterRecurring: %v", regErr)
	}

	// Second registration should be idempotent.
	if regErr := engine.RegisterRecurring(ctx, eng, def); regErr != nil {
		t.Fatalf("second RegisterRecurring should be idempotent: %v", regErr)
	}

	// Verify only one entry exists.
	entries, err := s.ListCrons(ctx)
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 cron entry after idempotent registration, got %d", len(entries))
	}
}

func TestEngine_RegisterRecurringInvalidSchedule(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	err = engine.RegisterRecurring(context.Background(), eng, &cron.Definition[struct{}]{
		Name:     "bad-cron",
		Schedule: "not-a-valid-schedule",
		Hook:     "noop",
		Lane:     job.LaneNormal,
	})
	if err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

// ──────────────────────────────────────────────────
// Maintenance registration
// ──────────────────────────────────────────────────

func TestEngine_RegisterMaintenance(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	ctx := context.Background()
	if err := engine.RegisterMaintenance(ctx, eng, engine.MaintenanceConfig{}); err != nil {
		t.Fatalf("RegisterMaintenance: %v", err)
	}

	// All three handlers should be registered.
	for _, hook := range []string{engine.HookDLQSweep, engine.HookLedgerSweep, engine.HookSyncReap} {
		if _, ok := eng.Registry().Get(hook); !ok {
			t.Errorf("expected handler for hook %q", hook)
		}
	}

	// All three cron entries should exist on the maintenance lane.
	entries, err := s.ListCrons(ctx)
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 cron entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Lane != job.LaneMaintenance {
			t.Errorf("cron %q lane = %q, want %q", e.Name, e.Lane, job.LaneMaintenance)
		}
		if !e.Enabled {
			t.Errorf("cron %q should be enabled", e.Name)
		}
	}

	// Re-registration is idempotent.
	if err := engine.RegisterMaintenance(ctx, eng, engine.MaintenanceConfig{}); err != nil {
		t.Fatalf("second RegisterMaintenance: %v", err)
	}
	entries, err = s.ListCrons(ctx)
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 cron entries after idempotent registration, got %d", len(entries))
	}
}

// ──────────────────────────────────────────────────
// Health through the engine
// ──────────────────────────────────────────────────

func TestEngine_HealthHandleEmptySystem(t *testing.T) {
	s := memory.New()
	c, err := courier.New(courier.WithStore(s))
	if err != nil {
		t.Fatalf("courier.New: %v", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	report := eng.Health().Check(context.Background())
	if !report.Healthy {
		t.Errorf("empty system should be healthy, reasons: %v", report.Reasons)
	}
}
