package progress_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/progress"
	"github.com/waveline/courier/store/memory"
)

func newTracker(t *testing.T, opts ...progress.Option) (*progress.Tracker, *memory.Store) {
	t.Helper()
	s := memory.New()
	return progress.New(s, s, nil, opts...), s
}

// deniedLocker simulates permanent lock contention.
type deniedLocker struct{}

func (deniedLocker) AcquireLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return false, nil
}

func (deniedLocker) ReleaseLock(_ context.Context, _ string) error { return nil }

func TestStart_CreatesRun(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, started, err := tr.Start(ctx, 237)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !started {
		t.Fatal("expected started=true for fresh run")
	}
	if syncID.IsNil() {
		t.Fatal("expected a sync ID")
	}

	snap, err := tr.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Status != progress.StatusInProgress {
		t.Errorf("Status = %q, want %q", snap.Status, progress.StatusInProgress)
	}
	if snap.TotalItems != 237 {
		t.Errorf("TotalItems = %d, want 237", snap.TotalItems)
	}
}

func TestStart_FailsClosedWhileInProgress(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	first, started, err := tr.Start(ctx, 100)
	if err != nil || !started {
		t.Fatalf("Start: %v started=%v", err, started)
	}

	second, started, err := tr.Start(ctx, 500)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started {
		t.Error("second Start should not create a run while one is in progress")
	}
	if second != first {
		t.Errorf("second Start returned %v, want existing %v", second, first)
	}

	// The original totals are untouched.
	snap, _ := tr.Snapshot(ctx)
	if snap.TotalItems != 100 {
		t.Errorf("TotalItems = %d, want 100", snap.TotalItems)
	}
}

func TestStart_AfterCompletionCreatesNewRun(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	first, _, _ := tr.Start(ctx, 1)
	if ok, err := tr.Update(ctx, first, 1, 1, 0); err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}

	second, started, err := tr.Start(ctx, 5)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !started {
		t.Fatal("expected a fresh run after the previous completed")
	}
	if second == first {
		t.Error("expected a new sync ID")
	}
}

func TestStart_RejectsNonPositiveTotals(t *testing.T) {
	tr, _ := newTracker(t)

	if _, _, err := tr.Start(context.Background(), 0); err == nil {
		t.Error("expected error for zero total")
	}
	if _, _, err := tr.Start(context.Background(), -5); err == nil {
		t.Error("expected error for negative total")
	}
}

func TestUpdate_InvariantHolds(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 100)

	steps := [][3]int{{10, 8, 2}, {5, 5, 0}, {20, 0, 20}, {0, 0, 0}}
	for _, s := range steps {
		ok, err := tr.Update(ctx, syncID, s[0], s[1], s[2])
		if err != nil {
			t.Fatalf("Update%v: %v", s, err)
		}
		if !ok {
			t.Fatalf("Update%v returned false", s)
		}

		snap, _ := tr.Snapshot(ctx)
		if snap.Processed != snap.Succeeded+snap.Failed {
			t.Fatalf("invariant broken after %v: processed=%d succeeded=%d failed=%d",
				s, snap.Processed, snap.Succeeded, snap.Failed)
		}
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Processed != 35 || snap.Succeeded != 13 || snap.Failed != 22 {
		t.Errorf("totals = (%d, %d, %d), want (35, 13, 22)",
			snap.Processed, snap.Succeeded, snap.Failed)
	}
}

func TestUpdate_AutoCompletes(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 10)
	if _, err := tr.Update(ctx, syncID, 10, 10, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Status != progress.StatusCompleted {
		t.Errorf("Status = %q, want %q", snap.Status, progress.StatusCompleted)
	}
	if snap.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if snap.Percent != 100.0 {
		t.Errorf("Percent = %v, want 100.0", snap.Percent)
	}
}

func TestUpdate_OverReportClampedFailuresPreferred(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 10)
	if _, err := tr.Update(ctx, syncID, 8, 8, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Remaining capacity is 2 but the caller reports 5 (2 ok, 3 failed).
	ok, err := tr.Update(ctx, syncID, 5, 2, 3)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !ok {
		t.Fatal("clamped update should still apply")
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Processed != 10 {
		t.Errorf("Processed = %d, want 10 (never exceeds total)", snap.Processed)
	}
	if snap.Failed != 2 {
		t.Errorf("Failed = %d, want 2 (failures kept in preference)", snap.Failed)
	}
	if snap.Succeeded != 8 {
		t.Errorf("Succeeded = %d, want 8", snap.Succeeded)
	}
	if snap.Processed != snap.Succeeded+snap.Failed {
		t.Error("invariant broken after clamp")
	}
	if snap.Status != progress.StatusCompleted {
		t.Errorf("Status = %q, want completed", snap.Status)
	}
}

func TestUpdate_RejectsNegativeDeltas(t *testing.T) {
	tr, _ := newTracker(t)
	syncID, _, _ := tr.Start(context.Background(), 10)

	if _, err := tr.Update(context.Background(), syncID, -1, 0, 0); err == nil {
		t.Error("expected error for negative delta")
	}
}

func TestUpdate_StaleSyncIDDropped(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	if _, _, err := tr.Start(ctx, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok, err := tr.Update(ctx, id.NewSyncID(), 1, 1, 0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Error("update against a different sync id should be dropped")
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Processed != 0 {
		t.Errorf("Processed = %d, want 0 (record unchanged)", snap.Processed)
	}
}

func TestUpdate_LockTimeoutDropsUpdate(t *testing.T) {
	s := memory.New()
	real := progress.New(s, s, nil)
	ctx := context.Background()

	syncID, _, _ := real.Start(ctx, 10)
	if _, err := real.Update(ctx, syncID, 3, 3, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Same store, but every acquisition is denied.
	contended := progress.New(s, deniedLocker{}, nil,
		progress.WithLockWait(50*time.Millisecond))

	ok, err := contended.Update(ctx, syncID, 5, 5, 0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok {
		t.Error("update should be dropped on lock timeout")
	}

	// The stored record is unchanged from before the call.
	snap, _ := real.Snapshot(ctx)
	if snap.Processed != 3 || snap.Succeeded != 3 {
		t.Errorf("record changed after dropped update: processed=%d succeeded=%d",
			snap.Processed, snap.Succeeded)
	}
}

func TestUpdate_ConcurrentWriters(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	const writers = 20
	syncID, _, _ := tr.Start(ctx, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Update(ctx, syncID, 1, 1, 0); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, _ := tr.Snapshot(ctx)
	if snap.Processed != writers || snap.Succeeded != writers {
		t.Errorf("processed=%d succeeded=%d, want %d each", snap.Processed, snap.Succeeded, writers)
	}
	if snap.Status != progress.StatusCompleted {
		t.Errorf("Status = %q, want completed", snap.Status)
	}
}

func TestAddFailure_CapEvictsOldest(t *testing.T) {
	tr, _ := newTracker(t, progress.WithFailedItemsCap(3))
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 100)
	for _, item := range []string{"p1", "p2", "p3", "p4", "p5"} {
		ok, err := tr.AddFailure(ctx, syncID, item, "push rejected")
		if err != nil || !ok {
			t.Fatalf("AddFailure(%s): ok=%v err=%v", item, ok, err)
		}
	}

	snap, _ := tr.Snapshot(ctx)
	if len(snap.FailedItems) != 3 {
		t.Fatalf("FailedItems len = %d, want 3", len(snap.FailedItems))
	}
	if snap.FailedItems[0].ItemID != "p3" || snap.FailedItems[2].ItemID != "p5" {
		t.Errorf("expected oldest evicted, got %v", snap.FailedItems)
	}
}

func TestFail_MarksRunFailed(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 10)
	ok, err := tr.Fail(ctx, syncID, "catalog API revoked token")
	if err != nil || !ok {
		t.Fatalf("Fail: ok=%v err=%v", ok, err)
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Status != progress.StatusFailed {
		t.Errorf("Status = %q, want %q", snap.Status, progress.StatusFailed)
	}
	if snap.FailureReason != "catalog API revoked token" {
		t.Errorf("FailureReason = %q", snap.FailureReason)
	}

	// A failed run accepts no more updates.
	ok, _ = tr.Update(ctx, syncID, 1, 1, 0)
	if ok {
		t.Error("update after Fail should be dropped")
	}
}

func TestClear_RefusesInProgressUnlessForced(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	if _, _, err := tr.Start(ctx, 10); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ok, err := tr.Clear(ctx, false)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok {
		t.Error("Clear without force should refuse while in progress")
	}
	if _, err := tr.Snapshot(ctx); err != nil {
		t.Error("record should still exist after refused clear")
	}

	ok, err = tr.Clear(ctx, true)
	if err != nil || !ok {
		t.Fatalf("forced Clear: ok=%v err=%v", ok, err)
	}
	if _, err := tr.Snapshot(ctx); !errors.Is(err, courier.ErrNoActiveSync) {
		t.Errorf("expected ErrNoActiveSync after clear, got %v", err)
	}
}

func TestClear_FinishedRunWithoutForce(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 1)
	if _, err := tr.Update(ctx, syncID, 1, 1, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ok, err := tr.Clear(ctx, false)
	if err != nil || !ok {
		t.Fatalf("Clear of finished run: ok=%v err=%v", ok, err)
	}
}

func TestSnapshot_ZeroElapsedNoDivisionError(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 100)
	if _, err := tr.Update(ctx, syncID, 10, 10, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Immediately after start: elapsed may round to zero seconds.
	snap, err := tr.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.RatePerSecond < 0 {
		t.Errorf("RatePerSecond = %v, want >= 0", snap.RatePerSecond)
	}
	if snap.ETASeconds != nil && *snap.ETASeconds < 0 {
		t.Errorf("ETASeconds = %d, want nil or >= 0", *snap.ETASeconds)
	}
	if snap.Remaining != 90 {
		t.Errorf("Remaining = %d, want 90", snap.Remaining)
	}
}

func TestSnapshot_NoActiveSync(t *testing.T) {
	tr, _ := newTracker(t)
	if _, err := tr.Snapshot(context.Background()); !errors.Is(err, courier.ErrNoActiveSync) {
		t.Errorf("expected ErrNoActiveSync, got %v", err)
	}
}

func TestFailStale(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	syncID, _, _ := tr.Start(ctx, 10)
	if _, err := tr.Update(ctx, syncID, 1, 1, 0); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// A fresh run is not stale.
	ok, err := tr.FailStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if ok {
		t.Error("fresh run should not be failed out")
	}

	time.Sleep(30 * time.Millisecond)
	ok, err = tr.FailStale(ctx, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if !ok {
		t.Fatal("stale run should be failed out")
	}

	snap, _ := tr.Snapshot(ctx)
	if snap.Status != progress.StatusFailed {
		t.Errorf("Status = %q, want failed", snap.Status)
	}
}
