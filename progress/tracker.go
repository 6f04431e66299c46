// Package progress tracks a single in-flight bulk operation (such as a
// catalog sync) under concurrent writers.
//
// Many parallel batch handlers report completions against one shared
// run record, so every counter mutation happens inside a named,
// time-bounded mutual-exclusion lock. The lock wait is bounded: on
// timeout the specific update is dropped with a warning instead of
// blocking a worker or corrupting counters. Dropped updates are
// tolerable because later batch completions keep moving the counters
// and a recurring staleness sweep fails out runs that stop advancing.
//
// The read path (Snapshot) takes no lock; records are saved atomically
// so readers always see a consistent run.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
)

// LockName is the named lock guarding all progress mutations. It is
// global rather than per-run because at most one run is in flight.
const LockName = "courier:sync:progress"

// Notifier observes run transitions. Calls are made synchronously right
// after the transition is persisted; implementations must not block.
type Notifier interface {
	SyncStarted(ctx context.Context, run *Run)
	SyncCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	SyncFailed(ctx context.Context, run *Run, reason string)
}

// Tracker coordinates progress reporting for bulk runs.
type Tracker struct {
	store    Store
	locker   Locker
	logger   *slog.Logger
	notifier Notifier

	lockWait     time.Duration
	lockTTL      time.Duration
	pollInterval time.Duration
	failedCap    int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLockWait bounds how long a mutation waits for the named lock
// before being dropped.
func WithLockWait(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lockWait = d
		}
	}
}

// WithLockTTL sets the lock expiry that protects against crashed
// holders.
func WithLockTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lockTTL = d
		}
	}
}

// WithFailedItemsCap bounds the failed-items sample kept on the run.
// The oldest entries are evicted first.
func WithFailedItemsCap(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.failedCap = n
		}
	}
}

// WithNotifier registers an observer for run transitions.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// New creates a tracker. A nil logger falls back to slog.Default.
func New(store Store, locker Locker, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:        store,
		locker:       locker,
		logger:       logger,
		lockWait:     30 * time.Second,
		lockTTL:      60 * time.Second,
		pollInterval: 50 * time.Millisecond,
		failedCap:    50,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a new tracked run of totalItems. If a run is already in
// progress, Start fails closed: it returns the existing run's ID with
// started=false and creates nothing.
func (t *Tracker) Start(ctx context.Context, totalItems int) (id.SyncID, bool, error) {
	if totalItems <= 0 {
		return id.Nil, false, fmt.Errorf("progress: total items must be positive, got %d", totalItems)
	}

	acquired, err := t.acquire(ctx)
	if err != nil {
		return id.Nil, false, err
	}
	if !acquired {
		return id.Nil, false, fmt.Errorf("progress: start sync: %w", courier.ErrLockTimeout)
	}
	defer t.release(ctx)

	existing, err := t.store.GetProgress(ctx)
	switch {
	case err == nil:
		if existing.Status == StatusInProgress {
			return existing.SyncID, false, nil
		}
	case errors.Is(err, courier.ErrNoActiveSync):
		// Fresh slot.
	default:
		return id.Nil, false, err
	}

	now := time.Now().UTC()
	run := &Run{
		SyncID:     id.NewSyncID(),
		Status:     StatusInProgress,
		TotalItems: totalItems,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.store.SaveProgress(ctx, run); err != nil {
		return id.Nil, false, err
	}

	t.logger.Info("sync started",
		slog.String("sync_id", run.SyncID.String()),
		slog.Int("total_items", totalItems))
	if t.notifier != nil {
		t.notifier.SyncStarted(ctx, run)
	}
	return run.SyncID, true, nil
}

// Update applies completion deltas to the run. It returns true when
// the deltas were applied.
//
// Over-reports are clamped rather than rejected: the processed delta is
// capped at the run's remaining capacity, the failed delta is kept in
// preference, and the success delta is derived as processed minus
// failed, so the Processed == Succeeded + Failed invariant holds after
// every update and Processed never exceeds TotalItems. The run
// auto-completes once Processed reaches TotalItems.
//
// Updates against a finished, cleared, or superseded run are dropped
// with a warning and return false; so are updates that time out on the
// lock. Neither is an error: the next batch completion or the staleness
// sweep moves the run forward.
func (t *Tracker) Update(ctx context.Context, syncID id.SyncID, processedDelta, successDelta, failedDelta int) (bool, error) {
	if processedDelta < 0 || successDelta < 0 || failedDelta < 0 {
		return false, fmt.Errorf("progress: negative delta (%d, %d, %d)", processedDelta, successDelta, failedDelta)
	}

	return t.withLock(ctx, "update", func(ctx context.Context) (bool, error) {
		run, ok, err := t.currentRun(ctx, syncID, "update")
		if !ok || err != nil {
			return false, err
		}

		pd := processedDelta
		if remaining := run.TotalItems - run.Processed; pd > remaining {
			t.logger.Warn("progress over-report clamped",
				slog.String("sync_id", syncID.String()),
				slog.Int("processed_delta", pd),
				slog.Int("remaining", remaining))
			pd = remaining
		}
		fd := failedDelta
		if fd > pd {
			fd = pd
		}
		sd := pd - fd

		now := time.Now().UTC()
		run.Processed += pd
		run.Succeeded += sd
		run.Failed += fd
		run.UpdatedAt = now
		if run.Processed >= run.TotalItems {
			run.Status = StatusCompleted
			run.CompletedAt = &now
		}

		if err := t.store.SaveProgress(ctx, run); err != nil {
			return false, err
		}
		if run.Status == StatusCompleted {
			t.logger.Info("sync completed",
				slog.String("sync_id", syncID.String()),
				slog.Int("succeeded", run.Succeeded),
				slog.Int("failed", run.Failed))
			if t.notifier != nil {
				t.notifier.SyncCompleted(ctx, run, now.Sub(run.StartedAt))
			}
		}
		return true, nil
	})
}

// AddFailure records one failed work item on the run. The sample is
// capped; the oldest entries are evicted first.
func (t *Tracker) AddFailure(ctx context.Context, syncID id.SyncID, itemID, errMsg string) (bool, error) {
	return t.withLock(ctx, "add_failure", func(ctx context.Context) (bool, error) {
		run, ok, err := t.currentRun(ctx, syncID, "add_failure")
		if !ok || err != nil {
			return false, err
		}

		run.FailedItems = append(run.FailedItems, FailedItem{
			ItemID: itemID,
			Error:  errMsg,
			At:     time.Now().UTC(),
		})
		if overflow := len(run.FailedItems) - t.failedCap; overflow > 0 {
			run.FailedItems = run.FailedItems[overflow:]
		}
		run.UpdatedAt = time.Now().UTC()

		if err := t.store.SaveProgress(ctx, run); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Fail marks the run failed with an unrecoverable reason.
func (t *Tracker) Fail(ctx context.Context, syncID id.SyncID, reason string) (bool, error) {
	return t.withLock(ctx, "fail", func(ctx context.Context) (bool, error) {
		run, ok, err := t.currentRun(ctx, syncID, "fail")
		if !ok || err != nil {
			return false, err
		}

		now := time.Now().UTC()
		run.Status = StatusFailed
		run.FailureReason = reason
		run.UpdatedAt = now
		run.CompletedAt = &now

		if err := t.store.SaveProgress(ctx, run); err != nil {
			return false, err
		}
		t.logger.Warn("sync failed",
			slog.String("sync_id", syncID.String()),
			slog.String("reason", reason))
		if t.notifier != nil {
			t.notifier.SyncFailed(ctx, run, reason)
		}
		return true, nil
	})
}

// Clear removes the run record. While a run is in progress Clear
// refuses unless force is set.
func (t *Tracker) Clear(ctx context.Context, force bool) (bool, error) {
	return t.withLock(ctx, "clear", func(ctx context.Context) (bool, error) {
		run, err := t.store.GetProgress(ctx)
		if errors.Is(err, courier.ErrNoActiveSync) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		if run.Status == StatusInProgress && !force {
			t.logger.Warn("refusing to clear in-progress sync",
				slog.String("sync_id", run.SyncID.String()))
			return false, nil
		}

		if err := t.store.ClearProgress(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Snapshot returns the current run augmented with derived percentage,
// elapsed time, rate, and ETA. Returns courier.ErrNoActiveSync when no
// run record exists. The read path takes no lock.
func (t *Tracker) Snapshot(ctx context.Context) (*Snapshot, error) {
	run, err := t.store.GetProgress(ctx)
	if err != nil {
		return nil, err
	}
	return run.Snapshot(time.Now().UTC()), nil
}

// FailStale fails the current run if it is in progress but has not
// advanced within staleAfter. The engine schedules this as a recurring
// maintenance job so a run whose updates were all lost cannot hang
// in_progress forever.
func (t *Tracker) FailStale(ctx context.Context, staleAfter time.Duration) (bool, error) {
	return t.withLock(ctx, "fail_stale", func(ctx context.Context) (bool, error) {
		run, err := t.store.GetProgress(ctx)
		if errors.Is(err, courier.ErrNoActiveSync) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if run.Status != StatusInProgress {
			return false, nil
		}

		now := time.Now().UTC()
		if now.Sub(run.UpdatedAt) <= staleAfter {
			return false, nil
		}

		run.Status = StatusFailed
		run.FailureReason = fmt.Sprintf("stalled: no progress updates for %s", staleAfter)
		run.UpdatedAt = now
		run.CompletedAt = &now

		if err := t.store.SaveProgress(ctx, run); err != nil {
			return false, err
		}
		t.logger.Warn("stale sync failed out",
			slog.String("sync_id", run.SyncID.String()),
			slog.Duration("stale_after", staleAfter))
		if t.notifier != nil {
			t.notifier.SyncFailed(ctx, run, run.FailureReason)
		}
		return true, nil
	})
}

// ──────────────────────────────────────────────────
// Lock discipline
// ──────────────────────────────────────────────────

// withLock runs fn while holding the named progress lock. When the
// bounded wait expires the mutation is dropped with a warning and
// (false, nil) is returned; the stored record is untouched.
func (t *Tracker) withLock(ctx context.Context, op string, fn func(ctx context.Context) (bool, error)) (bool, error) {
	acquired, err := t.acquire(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		t.logger.Warn("progress mutation dropped: lock wait timed out",
			slog.String("op", op),
			slog.Duration("lock_wait", t.lockWait))
		return false, nil
	}
	defer t.release(ctx)

	return fn(ctx)
}

// acquire polls the try-acquire lock primitive until it wins or the
// bounded wait expires. Returns false on timeout.
func (t *Tracker) acquire(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(t.lockWait)
	for {
		ok, err := t.locker.AcquireLock(ctx, LockName, t.lockTTL)
		if err != nil {
			return false, fmt.Errorf("progress: acquire lock: %w", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		timer := time.NewTimer(t.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// release frees the named lock. It survives caller cancellation so a
// finished mutation never leaks its lock until TTL expiry.
func (t *Tracker) release(ctx context.Context) {
	if err := t.locker.ReleaseLock(context.WithoutCancel(ctx), LockName); err != nil {
		t.logger.Warn("progress lock release failed", slog.String("error", err.Error()))
	}
}

// currentRun loads the run and checks it is the one the caller is
// reporting against and still accepting updates. A false result means
// the mutation should be dropped quietly.
func (t *Tracker) currentRun(ctx context.Context, syncID id.SyncID, op string) (*Run, bool, error) {
	run, err := t.store.GetProgress(ctx)
	if errors.Is(err, courier.ErrNoActiveSync) {
		t.logger.Warn("progress mutation dropped: no active sync",
			slog.String("op", op),
			slog.String("sync_id", syncID.String()))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if run.SyncID != syncID {
		t.logger.Warn("progress mutation dropped: stale sync id",
			slog.String("op", op),
			slog.String("sync_id", syncID.String()),
			slog.String("current", run.SyncID.String()))
		return nil, false, nil
	}
	if run.Status != StatusInProgress {
		t.logger.Debug("progress mutation dropped: run finished",
			slog.String("op", op),
			slog.String("sync_id", syncID.String()),
			slog.String("status", string(run.Status)))
		return nil, false, nil
	}
	return run, true, nil
}
