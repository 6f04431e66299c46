package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier/breaker"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
)

// BatchArgs is the payload for one catalog sync batch job.
type BatchArgs struct {
	SyncID  id.SyncID `json:"sync_id"`
	Batch   int       `json:"batch"`
	Batches int       `json:"batches"`
	Items   []Item    `json:"items"`
}

// Definition returns the batch job definition for registration with the
// job registry.
func (s *Syncer) Definition() *job.Definition[BatchArgs] {
	return job.NewDefinition(HookSyncBatch, s.HandleBatch,
		job.WithLane(job.LaneBulk),
		job.WithMaxAttempts(3),
		job.WithTimeout(10*time.Minute))
}

// HandleBatch pushes one batch of items and reports their outcomes to
// the progress tracker.
//
// Each item's outcome is recorded exactly once across all attempts of
// the batch: an item-scoped claim is taken right before the push and the
// item is counted in the same invocation, so a re-run of the batch skips
// items whose outcome is already in the counters. Item-level push
// failures are tolerated and counted; the batch itself fails only on
// infrastructure errors (claim storage, open circuit), which returns it
// to the host retry path for the items not yet claimed.
//
// An open circuit defers the rest of the batch instead of burning item
// outcomes on a dependency that is known-down. Counts accumulated
// before the deferral are flushed first.
func (s *Syncer) HandleBatch(ctx context.Context, args BatchArgs) error {
	if len(args.Items) == 0 {
		return nil
	}

	var processed, succeeded, failed int
	flush := func() {
		if processed == 0 {
			return
		}
		applied, err := s.tracker.Update(ctx, args.SyncID, processed, succeeded, failed)
		if err != nil {
			s.logger.Error("progress update failed",
				slog.String("sync_id", args.SyncID.String()),
				slog.Int("batch", args.Batch),
				slog.String("error", err.Error()))
			return
		}
		if !applied {
			s.logger.Warn("progress update dropped",
				slog.String("sync_id", args.SyncID.String()),
				slog.Int("batch", args.Batch))
		}
	}

	for i, item := range args.Items {
		if s.guard.State() == breaker.StateOpen {
			flush()
			return fmt.Errorf("catalog: batch %d/%d deferred after %d of %d items: %w",
				args.Batch, args.Batches, i, len(args.Items), breaker.ErrOpen)
		}

		key := ledger.Key("catalog_push", args.SyncID.String(), item.ID)
		won, err := s.claims.Claim(ctx, key, s.claimTTL)
		if err != nil {
			flush()
			return fmt.Errorf("catalog: claim item %s: %w", item.ID, err)
		}
		if !won {
			// Outcome already counted by an earlier attempt of this batch.
			continue
		}

		pushErr := s.pushItem(ctx, item)
		processed++
		if pushErr == nil {
			succeeded++
			continue
		}

		failed++
		if _, err := s.tracker.AddFailure(ctx, args.SyncID, item.ID, pushErr.Error()); err != nil {
			s.logger.Warn("could not record item failure",
				slog.String("sync_id", args.SyncID.String()),
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()))
		}

		if errors.Is(pushErr, breaker.ErrOpen) {
			// The circuit opened between the state check and the push.
			// This item is claimed, so its outcome is recorded as a
			// failure; the remaining items defer with the batch.
			flush()
			return fmt.Errorf("catalog: batch %d/%d deferred after %d of %d items: %w",
				args.Batch, args.Batches, i+1, len(args.Items), breaker.ErrOpen)
		}

		s.logger.Warn("item push failed",
			slog.String("sync_id", args.SyncID.String()),
			slog.String("item_id", item.ID),
			slog.String("error", pushErr.Error()))
	}

	flush()
	return nil
}

func (s *Syncer) pushItem(ctx context.Context, item Item) error {
	return s.policy.Do(ctx, func(ctx context.Context) error {
		return s.guard.Do(ctx, func(ctx context.Context) error {
			return s.pusher.PushItem(ctx, item)
		})
	})
}
