package dlq

import (
	"context"
	"fmt"

	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// Replay re-submits an entry's original hook and payload as a fresh
// pending job on the normal lane, then removes the entry. The new job
// gets a fresh ID, a zeroed attempt count, and runs immediately.
//
// The replay attempt is recorded on the entry before the enqueue, so if
// the enqueue fails the surviving entry shows how many times replay has
// been tried. Once the enqueue succeeds the entry is deleted; a job is
// never simultaneously active and dead-lettered.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	if s.enq == nil {
		return nil, fmt.Errorf("dlq: replay unavailable: no enqueuer configured")
	}

	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkReplayedDLQ(ctx, entryID); err != nil {
		return nil, fmt.Errorf("dlq: mark replayed %s: %w", entryID, err)
	}

	j, err := s.enq.Resubmit(ctx, entry.Hook, entry.Fingerprint, entry.Payload, job.LaneNormal, entry.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("dlq: resubmit %s: %w", entryID, err)
	}

	if err := s.store.DeleteDLQ(ctx, entryID); err != nil {
		// The job is already enqueued; surface the cleanup failure
		// alongside the new job so the operator can dismiss by hand.
		return j, fmt.Errorf("dlq: delete replayed entry %s: %w", entryID, err)
	}
	return j, nil
}
