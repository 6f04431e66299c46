package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// FailedJob is one row in the merged failure view. Dead-lettered jobs
// carry their dead letter reason and entry ID; jobs that reached the
// failed state without an entry (the dead letter push itself failed, or
// no dead letter store is wired) appear with DeadLettered false.
type FailedJob struct {
	JobID        id.JobID   `json:"job_id"`
	Hook         string     `json:"hook"`
	Lane         job.Lane   `json:"lane"`
	Attempt      int        `json:"attempt"`
	MaxAttempts  int        `json:"max_attempts"`
	Message      string     `json:"message"`
	FailedAt     time.Time  `json:"failed_at"`
	DeadLettered bool       `json:"dead_lettered"`
	Reason       dlq.Reason `json:"reason,omitempty"`
	EntryID      id.DLQID   `json:"entry_id,omitempty"`
}

// FailedJobs returns the merged failure view: dead letter entries plus
// store-failed jobs that never made it into the dead letter store, newest
// failures first. A job that appears in both sources is reported once,
// from its dead letter entry. Limit zero means no limit.
func (s *Service) FailedJobs(ctx context.Context, limit int) ([]*FailedJob, error) {
	var out []*FailedJob
	seen := make(map[string]bool)

	if s.dlqStore != nil {
		entries, err := s.dlqStore.ListDLQ(ctx, dlq.ListOpts{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("scheduler: list dead letters: %w", err)
		}
		for _, e := range entries {
			seen[e.JobID.String()] = true
			out = append(out, &FailedJob{
				JobID:        e.JobID,
				Hook:         e.Hook,
				Lane:         e.Lane,
				Attempt:      e.Attempt,
				MaxAttempts:  e.MaxAttempts,
				Message:      e.Message,
				FailedAt:     e.FailedAt,
				DeadLettered: true,
				Reason:       e.Reason,
				EntryID:      e.ID,
			})
		}
	}

	failed, err := s.store.ListJobsByState(ctx, job.StateFailed, job.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("scheduler: list failed jobs: %w", err)
	}
	for _, j := range failed {
		if seen[j.ID.String()] {
			continue
		}
		out = append(out, &FailedJob{
			JobID:       j.ID,
			Hook:        j.Hook,
			Lane:        j.Lane,
			Attempt:     j.Attempt,
			MaxAttempts: j.MaxAttempts,
			Message:     j.LastError,
			FailedAt:    j.UpdatedAt,
		})
	}

	sort.SliceStable(out, func(i, k int) bool {
		return out[i].FailedAt.After(out[k].FailedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
