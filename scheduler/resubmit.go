package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// Resubmit enqueues a previously built payload as a fresh pending job.
// The payload is already enveloped and is reused verbatim, so the new job
// runs with the original args; the ID is fresh and the attempt count is
// zero. The dead letter service calls this during replay.
func (s *Service) Resubmit(ctx context.Context, hook, fingerprint string, payload []byte, lane job.Lane, maxAttempts int) (*job.Job, error) {
	if hook == "" {
		return nil, fmt.Errorf("scheduler: resubmit: empty hook")
	}
	if !lane.Valid() {
		return nil, fmt.Errorf("scheduler: resubmit: unknown lane %q", lane)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("scheduler: resubmit: max attempts must be at least 1, got %d", maxAttempts)
	}

	j := &job.Job{
		Entity:      courier.NewEntity(),
		ID:          id.NewJobID(),
		Hook:        hook,
		Fingerprint: fingerprint,
		Lane:        lane,
		Payload:     payload,
		State:       job.StatePending,
		MaxAttempts: maxAttempts,
		RunAt:       time.Now().UTC(),
	}

	if err := s.store.EnqueueJob(ctx, j); err != nil {
		return nil, fmt.Errorf("scheduler: resubmit %q: %w", hook, err)
	}

	if s.extensions != nil {
		s.extensions.EmitJobEnqueued(ctx, j)
	}

	s.logger.Info("job resubmitted",
		slog.String("job_id", j.ID.String()),
		slog.String("hook", j.Hook),
		slog.String("lane", string(j.Lane)))

	return j, nil
}

// EnqueueRaw schedules a job whose args are already JSON. The cron
// scheduler uses this to fire stored entries, whose args were serialized
// at registration time.
func (s *Service) EnqueueRaw(ctx context.Context, hook string, args []byte, opts ...job.Option) (id.JobID, error) {
	raw := json.RawMessage(args)
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	j, err := s.Schedule(ctx, hook, raw, opts...)
	if err != nil {
		return id.Nil, err
	}
	return j.ID, nil
}
