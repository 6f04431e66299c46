package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// Enqueuer re-submits a previously built payload as a fresh job.
// The scheduler implements this; the indirection keeps the dead letter
// store from depending on scheduling internals.
type Enqueuer interface {
	Resubmit(ctx context.Context, hook, fingerprint string, payload []byte, lane job.Lane, maxAttempts int) (*job.Job, error)
}

// Service provides high-level dead-letter operations over a Store.
type Service struct {
	store Store
	enq   Enqueuer
}

// NewService creates a dead-letter service. The enqueuer may be nil if
// replay is not needed (Replay then returns an error).
func NewService(store Store, enq Enqueuer) *Service {
	return &Service{store: store, enq: enq}
}

// Push builds an Entry from a failed job and persists it.
// The message is captured from the terminal handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, reason Reason, jobErr error) (*Entry, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("dlq: unknown reason %q", reason)
	}

	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Hook:        j.Hook,
		Fingerprint: j.Fingerprint,
		Lane:        j.Lane,
		Payload:     j.Payload,
		Reason:      reason,
		Message:     msg,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	if err := s.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Pending returns up to limit entries awaiting replay or dismissal,
// newest failures first. Zero means no limit.
func (s *Service) Pending(ctx context.Context, limit int) ([]*Entry, error) {
	return s.store.ListDLQ(ctx, ListOpts{Limit: limit})
}

// Dismiss deletes an entry without replaying it.
func (s *Service) Dismiss(ctx context.Context, entryID id.DLQID) error {
	return s.store.DeleteDLQ(ctx, entryID)
}

// Cleanup deletes entries whose failure is older than the retention
// window. Returns the number of entries removed.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	before := time.Now().UTC().Add(-retention)
	return s.store.PurgeDLQ(ctx, before)
}

// Count returns the dead-letter backlog size.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountDLQ(ctx)
}

// DLQStore returns the underlying store for direct access to list and
// get operations.
func (s *Service) DLQStore() Store {
	return s.store
}
