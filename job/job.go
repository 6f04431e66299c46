package job

import (
	"fmt"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for retry.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly cancelled.
	StateCancelled State = "cancelled"
)

// Job represents a unit of work to be processed by a worker.
type Job struct {
	courier.Entity

	ID          id.JobID      `json:"id"`
	Hook        string        `json:"hook"`
	Fingerprint string        `json:"fingerprint"`
	Lane        Lane          `json:"lane"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	MaxAttempts int           `json:"max_attempts"`
	Attempt     int           `json:"attempt"`
	LastError   string        `json:"last_error,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// New builds a pending job for the given hook. The args are wrapped in a
// versioned envelope and the fingerprint is computed from hook+args so
// pending checks and cancellation can match on identity.
//
// Returns an error if the hook is empty, the lane is unknown, or the args
// cannot be serialized. A job is never persisted half-built.
func New(hook string, args any, opts ...Option) (*Job, error) {
	if hook == "" {
		return nil, fmt.Errorf("job: empty hook")
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.Lane.Valid() {
		return nil, fmt.Errorf("job: unknown lane %q", o.Lane)
	}
	if o.MaxAttempts < 1 {
		return nil, fmt.Errorf("job: max attempts must be at least 1, got %d", o.MaxAttempts)
	}

	fp, err := Fingerprint(hook, args)
	if err != nil {
		return nil, fmt.Errorf("job: fingerprint %q: %w", hook, err)
	}

	now := time.Now().UTC()
	runAt := o.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	payload, err := EncodeEnvelope(args, Meta{
		Lane:       o.Lane,
		Attempt:    0,
		EnqueuedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("job: encode payload for %q: %w", hook, err)
	}

	return &Job{
		Entity:      courier.NewEntity(),
		ID:          id.NewJobID(),
		Hook:        hook,
		Fingerprint: fp,
		Lane:        o.Lane,
		Payload:     payload,
		State:       StatePending,
		MaxAttempts: o.MaxAttempts,
		RunAt:       runAt,
		Timeout:     o.Timeout,
	}, nil
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.State {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Exhausted reports whether the job has used its full attempt budget.
func (j *Job) Exhausted() bool {
	return j.Attempt >= j.MaxAttempts
}
