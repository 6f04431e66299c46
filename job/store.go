package job

import (
	"context"
	"time"

	"github.com/waveline/courier/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
	// State filters by job state. Empty means all states.
	State State
}

// LaneStats holds per-state job counts for one lane.
type LaneStats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Retrying  int64 `json:"retrying"`
}

// Store defines the persistence contract for jobs.
type Store interface {
	// EnqueueJob persists a new job in pending state.
	EnqueueJob(ctx context.Context, j *Job) error

	// DequeueJobs atomically claims up to limit due jobs from the given
	// lanes, sets them to running, and returns them. Only jobs whose
	// RunAt is not in the future are eligible. Jobs are ordered by lane
	// weight (descending) then RunAt (ascending); both pending and
	// retrying jobs are eligible.
	DequeueJobs(ctx context.Context, lanes []Lane, limit int) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// HasPendingJob reports whether a not-yet-running job exists for the
	// given hook and fingerprint.
	HasPendingJob(ctx context.Context, hook, fingerprint string) (bool, error)

	// CancelJobs marks matching pending and retrying jobs cancelled and
	// returns how many were affected. An empty fingerprint matches every
	// job for the hook. Running jobs are never touched.
	CancelJobs(ctx context.Context, hook, fingerprint string) (int64, error)

	// HeartbeatJob updates the heartbeat timestamp for a running job,
	// indicating the worker is still alive.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// ReapStaleJobs returns running jobs whose last heartbeat is older than
	// the given threshold, indicating the worker may have crashed.
	ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// JobStatsByLane returns per-state counts for every lane.
	JobStatsByLane(ctx context.Context) (map[Lane]LaneStats, error)
}
