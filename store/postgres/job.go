package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// EnqueueJob persists a new job in pending state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_jobs (
			id, hook, fingerprint, lane, lane_weight, payload, state,
			max_attempts, attempt, last_error, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18
		)`,
		j.ID.String(), j.Hook, j.Fingerprint, string(j.Lane), j.Lane.Weight(),
		j.Payload, string(j.State),
		j.MaxAttempts, j.Attempt, j.LastError, j.WorkerID.String(),
		j.RunAt, j.StartedAt, j.CompletedAt, j.HeartbeatAt, j.Timeout.Nanoseconds(),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return courier.ErrJobAlreadyExists
		}
		return fmt.Errorf("courier/postgres: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// lanes, sets them to running, and returns them. Uses SELECT FOR UPDATE
// SKIP LOCKED for concurrent-safe dequeue.
func (s *Store) DequeueJobs(ctx context.Context, lanes []job.Lane, limit int) ([]*job.Job, error) {
	if len(lanes) == 0 {
		lanes = job.Lanes()
	}

	rows, err := s.pool.Query(ctx, `
		WITH dequeued AS (
			UPDATE courier_jobs
			SET state = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM courier_jobs
				WHERE state IN ('pending', 'retrying')
				  AND lane = ANY($1)
				  AND run_at <= NOW()
				ORDER BY lane_weight DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING
				id, hook, fingerprint, lane, lane_weight, payload, state,
				max_attempts, attempt, last_error, worker_id,
				run_at, started_at, completed_at, heartbeat_at, timeout,
				created_at, updated_at
		)
		SELECT
			id, hook, fingerprint, lane, payload, state,
			max_attempts, attempt, last_error, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		FROM dequeued ORDER BY lane_weight DESC, run_at ASC`,
		laneNames(lanes), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: dequeue jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, hook, fingerprint, lane, payload, state,
			max_attempts, attempt, last_error, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		FROM courier_jobs
		WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrJobNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_jobs SET
			hook = $2, fingerprint = $3, lane = $4, lane_weight = $5,
			payload = $6, state = $7, max_attempts = $8, attempt = $9,
			last_error = $10, worker_id = $11, run_at = $12,
			started_at = $13, completed_at = $14, heartbeat_at = $15,
			timeout = $16, updated_at = NOW()
		WHERE id = $1`,
		j.ID.String(), j.Hook, j.Fingerprint, string(j.Lane), j.Lane.Weight(),
		j.Payload, string(j.State), j.MaxAttempts, j.Attempt,
		j.LastError, j.WorkerID.String(), j.RunAt,
		j.StartedAt, j.CompletedAt, j.HeartbeatAt,
		j.Timeout.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courier_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("courier/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `
		SELECT
			id, hook, fingerprint, lane, payload, state,
			max_attempts, attempt, last_error, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		FROM courier_jobs
		WHERE state = $1`
	args := []interface{}{string(state)}
	argIdx := 2

	if opts.Lane != "" {
		query += fmt.Sprintf(" AND lane = $%d", argIdx)
		args = append(args, string(opts.Lane))
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// HasPendingJob reports whether a not-yet-running job exists for the
// given hook and fingerprint.
func (s *Store) HasPendingJob(ctx context.Context, hook, fingerprint string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM courier_jobs
			WHERE state IN ('pending', 'retrying') AND hook = $1`
	args := []interface{}{hook}

	if fingerprint != "" {
		query += ` AND fingerprint = $2`
		args = append(args, fingerprint)
	}
	query += `)`

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("courier/postgres: has pending job: %w", err)
	}
	return exists, nil
}

// CancelJobs marks matching pending and retrying jobs cancelled and
// returns how many were affected. Running jobs are never touched.
func (s *Store) CancelJobs(ctx context.Context, hook, fingerprint string) (int64, error) {
	query := `
		UPDATE courier_jobs
		SET state = 'cancelled', updated_at = NOW()
		WHERE state IN ('pending', 'retrying') AND hook = $1`
	args := []interface{}{hook}

	if fingerprint != "" {
		query += ` AND fingerprint = $2`
		args = append(args, fingerprint)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: cancel jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE courier_jobs SET heartbeat_at = NOW(), worker_id = $2, updated_at = NOW() WHERE id = $1`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("courier/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return courier.ErrJobNotFound
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last liveness signal (heartbeat,
// or start time when no heartbeat arrived) is older than the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			id, hook, fingerprint, lane, payload, state,
			max_attempts, attempt, last_error, worker_id,
			run_at, started_at, completed_at, heartbeat_at, timeout,
			created_at, updated_at
		FROM courier_jobs
		WHERE state = 'running'
		  AND COALESCE(heartbeat_at, started_at) < NOW() - $1::interval`,
		threshold.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: reap stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM courier_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Lane != "" {
		query += fmt.Sprintf(" AND lane = $%d", argIdx)
		args = append(args, string(opts.Lane))
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count jobs: %w", err)
	}
	return count, nil
}

// JobStatsByLane returns per-state counts for every lane. Lanes with no
// jobs are present with zero counts.
func (s *Store) JobStatsByLane(ctx context.Context) (map[job.Lane]job.LaneStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lane, state, COUNT(*) FROM courier_jobs GROUP BY lane, state`,
	)
	if err != nil {
		return nil, fmt.Errorf("courier/postgres: job stats by lane: %w", err)
	}
	defer rows.Close()

	stats := make(map[job.Lane]job.LaneStats, len(job.Lanes()))
	for _, lane := range job.Lanes() {
		stats[lane] = job.LaneStats{}
	}

	for rows.Next() {
		var (
			laneStr  string
			stateStr string
			count    int64
		)
		if err := rows.Scan(&laneStr, &stateStr, &count); err != nil {
			return nil, fmt.Errorf("courier/postgres: scan lane stats row: %w", err)
		}

		lane := job.Lane(laneStr)
		ls := stats[lane]
		switch job.State(stateStr) {
		case job.StatePending:
			ls.Pending = count
		case job.StateRunning:
			ls.Running = count
		case job.StateCompleted:
			ls.Completed = count
		case job.StateFailed:
			ls.Failed = count
		case job.StateRetrying:
			ls.Retrying = count
		}
		stats[lane] = ls
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate lane stats rows: %w", err)
	}
	return stats, nil
}

// laneNames converts lanes to their string form for array binding.
func laneNames(lanes []job.Lane) []string {
	names := make([]string, len(lanes))
	for i, lane := range lanes {
		names[i] = string(lane)
	}
	return names
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		laneStr   string
		stateStr  string
		workerStr string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &j.Hook, &j.Fingerprint, &laneStr, &j.Payload, &stateStr,
		&j.MaxAttempts, &j.Attempt, &j.LastError, &workerStr,
		&j.RunAt, &j.StartedAt, &j.CompletedAt, &j.HeartbeatAt, &timeoutNs,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Lane = job.Lane(laneStr)
	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if workerStr != "" {
		parsedWorker, workerErr := id.ParseWorkerID(workerStr)
		if workerErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("courier/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
