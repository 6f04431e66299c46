package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// EnqueueJob stores the job as a Hash and, when it is queueable, adds it
// to its lane's Sorted Set scored by due time.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return courier.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	if queueable(j.State) {
		pipe.ZAdd(ctx, laneKey(string(j.Lane)), goredis.Z{Score: dueScore(j.RunAt), Member: jID})
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs claims up to limit due jobs, visiting lanes in weight
// order. ZREM is the claim: exactly one of several racing workers
// removes a member, so a job is never handed out twice.
func (s *Store) DequeueJobs(ctx context.Context, lanes []job.Lane, limit int) ([]*job.Job, error) {
	if len(lanes) == 0 {
		lanes = job.Lanes()
	}
	ordered := make([]job.Lane, len(lanes))
	copy(ordered, lanes)
	sort.SliceStable(ordered, func(i, k int) bool {
		return ordered[i].Weight() > ordered[k].Weight()
	})

	now := time.Now().UTC()
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)
	var jobs []*job.Job

	for _, lane := range ordered {
		if limit > 0 && len(jobs) >= limit {
			break
		}
		lk := laneKey(string(lane))

		var count int64
		if limit > 0 {
			count = int64(limit - len(jobs))
		}
		ids, err := s.client.ZRangeByScore(ctx, lk, &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   maxScore,
			Count: count,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("courier/redis: dequeue due jobs: %w", err)
		}

		for _, jID := range ids {
			removed, remErr := s.client.ZRem(ctx, lk, jID).Result()
			if remErr != nil {
				return nil, fmt.Errorf("courier/redis: dequeue claim: %w", remErr)
			}
			if removed == 0 {
				continue // another worker won the claim
			}

			key := jobKey(jID)
			stamp := now.Format(time.RFC3339Nano)
			_, setErr := s.client.HSet(ctx, key,
				"state", string(job.StateRunning),
				"started_at", stamp,
				"updated_at", stamp,
			).Result()
			if setErr != nil {
				return nil, fmt.Errorf("courier/redis: dequeue update: %w", setErr)
			}

			j, getErr := s.getJobByKey(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
			if limit > 0 && len(jobs) >= limit {
				break
			}
		}
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and reconciles its lane
// queue membership with the new state.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	oldLane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return courier.ErrJobNotFound
		}
		return fmt.Errorf("courier/redis: update job get lane: %w", err)
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.ZRem(ctx, laneKey(oldLane), jID)
	if queueable(j.State) {
		pipe.ZAdd(ctx, laneKey(string(j.Lane)), goredis.Z{Score: dueScore(j.RunAt), Member: jID})
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	// Get lane name before deleting to remove from the sorted set.
	lane, err := s.client.HGet(ctx, key, "lane").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return courier.ErrJobNotFound
		}
		return fmt.Errorf("courier/redis: delete job get lane: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, laneKey(lane), jID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// HasPendingJob reports whether a not-yet-running job exists for the
// given hook and fingerprint. An empty fingerprint matches any job for
// the hook.
func (s *Store) HasPendingJob(ctx context.Context, hook, fingerprint string) (bool, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return false, fmt.Errorf("courier/redis: has pending smembers: %w", err)
	}

	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if !queueable(j.State) || j.Hook != hook {
			continue
		}
		if fingerprint != "" && j.Fingerprint != fingerprint {
			continue
		}
		return true, nil
	}
	return false, nil
}

// CancelJobs marks matching pending and retrying jobs cancelled and
// removes them from their lane queues. Running jobs are never touched.
func (s *Store) CancelJobs(ctx context.Context, hook, fingerprint string) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: cancel smembers: %w", err)
	}

	var cancelled int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if !queueable(j.State) || j.Hook != hook {
			continue
		}
		if fingerprint != "" && j.Fingerprint != fingerprint {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, jobKey(jID),
			"state", string(job.StateCancelled),
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
		)
		pipe.ZRem(ctx, laneKey(string(j.Lane)), jID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return cancelled, fmt.Errorf("courier/redis: cancel job: %w", pErr)
		}
		cancelled++
	}
	return cancelled, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return courier.ErrJobNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last liveness signal
// (heartbeat, or start time when no heartbeat arrived) is older than the
// threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateRunning {
			continue
		}
		last := j.StartedAt
		if j.HeartbeatAt != nil {
			last = j.HeartbeatAt
		}
		if last != nil && last.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		count++
	}
	return count, nil
}

// JobStatsByLane returns per-state counts for every lane. Lanes with no
// jobs are present with zero counts.
func (s *Store) JobStatsByLane(ctx context.Context) (map[job.Lane]job.LaneStats, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: stats smembers: %w", err)
	}

	stats := make(map[job.Lane]job.LaneStats, len(job.Lanes()))
	for _, lane := range job.Lanes() {
		stats[lane] = job.LaneStats{}
	}

	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		ls := stats[j.Lane]
		switch j.State {
		case job.StatePending:
			ls.Pending++
		case job.StateRunning:
			ls.Running++
		case job.StateCompleted:
			ls.Completed++
		case job.StateFailed:
			ls.Failed++
		case job.StateRetrying:
			ls.Retrying++
		}
		stats[j.Lane] = ls
	}
	return stats, nil
}

// ── helpers ──

// queueable reports whether a job in this state belongs in a lane queue.
func queueable(state job.State) bool {
	return state == job.StatePending || state == job.StateRetrying
}

// dueScore computes a lane sorted-set score from the job's due time.
// Lower score = due earlier = dequeued first within a lane.
func dueScore(runAt time.Time) float64 {
	return float64(runAt.UnixMilli())
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"hook":         j.Hook,
		"fingerprint":  j.Fingerprint,
		"lane":         string(j.Lane),
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"attempt":      strconv.Itoa(j.Attempt),
		"last_error":   j.LastError,
		"worker_id":    j.WorkerID.String(),
		"run_at":       j.RunAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, courier.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("courier/redis: parse job id: %w", err)
	}

	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	attempt, _ := strconv.Atoi(m["attempt"])             //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: courier.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Hook:        m["hook"],
		Fingerprint: m["fingerprint"],
		Lane:        job.Lane(m["lane"]),
		Payload:     []byte(m["payload"]),
		State:       job.State(m["state"]),
		MaxAttempts: maxAttempts,
		Attempt:     attempt,
		LastError:   m["last_error"],
		RunAt:       runAt,
		Timeout:     time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}
