package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/broadcast"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
	"github.com/waveline/courier/ledger"
	"github.com/waveline/courier/progress"
	"github.com/waveline/courier/store"
)

// Ensure Store implements the full composite contract at compile time.
var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs      map[string]*job.Job
	dlqs      map[string]*dlq.Entry
	claims    map[string]*ledger.Record
	crons     map[string]*cron.Entry
	campaigns map[string]*broadcast.Campaign

	// run is the singleton progress slot; nil means no active record.
	run *progress.Run

	// locks maps lock names to their expiry.
	locks map[string]time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.Job),
		dlqs:      make(map[string]*dlq.Entry),
		claims:    make(map[string]*ledger.Record),
		crons:     make(map[string]*cron.Entry),
		campaigns: make(map[string]*broadcast.Campaign),
		locks:     make(map[string]time.Time),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return courier.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// lanes, sets them to running, and returns them.
func (m *Store) DequeueJobs(_ context.Context, lanes []job.Lane, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	laneSet := make(map[job.Lane]struct{}, len(lanes))
	for _, l := range lanes {
		laneSet[l] = struct{}{}
	}

	now := time.Now().UTC()

	// Collect candidates.
	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(laneSet) > 0 {
			if _, ok := laneSet[j.Lane]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// Sort: lane weight DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		wi, wk := candidates[i].Lane.Weight(), candidates[k].Lane.Weight()
		if wi != wk {
			return wi > wk
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateRunning
		n := now
		j.StartedAt = &n
		j.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, courier.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return courier.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return courier.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// HasPendingJob reports whether a not-yet-running job exists for the
// given hook and fingerprint. An empty fingerprint matches any job for
// the hook.
func (m *Store) HasPendingJob(_ context.Context, hook, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if j.Hook != hook {
			continue
		}
		if fingerprint != "" && j.Fingerprint != fingerprint {
			continue
		}
		return true, nil
	}
	return false, nil
}

// CancelJobs marks matching pending and retrying jobs cancelled.
// Running jobs are never touched.
func (m *Store) CancelJobs(_ context.Context, hook, fingerprint string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var count int64
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if j.Hook != hook {
			continue
		}
		if fingerprint != "" && j.Fingerprint != fingerprint {
			continue
		}
		j.State = job.StateCancelled
		j.UpdatedAt = now
		count++
	}
	return count, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return courier.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	j.WorkerID = workerID
	j.UpdatedAt = now
	return nil
}

// ReapStaleJobs returns running jobs whose last liveness signal
// (heartbeat, or start time when no heartbeat arrived) is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		last := j.StartedAt
		if j.HeartbeatAt != nil {
			last = j.HeartbeatAt
		}
		if last != nil && last.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Lane != "" && j.Lane != opts.Lane {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// JobStatsByLane returns per-state counts for every lane. Every known
// lane appears in the result, zero-valued when empty.
func (m *Store) JobStatsByLane(_ context.Context) (map[job.Lane]job.LaneStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[job.Lane]job.LaneStats, len(job.Lanes()))
	for _, l := range job.Lanes() {
		stats[l] = job.LaneStats{}
	}

	for _, j := range m.jobs {
		s := stats[j.Lane]
		switch j.State {
		case job.StatePending:
			s.Pending++
		case job.StateRunning:
			s.Running++
		case job.StateCompleted:
			s.Completed++
		case job.StateFailed:
			s.Failed++
		case job.StateRetrying:
			s.Retrying++
		}
		stats[j.Lane] = s
	}
	return stats, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter store.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries matching the given options, newest failures
// first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Hook != "" && e.Hook != opts.Hook {
			continue
		}
		if opts.Reason != "" && e.Reason != opts.Reason {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, courier.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// MarkReplayedDLQ increments the entry's replay count and stamps
// ReplayedAt.
func (m *Store) MarkReplayedDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return courier.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayCount++
	e.ReplayedAt = &now
	return nil
}

// DeleteDLQ removes a single entry by ID.
func (m *Store) DeleteDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.dlqs[key]; !ok {
		return courier.ErrDLQNotFound
	}
	delete(m.dlqs, key)
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter store.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Ledger Store
// ──────────────────────────────────────────────────

// ClaimKey atomically inserts the record unless an unexpired record
// with the same key already exists. An expired record is taken over.
func (m *Store) ClaimKey(_ context.Context, rec *ledger.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.claims[rec.Key]; ok && !existing.Expired(now) {
		return false, nil
	}
	cp := *rec
	m.claims[rec.Key] = &cp
	return true, nil
}

// GetClaim retrieves a claim record by key, expired or not. Returns
// nil when no record exists.
func (m *Store) GetClaim(_ context.Context, key string) (*ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.claims[key]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// SweepExpiredClaims removes records whose ExpiresAt is at or before
// now.
func (m *Store) SweepExpiredClaims(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, r := range m.claims {
		if r.Expired(now) {
			delete(m.claims, key)
			count++
		}
	}
	return count, nil
}

// CountClaims returns the number of live claim records.
func (m *Store) CountClaims(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC()
	var count int64
	for _, r := range m.claims {
		if !r.Expired(now) {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Progress Store
// ──────────────────────────────────────────────────

// SaveProgress persists the run, replacing any existing record.
func (m *Store) SaveProgress(_ context.Context, run *progress.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run = copyRun(run)
	return nil
}

// GetProgress returns the current run record.
func (m *Store) GetProgress(_ context.Context) (*progress.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.run == nil {
		return nil, courier.ErrNoActiveSync
	}
	return copyRun(m.run), nil
}

// ClearProgress removes the current run record.
func (m *Store) ClearProgress(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run = nil
	return nil
}

// copyRun copies a run including its failed-item slice, so callers can
// append to their copy without racing with the stored one.
func copyRun(r *progress.Run) *progress.Run {
	cp := *r
	if len(r.FailedItems) > 0 {
		cp.FailedItems = append([]progress.FailedItem(nil), r.FailedItems...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ──────────────────────────────────────────────────
// Campaign Store
// ──────────────────────────────────────────────────

// CreateCampaign persists a new campaign.
func (m *Store) CreateCampaign(_ context.Context, c *broadcast.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, exists := m.campaigns[key]; exists {
		return courier.ErrCampaignExists
	}
	cp := *c
	m.campaigns[key] = &cp
	return nil
}

// GetCampaign retrieves a campaign by ID.
func (m *Store) GetCampaign(_ context.Context, campaignID id.CampaignID) (*broadcast.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.campaigns[campaignID.String()]
	if !ok {
		return nil, courier.ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCampaigns returns campaigns matching the given options, newest
// first.
func (m *Store) ListCampaigns(_ context.Context, opts broadcast.ListOpts) ([]*broadcast.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*broadcast.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		if opts.State != "" && c.State != opts.State {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// IncrementCampaignCounters atomically adds the deltas to the
// campaign's counters and returns the updated campaign.
func (m *Store) IncrementCampaignCounters(_ context.Context, campaignID id.CampaignID, queued, sent, failed, skipped int64) (*broadcast.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID.String()]
	if !ok {
		return nil, courier.ErrCampaignNotFound
	}
	c.Queued += queued
	c.Sent += sent
	c.Failed += failed
	c.Skipped += skipped
	c.UpdatedAt = time.Now().UTC()

	cp := *c
	return &cp, nil
}

// CompleteCampaign transitions the campaign from running to completed.
// Returns false when the campaign is not running, so exactly one of
// several concurrent finishers observes the transition.
func (m *Store) CompleteCampaign(_ context.Context, campaignID id.CampaignID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID.String()]
	if !ok {
		return false, courier.ErrCampaignNotFound
	}
	if c.State != broadcast.StateRunning {
		return false, nil
	}
	now := time.Now().UTC()
	c.State = broadcast.StateCompleted
	c.CompletedAt = &now
	c.UpdatedAt = now
	return true, nil
}

// FailCampaign transitions the campaign from running to failed with
// the given reason.
func (m *Store) FailCampaign(_ context.Context, campaignID id.CampaignID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID.String()]
	if !ok {
		return false, courier.ErrCampaignNotFound
	}
	if c.State != broadcast.StateRunning {
		return false, nil
	}
	now := time.Now().UTC()
	c.State = broadcast.StateFailed
	c.FailureReason = reason
	c.CompletedAt = &now
	c.UpdatedAt = now
	return true, nil
}

// ──────────────────────────────────────────────────
// Cron Store
// ──────────────────────────────────────────────────

// RegisterCron persists a new cron entry. Returns an error if the name
// already exists.
func (m *Store) RegisterCron(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.crons {
		if e.Name == entry.Name {
			return courier.ErrDuplicateCron
		}
	}

	cp := *entry
	m.crons[entry.ID.String()] = &cp
	return nil
}

// GetCron retrieves a cron entry by ID.
func (m *Store) GetCron(_ context.Context, entryID id.CronID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return nil, courier.ErrCronNotFound
	}
	cp := *e
	return &cp, nil
}

// GetCronByName retrieves a cron entry by its unique name.
func (m *Store) GetCronByName(_ context.Context, name string) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.crons {
		if e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, courier.ErrCronNotFound
}

// ListCrons returns all cron entries.
func (m *Store) ListCrons(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.crons))
	for _, e := range m.crons {
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (m *Store) UpdateCronLastRun(_ context.Context, entryID id.CronID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return courier.ErrCronNotFound
	}
	e.LastRunAt = &at
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateCronEntry updates a cron entry (Enabled, NextRunAt, etc.).
func (m *Store) UpdateCronEntry(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	if _, ok := m.crons[key]; !ok {
		return courier.ErrCronNotFound
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	m.crons[key] = &cp
	return nil
}

// DeleteCron removes a cron entry by ID.
func (m *Store) DeleteCron(_ context.Context, entryID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.crons[key]; !ok {
		return courier.ErrCronNotFound
	}
	delete(m.crons, key)
	return nil
}

// ──────────────────────────────────────────────────
// Lock Store
// ──────────────────────────────────────────────────

// AcquireLock attempts to take the named lock. Returns false when the
// lock is held and its TTL has not lapsed; an expired lock is taken
// over.
func (m *Store) AcquireLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if until, held := m.locks[name]; held && until.After(now) {
		return false, nil
	}
	m.locks[name] = now.Add(ttl)
	return true, nil
}

// ReleaseLock releases the named lock. Releasing an unheld lock is a
// no-op; callers only release locks they acquired.
func (m *Store) ReleaseLock(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, name)
	return nil
}

// paginate applies offset and limit to a sorted result slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
