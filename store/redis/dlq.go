package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/dlq"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// PushDLQ adds a failed job entry to the dead letter store. Entries are
// indexed by failure time so listing can walk newest first without
// fetching everything.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, dlqKey(eID), entryToMap(entry))
	pipe.SAdd(ctx, dlqIDsKey, eID)
	pipe.ZAdd(ctx, dlqByFailureKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: push dlq entry: %w", err)
	}
	return nil
}

// ListDLQ returns entries matching the given options, newest failures first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, dlqByFailureKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list dlq zrevrange: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(ids))
	for _, eID := range ids {
		entry, getErr := s.getEntryByKey(ctx, dlqKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.Hook != "" && entry.Hook != opts.Hook {
			continue
		}
		if opts.Reason != "" && entry.Reason != opts.Reason {
			continue
		}
		entries = append(entries, entry)
	}

	// Apply offset/limit.
	if opts.Offset >= len(entries) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Offset > 0 {
		entries = entries[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetDLQ retrieves an entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	return s.getEntryByKey(ctx, dlqKey(entryID.String()))
}

// MarkReplayedDLQ increments the entry's replay count and stamps ReplayedAt.
func (s *Store) MarkReplayedDLQ(ctx context.Context, entryID id.DLQID) error {
	key := dlqKey(entryID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: mark replayed exists: %w", err)
	}
	if exists == 0 {
		return courier.ErrDLQNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "replay_count", 1)
	pipe.HSet(ctx, key, "replayed_at", time.Now().UTC().Format(time.RFC3339Nano))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: mark replayed: %w", err)
	}
	return nil
}

// DeleteDLQ removes a single entry by ID.
func (s *Store) DeleteDLQ(ctx context.Context, entryID id.DLQID) error {
	eID := entryID.String()
	key := dlqKey(eID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: delete dlq exists: %w", err)
	}
	if exists == 0 {
		return courier.ErrDLQNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, dlqIDsKey, eID)
	pipe.ZRem(ctx, dlqByFailureKey, eID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: delete dlq entry: %w", err)
	}
	return nil
}

// PurgeDLQ removes entries that failed before the given time. The
// failure-time index turns this into a range query instead of a full walk.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	maxScore := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := s.client.ZRangeByScore(ctx, dlqByFailureKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: purge dlq range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, dlqKey(eID))
		pipe.SRem(ctx, dlqIDsKey, eID)
		pipe.ZRem(ctx, dlqByFailureKey, eID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("courier/redis: purge dlq: %w", err)
	}
	return int64(len(ids)), nil
}

// CountDLQ returns the total number of entries in the dead letter store.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, dlqIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: count dlq: %w", err)
	}
	return count, nil
}

// ── helpers ──

func entryToMap(entry *dlq.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":           entry.ID.String(),
		"job_id":       entry.JobID.String(),
		"hook":         entry.Hook,
		"fingerprint":  entry.Fingerprint,
		"lane":         string(entry.Lane),
		"payload":      string(entry.Payload),
		"reason":       string(entry.Reason),
		"message":      entry.Message,
		"attempt":      strconv.Itoa(entry.Attempt),
		"max_attempts": strconv.Itoa(entry.MaxAttempts),
		"failed_at":    entry.FailedAt.Format(time.RFC3339Nano),
		"replay_count": strconv.Itoa(entry.ReplayCount),
		"created_at":   entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.ReplayedAt != nil {
		m["replayed_at"] = entry.ReplayedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getEntryByKey(ctx context.Context, key string) (*dlq.Entry, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: get dlq entry: %w", err)
	}
	if len(vals) == 0 {
		return nil, courier.ErrDLQNotFound
	}
	return mapToEntry(vals)
}

func mapToEntry(m map[string]string) (*dlq.Entry, error) {
	eID, err := id.ParseDLQID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("courier/redis: parse dlq id: %w", err)
	}

	attempt, _ := strconv.Atoi(m["attempt"])          //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data
	replayCount, _ := strconv.Atoi(m["replay_count"]) //nolint:errcheck // best-effort parse from trusted Redis data

	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	entry := &dlq.Entry{
		ID:          eID,
		Hook:        m["hook"],
		Fingerprint: m["fingerprint"],
		Lane:        job.Lane(m["lane"]),
		Payload:     []byte(m["payload"]),
		Reason:      dlq.Reason(m["reason"]),
		Message:     m["message"],
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		FailedAt:    failedAt,
		ReplayCount: replayCount,
		CreatedAt:   createdAt,
	}

	if jid := m["job_id"]; jid != "" {
		entry.JobID, _ = id.ParseJobID(jid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["replayed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		entry.ReplayedAt = &t
	}

	return entry, nil
}
