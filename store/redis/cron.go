package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/cron"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// RegisterCron persists a new cron entry. The names Hash enforces unique
// entry names and doubles as the name-to-ID lookup.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()

	_, err := s.client.HGet(ctx, cronNamesKey, entry.Name).Result()
	if err == nil {
		return courier.ErrDuplicateCron
	}
	if !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("courier/redis: register cron check name: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, cronKey(eID), cronToMap(entry))
	pipe.SAdd(ctx, cronIDsKey, eID)
	pipe.HSet(ctx, cronNamesKey, entry.Name, eID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: register cron: %w", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	return s.getCronByKey(ctx, cronKey(entryID.String()))
}

// GetCronByName retrieves a cron entry by its unique name.
func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	eID, err := s.client.HGet(ctx, cronNamesKey, name).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, courier.ErrCronNotFound
		}
		return nil, fmt.Errorf("courier/redis: get cron by name: %w", err)
	}
	return s.getCronByKey(ctx, cronKey(eID))
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	ids, err := s.client.SMembers(ctx, cronIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list crons: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(ids))
	for _, eID := range ids {
		entry, getErr := s.getCronByKey(ctx, cronKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	key := cronKey(entryID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: update last run exists: %w", err)
	}
	if exists == 0 {
		return courier.ErrCronNotFound
	}

	_, err = s.client.HSet(ctx, key,
		"last_run_at", at.Format(time.RFC3339Nano),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: update last run: %w", err)
	}
	return nil
}

// UpdateCronEntry replaces a cron entry and keeps the name index in
// step when the entry is renamed.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	key := cronKey(entry.ID.String())

	oldName, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return courier.ErrCronNotFound
		}
		return fmt.Errorf("courier/redis: update cron get name: %w", err)
	}

	fields := cronToMap(entry)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if oldName != entry.Name {
		pipe.HDel(ctx, cronNamesKey, oldName)
		pipe.HSet(ctx, cronNamesKey, entry.Name, entry.ID.String())
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: update cron: %w", err)
	}
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	eID := entryID.String()
	key := cronKey(eID)

	// Get name for name index cleanup.
	name, err := s.client.HGet(ctx, key, "name").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return courier.ErrCronNotFound
		}
		return fmt.Errorf("courier/redis: delete cron get name: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, cronIDsKey, eID)
	pipe.HDel(ctx, cronNamesKey, name)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: delete cron: %w", err)
	}
	return nil
}

// ── helpers ──

func cronToMap(entry *cron.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":         entry.ID.String(),
		"name":       entry.Name,
		"schedule":   entry.Schedule,
		"hook":       entry.Hook,
		"lane":       string(entry.Lane),
		"args":       string(entry.Args),
		"enabled":    strconv.FormatBool(entry.Enabled),
		"created_at": entry.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": entry.UpdatedAt.Format(time.RFC3339Nano),
	}
	if entry.LastRunAt != nil {
		m["last_run_at"] = entry.LastRunAt.Format(time.RFC3339Nano)
	}
	if entry.NextRunAt != nil {
		m["next_run_at"] = entry.NextRunAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getCronByKey(ctx context.Context, key string) (*cron.Entry, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: get cron: %w", err)
	}
	if len(vals) == 0 {
		return nil, courier.ErrCronNotFound
	}
	return mapToCron(vals)
}

func mapToCron(m map[string]string) (*cron.Entry, error) {
	eID, err := id.ParseCronID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("courier/redis: parse cron id: %w", err)
	}

	enabled, _ := strconv.ParseBool(m["enabled"])                 //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	entry := &cron.Entry{
		Entity: courier.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       eID,
		Name:     m["name"],
		Schedule: m["schedule"],
		Hook:     m["hook"],
		Lane:     job.Lane(m["lane"]),
		Args:     []byte(m["args"]),
		Enabled:  enabled,
	}

	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		entry.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		entry.NextRunAt = &t
	}

	return entry, nil
}
