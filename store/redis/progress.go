package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/progress"
)

// SaveProgress persists the run as a single JSON document, replacing any
// existing record. One key, one run: the singleton slot is the key itself.
func (s *Store) SaveProgress(ctx context.Context, run *progress.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("courier/redis: encode sync progress: %w", err)
	}
	if err := s.client.Set(ctx, progressKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("courier/redis: save sync progress: %w", err)
	}
	return nil
}

// GetProgress returns the current run record, or courier.ErrNoActiveSync
// when none exists.
func (s *Store) GetProgress(ctx context.Context) (*progress.Run, error) {
	raw, err := s.client.Get(ctx, progressKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, courier.ErrNoActiveSync
		}
		return nil, fmt.Errorf("courier/redis: get sync progress: %w", err)
	}

	var run progress.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, fmt.Errorf("courier/redis: decode sync progress: %w", err)
	}
	return &run, nil
}

// ClearProgress removes the current run record. Clearing an already
// empty slot is a no-op.
func (s *Store) ClearProgress(ctx context.Context) error {
	if err := s.client.Del(ctx, progressKey).Err(); err != nil {
		return fmt.Errorf("courier/redis: clear sync progress: %w", err)
	}
	return nil
}
