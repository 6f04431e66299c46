package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier/ledger"
)

// ClaimKey atomically inserts the record unless an unexpired one exists.
// SET NX with the record's TTL gives both uniqueness and takeover for
// free: an expired claim is simply gone, so the next SET NX wins.
func (s *Store) ClaimKey(ctx context.Context, rec *ledger.Record) (bool, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("courier/redis: encode claim: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// Already-expired record: keep it briefly so GetClaim can still
		// observe it, then let Redis evict it.
		ttl = time.Millisecond
	}

	won, err := s.client.SetNX(ctx, claimKey(rec.Key), payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("courier/redis: claim key: %w", err)
	}
	return won, nil
}

// GetClaim retrieves a claim record by key. Returns nil without error
// when no record exists or Redis has already evicted it.
func (s *Store) GetClaim(ctx context.Context, key string) (*ledger.Record, error) {
	raw, err := s.client.Get(ctx, claimKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/redis: get claim: %w", err)
	}

	var rec ledger.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("courier/redis: decode claim: %w", err)
	}
	return &rec, nil
}

// SweepExpiredClaims is a no-op here: Redis evicts expired claims
// itself, so there is never anything for the sweep to remove.
func (s *Store) SweepExpiredClaims(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// CountClaims returns the number of live claim records. Every visible
// claim key is live since expired ones are evicted.
func (s *Store) CountClaims(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		count  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, claimPrefix+"*", 256).Result()
		if err != nil {
			return 0, fmt.Errorf("courier/redis: count claims: %w", err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
