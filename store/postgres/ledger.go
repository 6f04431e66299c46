package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/waveline/courier/ledger"
)

// ClaimKey atomically inserts the record unless an unexpired record with
// the same key already exists. The conditional upsert makes the
// insert-or-takeover a single statement, so two racing claimers can
// never both win.
func (s *Store) ClaimKey(ctx context.Context, rec *ledger.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO courier_claims (key, created_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE courier_claims.expires_at <= NOW()`,
		rec.Key, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("courier/postgres: claim key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetClaim retrieves a claim record by key, expired or not.
// Returns nil without error when no record exists.
func (s *Store) GetClaim(ctx context.Context, key string) (*ledger.Record, error) {
	var rec ledger.Record
	err := s.pool.QueryRow(ctx,
		`SELECT key, created_at, expires_at FROM courier_claims WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/postgres: get claim: %w", err)
	}
	return &rec, nil
}

// SweepExpiredClaims removes records whose ExpiresAt is at or before now.
func (s *Store) SweepExpiredClaims(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM courier_claims WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: sweep expired claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountClaims returns the number of live claim records.
func (s *Store) CountClaims(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM courier_claims WHERE expires_at > NOW()`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("courier/postgres: count claims: %w", err)
	}
	return count, nil
}
