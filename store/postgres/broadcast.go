package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/waveline/courier"
	"github.com/waveline/courier/broadcast"
	"github.com/waveline/courier/id"
)

// CreateCampaign persists a new campaign.
func (s *Store) CreateCampaign(ctx context.Context, c *broadcast.Campaign) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courier_campaigns (
			id, name, template, state, total_recipients,
			queued, sent, failed, skipped, failure_reason,
			started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID.String(), c.Name, c.Template, string(c.State), c.TotalRecipients,
		c.Queued, c.Sent, c.Failed, c.Skipped, c.FailureReason,
		c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return courier.ErrCampaignExists
		}
		return fmt.Errorf("courier/postgres: create campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID id.CampaignID) (*broadcast.Campaign, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT
			id, name, template, state, total_recipients,
			queued, sent, failed, skipped, failure_reason,
			started_at, completed_at, created_at, updated_at
		FROM courier_campaigns
		WHERE id = $1`,
		campaignID.String(),
	)

	c, err := scanCampaign(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("courier/postgres: get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns campaigns matching the given options, newest
// first.
func (s *Store) ListCampaigns(ctx context.Context, opts broadcast.ListOpts) ([]*broadcast.Campaign, error) {
	query := `
		SELECT
			id, name, template, state, total_recipients,
			queued, sent, failed, skipped, failure_reason,
			started_at, completed_at, created_at, updated_at
		FROM courier_campaigns
		WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("courier/postgres: list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*broadcast.Campaign
	for rows.Next() {
		c, scanErr := scanCampaign(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("courier/postgres: scan campaign row: %w", scanErr)
		}
		campaigns = append(campaigns, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("courier/postgres: iterate campaign rows: %w", err)
	}
	return campaigns, nil
}

// IncrementCampaignCounters atomically adds the deltas to the campaign's
// counters and returns the updated campaign. The single UPDATE keeps
// concurrent batch handlers from losing increments.
func (s *Store) IncrementCampaignCounters(ctx context.Context, campaignID id.CampaignID, queued, sent, failed, skipped int64) (*broadcast.Campaign, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE courier_campaigns SET
			queued = queued + $2,
			sent = sent + $3,
			failed = failed + $4,
			skipped = skipped + $5,
			updated_at = NOW()
		WHERE id = $1
		RETURNING
			id, name, template, state, total_recipients,
			queued, sent, failed, skipped, failure_reason,
			started_at, completed_at, created_at, updated_at`,
		campaignID.String(), queued, sent, failed, skipped,
	)

	c, err := scanCampaign(row)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("courier/postgres: increment campaign counters: %w", err)
	}
	return c, nil
}

// CompleteCampaign transitions the campaign from running to completed.
// The state guard in the WHERE clause lets exactly one of several
// concurrent finishers observe the transition.
func (s *Store) CompleteCampaign(ctx context.Context, campaignID id.CampaignID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_campaigns
		SET state = 'completed', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'running'`,
		campaignID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("courier/postgres: complete campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, s.campaignMissing(ctx, campaignID)
	}
	return true, nil
}

// FailCampaign transitions the campaign from running to failed with the
// given reason.
func (s *Store) FailCampaign(ctx context.Context, campaignID id.CampaignID, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE courier_campaigns
		SET state = 'failed', failure_reason = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state = 'running'`,
		campaignID.String(), reason,
	)
	if err != nil {
		return false, fmt.Errorf("courier/postgres: fail campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, s.campaignMissing(ctx, campaignID)
	}
	return true, nil
}

// campaignMissing distinguishes a lost state race (nil) from an absent
// row (courier.ErrCampaignNotFound) after a guarded UPDATE matched
// nothing.
func (s *Store) campaignMissing(ctx context.Context, campaignID id.CampaignID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM courier_campaigns WHERE id = $1)`,
		campaignID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("courier/postgres: check campaign exists: %w", err)
	}
	if !exists {
		return courier.ErrCampaignNotFound
	}
	return nil
}

// scanCampaign scans a single campaign row.
func scanCampaign(row pgx.Row) (*broadcast.Campaign, error) {
	var (
		c        broadcast.Campaign
		idStr    string
		stateStr string
	)
	err := row.Scan(
		&idStr, &c.Name, &c.Template, &stateStr, &c.TotalRecipients,
		&c.Queued, &c.Sent, &c.Failed, &c.Skipped, &c.FailureReason,
		&c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.State = broadcast.State(stateStr)

	parsedID, parseErr := id.ParseCampaignID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("courier/postgres: parse campaign id %q: %w", idStr, parseErr)
	}
	c.ID = parsedID

	return &c, nil
}
