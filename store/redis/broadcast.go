package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/broadcast"
	"github.com/waveline/courier/id"
)

// campaignFinishScript transitions a running campaign to a terminal
// state. The HGET and HSET happen inside one script, so exactly one of
// several concurrent finishers observes the transition.
//
// KEYS[1] campaign key; ARGV[1] target state, ARGV[2] timestamp,
// ARGV[3] failure reason (empty for completion).
// Returns -1 when the campaign does not exist, 0 when it is not
// running, 1 when the transition happened.
var campaignFinishScript = goredis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return -1
end
if state ~= 'running' then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[1], 'completed_at', ARGV[2], 'updated_at', ARGV[2])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'failure_reason', ARGV[3])
end
return 1
`)

// CreateCampaign persists a new campaign.
func (s *Store) CreateCampaign(ctx context.Context, c *broadcast.Campaign) error {
	cID := c.ID.String()
	key := campaignKey(cID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("courier/redis: create campaign check exists: %w", err)
	}
	if exists > 0 {
		return courier.ErrCampaignExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, campaignToMap(c))
	pipe.SAdd(ctx, campaignIDsKey, cID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: create campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID.
func (s *Store) GetCampaign(ctx context.Context, campaignID id.CampaignID) (*broadcast.Campaign, error) {
	return s.getCampaignByKey(ctx, campaignKey(campaignID.String()))
}

// ListCampaigns returns campaigns matching the given options, newest first.
func (s *Store) ListCampaigns(ctx context.Context, opts broadcast.ListOpts) ([]*broadcast.Campaign, error) {
	ids, err := s.client.SMembers(ctx, campaignIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list campaigns: %w", err)
	}

	campaigns := make([]*broadcast.Campaign, 0, len(ids))
	for _, cID := range ids {
		c, getErr := s.getCampaignByKey(ctx, campaignKey(cID))
		if getErr != nil {
			continue // skip missing
		}
		if opts.State != "" && c.State != opts.State {
			continue
		}
		campaigns = append(campaigns, c)
	}

	sort.Slice(campaigns, func(i, k int) bool {
		return campaigns[i].CreatedAt.After(campaigns[k].CreatedAt)
	})

	// Apply offset/limit.
	if opts.Offset >= len(campaigns) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Offset > 0 {
		campaigns = campaigns[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(campaigns) {
		campaigns = campaigns[:opts.Limit]
	}
	return campaigns, nil
}

// IncrementCampaignCounters atomically adds the deltas to the campaign's
// counters and returns the updated campaign. HINCRBY does the arithmetic
// inside Redis, so concurrent batch handlers never lose an update.
func (s *Store) IncrementCampaignCounters(ctx context.Context, campaignID id.CampaignID, queued, sent, failed, skipped int64) (*broadcast.Campaign, error) {
	key := campaignKey(campaignID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: increment campaign exists: %w", err)
	}
	if exists == 0 {
		return nil, courier.ErrCampaignNotFound
	}

	pipe := s.client.TxPipeline()
	if queued != 0 {
		pipe.HIncrBy(ctx, key, "queued", queued)
	}
	if sent != 0 {
		pipe.HIncrBy(ctx, key, "sent", sent)
	}
	if failed != 0 {
		pipe.HIncrBy(ctx, key, "failed", failed)
	}
	if skipped != 0 {
		pipe.HIncrBy(ctx, key, "skipped", skipped)
	}
	pipe.HSet(ctx, key, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("courier/redis: increment campaign counters: %w", err)
	}

	return s.getCampaignByKey(ctx, key)
}

// CompleteCampaign transitions the campaign from running to completed
// and stamps CompletedAt. Returns false without error when the campaign
// is not running.
func (s *Store) CompleteCampaign(ctx context.Context, campaignID id.CampaignID) (bool, error) {
	return s.finishCampaign(ctx, campaignID, broadcast.StateCompleted, "")
}

// FailCampaign transitions the campaign from running to failed with the
// given reason and stamps CompletedAt. Returns false without error when
// the campaign is not running.
func (s *Store) FailCampaign(ctx context.Context, campaignID id.CampaignID, reason string) (bool, error) {
	return s.finishCampaign(ctx, campaignID, broadcast.StateFailed, reason)
}

func (s *Store) finishCampaign(ctx context.Context, campaignID id.CampaignID, state broadcast.State, reason string) (bool, error) {
	key := campaignKey(campaignID.String())
	stamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := campaignFinishScript.Run(ctx, s.client, []string{key},
		string(state), stamp, reason,
	).Int()
	if err != nil {
		return false, fmt.Errorf("courier/redis: finish campaign: %w", err)
	}

	switch res {
	case -1:
		return false, courier.ErrCampaignNotFound
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// ── helpers ──

func campaignToMap(c *broadcast.Campaign) map[string]interface{} {
	m := map[string]interface{}{
		"id":               c.ID.String(),
		"name":             c.Name,
		"template":         c.Template,
		"state":            string(c.State),
		"total_recipients": strconv.Itoa(c.TotalRecipients),
		"queued":           strconv.FormatInt(c.Queued, 10),
		"sent":             strconv.FormatInt(c.Sent, 10),
		"failed":           strconv.FormatInt(c.Failed, 10),
		"skipped":          strconv.FormatInt(c.Skipped, 10),
		"failure_reason":   c.FailureReason,
		"started_at":       c.StartedAt.Format(time.RFC3339Nano),
		"created_at":       c.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       c.UpdatedAt.Format(time.RFC3339Nano),
	}
	if c.CompletedAt != nil {
		m["completed_at"] = c.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getCampaignByKey(ctx context.Context, key string) (*broadcast.Campaign, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: get campaign: %w", err)
	}
	if len(vals) == 0 {
		return nil, courier.ErrCampaignNotFound
	}
	return mapToCampaign(vals)
}

func mapToCampaign(m map[string]string) (*broadcast.Campaign, error) {
	cID, err := id.ParseCampaignID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("courier/redis: parse campaign id: %w", err)
	}

	total, _ := strconv.Atoi(m["total_recipients"])        //nolint:errcheck // best-effort parse from trusted Redis data
	queued, _ := strconv.ParseInt(m["queued"], 10, 64)     //nolint:errcheck // best-effort parse from trusted Redis data
	sent, _ := strconv.ParseInt(m["sent"], 10, 64)         //nolint:errcheck // best-effort parse from trusted Redis data
	failed, _ := strconv.ParseInt(m["failed"], 10, 64)     //nolint:errcheck // best-effort parse from trusted Redis data
	skipped, _ := strconv.ParseInt(m["skipped"], 10, 64)   //nolint:errcheck // best-effort parse from trusted Redis data

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	c := &broadcast.Campaign{
		Entity: courier.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:              cID,
		Name:            m["name"],
		Template:        m["template"],
		State:           broadcast.State(m["state"]),
		TotalRecipients: total,
		Queued:          queued,
		Sent:            sent,
		Failed:          failed,
		Skipped:         skipped,
		FailureReason:   m["failure_reason"],
		StartedAt:       startedAt,
	}

	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		c.CompletedAt = &t
	}

	return c, nil
}
