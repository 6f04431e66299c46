package broadcast

import (
	"context"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
)

// State is the lifecycle state of a campaign.
type State string

const (
	// StateRunning means batches are dispatched and recipients are
	// still being accounted for.
	StateRunning State = "running"
	// StateCompleted means every queued recipient is accounted for.
	StateCompleted State = "completed"
	// StateFailed means fan-out was aborted by an unrecoverable error.
	StateFailed State = "failed"
)

// Campaign is one broadcast run: a template sent to an audience in
// batches. Counters are incremented atomically at the store layer as
// batch handlers report in; Sent + Failed + Skipped converges on
// TotalRecipients and the campaign completes when it gets there.
type Campaign struct {
	courier.Entity

	ID              id.CampaignID `json:"id"`
	Name            string        `json:"name"`
	Template        string        `json:"template"`
	State           State         `json:"state"`
	TotalRecipients int           `json:"total_recipients"`
	Queued          int64         `json:"queued"`
	Sent            int64         `json:"sent"`
	Failed          int64         `json:"failed"`
	Skipped         int64         `json:"skipped"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// Accounted returns how many recipients have a recorded outcome.
func (c *Campaign) Accounted() int64 {
	return c.Sent + c.Failed + c.Skipped
}

// Terminal reports whether the campaign has reached a final state.
func (c *Campaign) Terminal() bool {
	return c.State == StateCompleted || c.State == StateFailed
}

// ListOpts controls pagination and filtering for campaign list queries.
type ListOpts struct {
	// Limit is the maximum number of campaigns to return. Zero means no
	// limit.
	Limit int
	// Offset is the number of campaigns to skip.
	Offset int
	// State filters by campaign state. Empty means all states.
	State State
}

// Store defines the persistence contract for campaigns.
type Store interface {
	// CreateCampaign persists a new campaign.
	CreateCampaign(ctx context.Context, c *Campaign) error

	// GetCampaign retrieves a campaign by ID.
	GetCampaign(ctx context.Context, campaignID id.CampaignID) (*Campaign, error)

	// ListCampaigns returns campaigns matching the given options, newest
	// first.
	ListCampaigns(ctx context.Context, opts ListOpts) ([]*Campaign, error)

	// IncrementCampaignCounters atomically adds the deltas to the
	// campaign's counters and returns the updated campaign. Batch
	// handlers for the same campaign call this concurrently; the
	// increment must be a single storage-level operation, not
	// read-modify-write.
	IncrementCampaignCounters(ctx context.Context, campaignID id.CampaignID, queued, sent, failed, skipped int64) (*Campaign, error)

	// CompleteCampaign transitions the campaign from running to
	// completed and stamps CompletedAt. Returns false without error when
	// the campaign is not running, so exactly one of several concurrent
	// finishers observes the transition.
	CompleteCampaign(ctx context.Context, campaignID id.CampaignID) (bool, error)

	// FailCampaign transitions the campaign from running to failed with
	// the given reason and stamps CompletedAt. Returns false without
	// error when the campaign is not running.
	FailCampaign(ctx context.Context, campaignID id.CampaignID, reason string) (bool, error)
}
