package progress

import (
	"math"
	"time"

	"github.com/waveline/courier/id"
)

// Status is the lifecycle state of a bulk sync run.
type Status string

const (
	// StatusInProgress means the run is accepting progress updates.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means every item was processed.
	StatusCompleted Status = "completed"
	// StatusFailed means the run was stopped by an unrecoverable error.
	StatusFailed Status = "failed"
)

// FailedItem is one failed work item surfaced to operators.
type FailedItem struct {
	ItemID string    `json:"item_id"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// Run is the singleton progress record for one bulk operation. At most
// one run is in_progress at a time; counters are mutated only inside
// the tracker's named lock.
//
// Invariant: Processed == Succeeded + Failed after every update, and
// Processed never exceeds TotalItems.
type Run struct {
	SyncID        id.SyncID    `json:"sync_id"`
	Status        Status       `json:"status"`
	TotalItems    int          `json:"total_items"`
	Processed     int          `json:"processed"`
	Succeeded     int          `json:"succeeded"`
	Failed        int          `json:"failed"`
	FailedItems   []FailedItem `json:"failed_items,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// Snapshot is a Run augmented with derived figures. Percentage, rate,
// and ETA are computed at read time, never stored.
type Snapshot struct {
	Run

	Percent        float64 `json:"percent"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	RatePerSecond  float64 `json:"rate_per_second"`
	Remaining      int     `json:"remaining"`
	ETASeconds     *int64  `json:"eta_seconds,omitempty"`
}

// Snapshot derives the read-time view of the run as of now. For
// finished runs the elapsed clock freezes at CompletedAt. A zero
// elapsed time yields a defined rate (the divisor is floored at one
// second) and the ETA is nil unless it is a non-negative figure.
func (r *Run) Snapshot(now time.Time) *Snapshot {
	end := now
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	elapsed := end.Sub(r.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	percent := 0.0
	if r.TotalItems > 0 {
		percent = float64(r.Processed) / float64(r.TotalItems) * 100
	}

	rate := float64(r.Processed) / math.Max(1, elapsed.Seconds())
	remaining := r.TotalItems - r.Processed
	if remaining < 0 {
		remaining = 0
	}

	s := &Snapshot{
		Run:            *r,
		Percent:        percent,
		ElapsedSeconds: elapsed.Seconds(),
		RatePerSecond:  rate,
		Remaining:      remaining,
	}
	if r.Status == StatusInProgress && rate > 0 {
		eta := int64(math.Ceil(float64(remaining) / rate))
		if eta >= 0 {
			s.ETASeconds = &eta
		}
	}
	return s
}
