package dlq

import (
	"time"

	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// Reason classifies why a job was dead-lettered.
type Reason string

const (
	// ReasonMaxRetries means the job exhausted its attempt budget.
	ReasonMaxRetries Reason = "MAX_RETRIES"
	// ReasonPoison means the job can never succeed: its payload failed
	// to decode or its handler declared the failure permanent.
	ReasonPoison Reason = "POISON"
	// ReasonManual means an operator parked the job by hand.
	ReasonManual Reason = "MANUAL"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMaxRetries, ReasonPoison, ReasonManual:
		return true
	default:
		return false
	}
}

// Entry represents a permanently-failed job held for inspection,
// replay, or dismissal.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	Hook        string     `json:"hook"`
	Fingerprint string     `json:"fingerprint"`
	Lane        job.Lane   `json:"lane"`
	Payload     []byte     `json:"payload"`
	Reason      Reason     `json:"reason"`
	Message     string     `json:"message"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayCount int        `json:"replay_count"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
