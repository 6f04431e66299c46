package cron

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/waveline/courier"
	"github.com/waveline/courier/id"
	"github.com/waveline/courier/job"
)

// Entry represents a recurring job schedule.
type Entry struct {
	courier.Entity

	ID        id.CronID  `json:"id"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Hook      string     `json:"hook"`
	Lane      job.Lane   `json:"lane"`
	Args      []byte     `json:"args,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	Enabled   bool       `json:"enabled"`
}

// NewEntry builds an enabled cron entry. The schedule is validated and the
// initial NextRunAt is computed from it; the args are serialized once here
// and enqueued verbatim on every fire.
func NewEntry(name, schedule, hook string, args any, lane job.Lane) (*Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("cron: empty entry name")
	}
	if hook == "" {
		return nil, fmt.Errorf("cron: empty hook for entry %q", name)
	}
	if !lane.Valid() {
		return nil, fmt.Errorf("cron: unknown lane %q for entry %q", lane, name)
	}

	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, fmt.Errorf("cron: parse schedule %q for entry %q: %w", schedule, name, err)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("cron: serialize args for entry %q: %w", name, err)
	}

	next := sched.Next(time.Now().UTC())
	return &Entry{
		Entity:    courier.NewEntity(),
		ID:        id.NewCronID(),
		Name:      name,
		Schedule:  schedule,
		Hook:      hook,
		Lane:      lane,
		Args:      raw,
		NextRunAt: &next,
		Enabled:   true,
	}, nil
}
