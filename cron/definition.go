package cron

import "github.com/waveline/courier/job"

// Definition is a typed cron definition. T is the args type
// (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this cron entry.
	Name string

	// Schedule is a cron expression (e.g., "*/5 * * * *" or "@every 30s").
	Schedule string

	// Hook is the registered job hook to enqueue on each tick.
	Hook string

	// Args is the static args value enqueued with every fire.
	Args T

	// Lane selects the priority lane for fired jobs. Maintenance-style
	// entries should use job.LaneMaintenance.
	Lane job.Lane
}
