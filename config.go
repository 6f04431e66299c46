package courier

import "time"

// Config holds configuration for the Courier coordinator.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently.
	Concurrency int

	// PollInterval is how often idle workers poll for new jobs.
	PollInterval time.Duration

	// FairnessCycle is the poll cadence at which workers drain only the
	// lowest lanes so bulk and maintenance work is never starved by a
	// steady stream of critical jobs. Every FairnessCycle-th poll checks
	// the BULK and MAINTENANCE lanes first. Zero disables the cycle.
	FairnessCycle int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often running jobs send heartbeats.
	HeartbeatInterval time.Duration

	// StaleJobThreshold is how long before a running job without a
	// heartbeat is considered stuck and returned to its lane.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		PollInterval:      1 * time.Second,
		FairnessCycle:     4,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		StaleJobThreshold: 30 * time.Second,
	}
}
