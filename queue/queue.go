package queue

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/waveline/courier/job"
)

// Config defines per-lane behaviour such as rate limiting and concurrency.
type Config struct {
	// Lane is the lane this config applies to.
	Lane job.Lane

	// MaxConcurrency limits how many jobs from this lane may run
	// simultaneously across the local worker pool. Zero means no
	// lane-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second that may be
	// dequeued from this lane. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// laneState tracks runtime state for a single lane.
type laneState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-lane and per-hook rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	lanes map[job.Lane]*laneState
	hooks map[string]*hookState
}

// NewManager creates a Manager with the given lane configurations.
// Lanes not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		lanes: make(map[job.Lane]*laneState, len(configs)),
		hooks: make(map[string]*hookState),
	}
	for _, cfg := range configs {
		m.lanes[cfg.Lane] = newLaneState(cfg)
	}
	return m
}

func newLaneState(cfg Config) *laneState {
	ls := &laneState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ls
}

// Acquire checks rate limits and concurrency for the given lane and
// hook. If the job is allowed to proceed it increments the active
// counters and returns true. The caller MUST call Release when the job
// completes.
func (m *Manager) Acquire(lane job.Lane, hook string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check lane-level constraints.
	ls := m.lanes[lane]
	if ls != nil {
		if ls.limiter != nil && !ls.limiter.Allow() {
			return false
		}
		if ls.config.MaxConcurrency > 0 && ls.active >= ls.config.MaxConcurrency {
			return false
		}
	}

	// Check hook-level constraints.
	if hook != "" {
		hs := m.hooks[hook]
		if hs != nil {
			if hs.limiter != nil && !hs.limiter.Allow() {
				return false
			}
			if hs.maxConcurrency > 0 && hs.active >= hs.maxConcurrency {
				return false
			}
			hs.active++
		}
	}

	// Increment lane active count.
	if ls != nil {
		ls.active++
	}

	return true
}

// Release decrements the active job count for the lane and hook.
func (m *Manager) Release(lane job.Lane, hook string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ls := m.lanes[lane]; ls != nil && ls.active > 0 {
		ls.active--
	}

	if hook != "" {
		if hs := m.hooks[hook]; hs != nil && hs.active > 0 {
			hs.active--
		}
	}
}

// SetLaneConfig dynamically updates (or creates) a lane configuration.
func (m *Manager) SetLaneConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.lanes[cfg.Lane]
	ls := newLaneState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ls.active = existing.active
	}
	m.lanes[cfg.Lane] = ls
}

// ActiveCount returns the current number of active jobs for a lane.
func (m *Manager) ActiveCount(lane job.Lane) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls := m.lanes[lane]; ls != nil {
		return ls.active
	}
	return 0
}
