package queue

import "golang.org/x/time/rate"

// HookConfig defines rate limits and concurrency for a specific hook.
// Hook limits model outbound API quotas, so they apply across lanes: a
// replayed job is throttled the same as a freshly scheduled one.
type HookConfig struct {
	// Hook is the handler name this config applies to.
	Hook string

	// RateLimit is the sustained jobs per second for this hook.
	RateLimit float64

	// RateBurst is the burst size for the hook's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous jobs for this hook. Zero
	// means no hook-specific concurrency limit.
	MaxConcurrency int
}

// hookState tracks runtime state for a single hook.
type hookState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// SetHookConfig configures rate limits and concurrency for a specific
// hook. Calling this multiple times for the same hook replaces the
// previous configuration.
func (m *Manager) SetHookConfig(cfg HookConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.hooks[cfg.Hook]

	hs := &hookState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		hs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		hs.active = existing.active
	}
	m.hooks[cfg.Hook] = hs
}

// HookActiveCount returns the current number of active jobs for a hook.
func (m *Manager) HookActiveCount(hook string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hs := m.hooks[hook]; hs != nil {
		return hs.active
	}
	return 0
}
