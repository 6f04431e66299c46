package breaker

import "sync"

// Registry lazily creates and holds one breaker per named dependency.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	defaults  Settings
	observers []Observer
}

// NewRegistry creates a registry. All breakers created through Get
// inherit the default threshold and cooldown plus the given observers.
func NewRegistry(defaults Settings, observers ...Observer) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		defaults:  defaults,
		observers: observers,
	}
}

// Get returns the breaker for the named dependency, creating it with
// the registry defaults on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}

	s := r.defaults
	s.Name = name
	b = New(s, r.observers...)
	r.breakers[name] = b
	return b
}

// Configure installs a breaker with explicit settings, replacing any
// existing breaker of the same name.
func (r *Registry) Configure(s Settings, observers ...Observer) *Breaker {
	obs := append(append([]Observer{}, r.observers...), observers...)
	b := New(s, obs...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[s.Name] = b
	return b
}

// States returns a snapshot of every known breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// Open returns the names of breakers that are currently open.
func (r *Registry) Open() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for name, b := range r.breakers {
		if b.State() == StateOpen {
			open = append(open, name)
		}
	}
	return open
}
