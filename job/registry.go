package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// HandlerFunc is a type-erased job handler that accepts the raw JSON args
// extracted from the payload envelope. The typed Definition[T] is
// converted to a HandlerFunc at registration time by closing over JSON
// unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, args []byte) error

// Registry maps hook names to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterDefinition registers a typed job definition. The generic handler
// is wrapped in a closure that JSON-unmarshals the args into T before
// calling the typed handler. A malformed args payload is a permanent
// failure; retrying cannot fix serialization.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, args []byte) error {
		var t T
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &t); err != nil {
				return Permanent(fmt.Errorf("unmarshal args for hook %q: %w", def.Hook, err))
			}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Hook] = handler
}

// Register registers a raw handler under the given hook name.
func (r *Registry) Register(hook string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[hook] = h
}

// Get returns the handler for the given hook name.
// Returns false if no handler is registered.
func (r *Registry) Get(hook string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[hook]
	return h, ok
}

// Hooks returns all registered hook names.
func (r *Registry) Hooks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hooks := make([]string, 0, len(r.handlers))
	for hook := range r.handlers {
		hooks = append(hooks, hook)
	}
	return hooks
}
