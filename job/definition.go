package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the args type (must be JSON-serializable).
type Definition[T any] struct {
	// Hook is the unique identifier for this job type.
	Hook string

	// Handler is the function that processes the job args.
	Handler func(ctx context.Context, args T) error

	// Opts configures attempts, lane, and timeout.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](hook string, handler func(ctx context.Context, args T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Hook:    hook,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
