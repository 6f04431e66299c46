// Package breaker guards outbound dependency calls with per-dependency
// circuit breakers.
//
// A breaker trips OPEN after a run of consecutive failures, fails fast
// while OPEN, and allows a single probe call after a cooldown
// (HALF_OPEN). A successful probe closes the circuit and resets the
// failure counters; a failed probe reopens it. Callers distinguish a
// fast-failed call (ErrOpen) from a genuine call failure so they can
// defer work instead of counting it as a content failure.
//
// State transitions are delivered to registered observers so operational
// tooling can alert when a critical dependency trips open.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State is the lifecycle state of a circuit.
type State string

const (
	// StateClosed means calls flow through normally.
	StateClosed State = "closed"
	// StateOpen means calls fail fast without invoking the dependency.
	StateOpen State = "open"
	// StateHalfOpen means a single probe call is allowed through.
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when a call is rejected because the circuit is
// open (or a probe slot is already taken). It is distinguishable from a
// dependency failure so callers can skip or defer rather than retry.
var ErrOpen = errors.New("breaker: circuit open")

// Settings configures one breaker.
type Settings struct {
	// Name identifies the guarded dependency, e.g. "whatsapp".
	Name string

	// FailureThreshold is the consecutive-failure count that trips the
	// circuit from closed to open.
	FailureThreshold uint32

	// Cooldown is how long the circuit stays open before allowing a
	// probe call.
	Cooldown time.Duration
}

// DefaultSettings returns the baseline breaker configuration:
// trip after 5 consecutive failures, cool down for 30 seconds.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// StateChange describes one observed transition.
type StateChange struct {
	Name string    `json:"name"`
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Observer receives state transitions. Observers must not block.
type Observer func(change StateChange)

// Breaker guards calls to one named dependency.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New creates a breaker from settings. Zero-valued fields fall back to
// DefaultSettings.
func New(s Settings, observers ...Observer) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings(s.Name).FailureThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultSettings(s.Name).Cooldown
	}

	threshold := s.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller-side cancellation says nothing about the
			// dependency's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			change := StateChange{
				Name: name,
				From: mapState(from),
				To:   mapState(to),
				At:   time.Now().UTC(),
			}
			for _, obs := range observers {
				obs(change)
			}
		},
	})

	return &Breaker{name: s.Name, cb: cb}
}

// Name returns the guarded dependency's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current circuit state.
func (b *Breaker) State() State { return mapState(b.cb.State()) }

// ConsecutiveFailures returns the current run of failed calls.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// Do runs fn through the circuit. When the circuit is open, Do returns
// ErrOpen immediately without invoking fn. The context is checked before
// dispatch and passed through to fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
