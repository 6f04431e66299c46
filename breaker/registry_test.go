package breaker_test

import (
	"context"
	"testing"
	"time"

	"github.com/waveline/courier/breaker"
)

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r := breaker.NewRegistry(breaker.Settings{FailureThreshold: 3, Cooldown: time.Minute})

	a := r.Get("whatsapp")
	b := r.Get("whatsapp")
	if a != b {
		t.Error("Get should return the same breaker for the same name")
	}
	if a.Name() != "whatsapp" {
		t.Errorf("Name() = %q, want %q", a.Name(), "whatsapp")
	}
}

func TestRegistry_States(t *testing.T) {
	r := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, Cooldown: time.Minute})

	_ = r.Get("whatsapp").Do(context.Background(), failingCall)
	r.Get("openai")

	states := r.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 breakers, got %d", len(states))
	}
	if states["whatsapp"] != breaker.StateOpen {
		t.Errorf("whatsapp state = %q, want %q", states["whatsapp"], breaker.StateOpen)
	}
	if states["openai"] != breaker.StateClosed {
		t.Errorf("openai state = %q, want %q", states["openai"], breaker.StateClosed)
	}
}

func TestRegistry_Open(t *testing.T) {
	r := breaker.NewRegistry(breaker.Settings{FailureThreshold: 1, Cooldown: time.Minute})

	r.Get("healthy")
	_ = r.Get("broken").Do(context.Background(), failingCall)

	open := r.Open()
	if len(open) != 1 || open[0] != "broken" {
		t.Errorf("Open() = %v, want [broken]", open)
	}
}

func TestRegistry_Configure(t *testing.T) {
	r := breaker.NewRegistry(breaker.Settings{FailureThreshold: 10, Cooldown: time.Minute})

	r.Configure(breaker.Settings{Name: "payment", FailureThreshold: 1, Cooldown: time.Minute})

	// The configured threshold (1) applies, not the registry default (10).
	_ = r.Get("payment").Do(context.Background(), failingCall)
	if got := r.Get("payment").State(); got != breaker.StateOpen {
		t.Errorf("State() = %q, want %q after single failure", got, breaker.StateOpen)
	}
}
