package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/waveline/courier/job"
)

type receiptArgs struct {
	Phone   string `json:"phone"`
	OrderID string `json:"order_id"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got receiptArgs
	def := job.NewDefinition("send_receipt", func(_ context.Context, a receiptArgs) error {
		got = a
		return nil
	})

	job.RegisterDefinition(r, def)

	h, ok := r.Get("send_receipt")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	args, _ := json.Marshal(receiptArgs{Phone: "+15551234567", OrderID: "ord-42"})
	err := h(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Phone != "+15551234567" {
		t.Errorf("Phone = %q, want %q", got.Phone, "+15551234567")
	}
	if got.OrderID != "ord-42" {
		t.Errorf("OrderID = %q, want %q", got.OrderID, "ord-42")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Fatal("expected no handler for unregistered hook")
	}
}

func TestRegistry_Hooks(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("hook-a", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("hook-b", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("hook-c", func(_ context.Context, _ struct{}) error { return nil }))

	hooks := r.Hooks()
	sort.Strings(hooks)
	if len(hooks) != 3 {
		t.Fatalf("expected 3 hooks, got %d", len(hooks))
	}
	expected := []string{"hook-a", "hook-b", "hook-c"}
	for i, want := range expected {
		if hooks[i] != want {
			t.Errorf("hooks[%d] = %q, want %q", i, hooks[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed-hook", func(_ context.Context, _ receiptArgs) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed-hook")
	err := h(context.Background(), []byte(`{invalid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !job.IsPermanent(err) {
		t.Errorf("expected permanent error for invalid JSON, got %v", err)
	}
}

func TestRegistry_EmptyArgs(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-args", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("no-args")
	err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty args")
	}
}

func TestRegistry_NullArgs(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("null-args", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("null-args")
	if err := h(context.Background(), []byte(`null`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with null args")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := job.NewRegistry()
	want := errors.New("handler failed")
	job.RegisterDefinition(r, job.NewDefinition("failing", func(_ context.Context, _ struct{}) error {
		return want
	}))

	h, _ := r.Get("failing")
	err := h(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("new")
	}))

	h, _ := r.Get("overwrite")
	err := h(context.Background(), nil)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestRegistry_RawHandler(t *testing.T) {
	r := job.NewRegistry()
	var got []byte
	r.Register("raw-hook", func(_ context.Context, args []byte) error {
		got = args
		return nil
	})

	h, ok := r.Get("raw-hook")
	if !ok {
		t.Fatal("expected raw handler to be registered")
	}
	if err := h(context.Background(), []byte(`{"k":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"k":1}` {
		t.Errorf("args = %q, want %q", got, `{"k":1}`)
	}
}
