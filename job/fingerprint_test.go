package job_test

import (
	"testing"

	"github.com/waveline/courier/job"
)

func TestFingerprintStable(t *testing.T) {
	args := map[string]any{"order_id": "ord-1", "phone": "+15551234567"}

	a, err := job.Fingerprint("send_receipt", args)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	b, err := job.Fingerprint("send_receipt", args)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if a != b {
		t.Errorf("same hook+args produced different fingerprints: %q vs %q", a, b)
	}
}

func TestFingerprintStructMapEquivalence(t *testing.T) {
	type sendArgs struct {
		OrderID string `json:"order_id"`
		Phone   string `json:"phone"`
	}

	fromStruct, err := job.Fingerprint("send_receipt", sendArgs{OrderID: "ord-1", Phone: "+1555"})
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	fromMap, err := job.Fingerprint("send_receipt", map[string]string{
		"phone":    "+1555",
		"order_id": "ord-1",
	})
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fromStruct != fromMap {
		t.Errorf("struct and map args should fingerprint identically: %q vs %q", fromStruct, fromMap)
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base, _ := job.Fingerprint("send_receipt", map[string]string{"order_id": "ord-1"})

	otherHook, _ := job.Fingerprint("send_refund", map[string]string{"order_id": "ord-1"})
	if base == otherHook {
		t.Error("different hooks should produce different fingerprints")
	}

	otherArgs, _ := job.Fingerprint("send_receipt", map[string]string{"order_id": "ord-2"})
	if base == otherArgs {
		t.Error("different args should produce different fingerprints")
	}
}

func TestFingerprintNilArgs(t *testing.T) {
	a, err := job.Fingerprint("sweep", nil)
	if err != nil {
		t.Fatalf("Fingerprint(nil) failed: %v", err)
	}
	b, _ := job.Fingerprint("sweep", nil)
	if a != b {
		t.Error("nil args should fingerprint deterministically")
	}
}

func TestFingerprintUnserializable(t *testing.T) {
	_, err := job.Fingerprint("bad", map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Error("expected error for unserializable args")
	}
}
