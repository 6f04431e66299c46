// Package ledger provides the idempotency ledger that guarantees
// at-most-once side effects under webhook redelivery and job re-runs.
//
// A claim is an atomic insert-or-fail on the operation's key: the first
// claimant wins and proceeds, every later claimant inside the TTL
// window loses and skips. Losing is not an error; call sites treat a
// duplicate as success-no-op. Claim atomicity comes from the storage
// layer (unique constraint, SETNX), never from a read-then-write check,
// so it stays correct under many concurrent workers with no shared lock
// manager.
//
// Keys are derived from the operation's natural identity with [Key],
// e.g. an inbound message id or order+event pair. For batch work the
// key is item-scoped, not batch-scoped, so re-running a batch skips
// exactly the items that already completed.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is the claim lifetime used when the caller passes no TTL.
// It exceeds the longest plausible redelivery window of the upstream
// event sources.
const DefaultTTL = 24 * time.Hour

// Record is one claimed key. Created on the first successful claim,
// removed by the TTL sweep.
type Record struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the claim's TTL window has passed.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Key derives a stable ledger key from the parts of an operation's
// natural identity. Parts are length-prefix-free but NUL-separated, so
// ("ab","c") and ("a","bc") produce different keys.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
