package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint computes a stable identity hash for a hook+args pair.
// Two schedule calls with equal hook and semantically equal args produce
// the same fingerprint regardless of whether args arrived as a struct or
// a map, which is what pending checks and cancellation match on.
//
// Stability comes from normalizing args through a generic JSON round
// trip: object keys serialize in sorted order after the round trip, so
// field ordering in the caller's type does not leak into the hash.
func Fingerprint(hook string, args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return "", fmt.Errorf("normalize args: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize args: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(hook))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
