package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnvelopeVersion is the current payload schema version. Decoders accept
// only versions they know; anything else is poison.
const EnvelopeVersion = 1

// ErrBadEnvelope marks a payload that cannot be decoded. Jobs carrying
// such payloads are routed to the dead letter store, never retried.
var ErrBadEnvelope = errors.New("job: bad payload envelope")

// Envelope is the stable wrapper around every job payload. The version
// tag lets the payload schema evolve without scattering format branches
// across consumers: EncodeEnvelope and DecodeEnvelope are the only
// encode/decode pair in the codebase.
type Envelope struct {
	Version int             `json:"v"`
	Args    json.RawMessage `json:"args"`
	Meta    Meta            `json:"meta"`
}

// Meta carries dispatch metadata alongside the caller's args.
type Meta struct {
	Lane       Lane      `json:"lane"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EncodeEnvelope wraps args and meta into versioned payload bytes.
// A nil args encodes as JSON null.
func EncodeEnvelope(args any, meta Meta) ([]byte, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("job: marshal args: %w", err)
	}

	payload, err := json.Marshal(Envelope{
		Version: EnvelopeVersion,
		Args:    raw,
		Meta:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("job: marshal envelope: %w", err)
	}
	return payload, nil
}

// DecodeEnvelope parses payload bytes into an Envelope. Malformed bytes
// and unknown versions return an error wrapping ErrBadEnvelope.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrBadEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadEnvelope, env.Version)
	}
	return &env, nil
}
