// Package event defines the versioned envelopes exchanged over the broker and
// the catalog of builders that stamp them with per-stream versions.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned when bytes on a queue do not form an envelope.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the wire form of every event.
type Envelope struct {
	Type    Type            `json:"eventType"`
	Payload json.RawMessage `json:"eventPayload"`
	Version uint64          `json:"eventVersion"`
}

// Parse decodes and sanity checks an envelope.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing eventType", ErrMalformed)
	}
	if env.Version == 0 {
		return Envelope{}, fmt.Errorf("%w: eventVersion must be positive", ErrMalformed)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}
	return env, nil
}

// Marshal encodes the envelope for publishing.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
