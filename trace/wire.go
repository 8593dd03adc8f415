package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Events are stored and compared as canonical CBOR, so equal events always
// have equal bytes.
var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type wireEvent struct {
	ID      string `cbor:"1,keyasint,omitempty"`
	RunID   string `cbor:"2,keyasint,omitempty"`
	Seq     uint64 `cbor:"3,keyasint"`
	Kind    Kind   `cbor:"4,keyasint"`
	Label   string `cbor:"5,keyasint"`
	Payload any    `cbor:"6,keyasint"`
}

// MarshalEvent serializes an event to CBOR bytes.
func MarshalEvent(e Event) ([]byte, error) {
	return cborEncMode.Marshal(wireEvent(e))
}

// UnmarshalEvent deserializes an event from CBOR bytes.
func UnmarshalEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := cborDecMode.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("trace: unmarshal event: %w", err)
	}
	return Event(w), nil
}

// MarshalPayload serializes an event payload to CBOR bytes.
func MarshalPayload(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// UnmarshalPayload deserializes an event payload from CBOR bytes.
func UnmarshalPayload(data []byte) (any, error) {
	var v any
	if err := cborDecMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("trace: unmarshal payload: %w", err)
	}
	return v, nil
}

// Digest is a hex SHA-256 over the canonical encoding of events with their
// run-specific fields cleared. Two runs that observed the same events in
// the same order have the same digest.
func Digest(events []Event) (string, error) {
	h := sha256.New()
	for _, e := range events {
		e.ID, e.RunID = "", ""
		b, err := MarshalEvent(e)
		if err != nil {
			return "", err
		}
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
