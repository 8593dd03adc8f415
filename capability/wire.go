package capability

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Requests and responses cross process boundaries as canonical CBOR so
// the same call always encodes to the same bytes.
var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("capability: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capability: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type requestEnvelope struct {
	Seq        uint64 `cbor:"1,keyasint"`
	Alias      string `cbor:"2,keyasint"`
	Capability string `cbor:"3,keyasint"`
	Version    string `cbor:"4,keyasint"`
	Payload    any    `cbor:"5,keyasint"`
}

type responseEnvelope struct {
	Payload any `cbor:"1,keyasint"`
}

// MarshalRequest serializes a Request to CBOR bytes.
func MarshalRequest(r *Request) ([]byte, error) {
	return cborEncMode.Marshal(requestEnvelope{
		Seq: r.Seq, Alias: r.Alias, Capability: r.Capability, Version: r.Version, Payload: r.Payload,
	})
}

// UnmarshalRequest deserializes a Request from CBOR bytes.
func UnmarshalRequest(data []byte) (*Request, error) {
	var e requestEnvelope
	if err := cborDecMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("capability: unmarshal request: %w", err)
	}
	return &Request{Seq: e.Seq, Alias: e.Alias, Capability: e.Capability, Version: e.Version, Payload: e.Payload}, nil
}

// MarshalResponse serializes a Response to CBOR bytes.
func MarshalResponse(r *Response) ([]byte, error) {
	return cborEncMode.Marshal(responseEnvelope{Payload: r.Payload})
}

// UnmarshalResponse deserializes a Response from CBOR bytes.
func UnmarshalResponse(data []byte) (*Response, error) {
	var e responseEnvelope
	if err := cborDecMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("capability: unmarshal response: %w", err)
	}
	return &Response{Payload: e.Payload}, nil
}
