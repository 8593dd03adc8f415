package vm

import (
	"bytes"
	"io"

	json "github.com/goccy/go-json"
)

// biJSONEncode renders a value through its host projection. Map keys are
// sorted by the encoder.
func biJSONEncode(_ *Machine, _ *fiber, args []Value) (Value, error) {
	hv, err := ToHost(args[0])
	if err != nil {
		return Null, err
	}
	data, err := json.Marshal(hv)
	if err != nil {
		return Null, wrapFault(FaultType, err, "json_encode: %v", err)
	}
	return FromString(string(data)), nil
}

// biJSONDecode parses one JSON document. Integral numbers decode to ints
// (bigints when they overflow) and the rest to floats.
func biJSONDecode(_ *Machine, _ *fiber, args []Value) (Value, error) {
	s, err := argStr("json_decode", args[0])
	if err != nil {
		return Null, err
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var hv any
	if err := dec.Decode(&hv); err != nil {
		return Null, wrapFault(FaultType, err, "json_decode: %v", err)
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return Null, faultf(FaultType, "json_decode: trailing data after document")
	}
	return FromHost(hv)
}
