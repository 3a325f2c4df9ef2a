package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses canonical (or any well-formed) JSON into a generic tree:
// nil, bool, string, json.Number (so integers survive without float64
// precision loss), map[string]any, and []any. Callers that need typed
// fields (e.g. snapshot.Decode) convert from this tree explicitly, since
// only the caller knows which fields are quantized evidence values versus
// plain integers.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: decode failed: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canon: decode failed: trailing data after JSON value")
	}
	return v, nil
}

// Int64 coerces a decoded numeric field to int64. Accepts json.Number and
// float64 (the latter for values that passed through a generic map).
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// Float64 coerces a decoded numeric field to float64.
func Float64(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// String coerces a decoded field to a string, returning ("", false) for
// null or any non-string value (callers use the ok result to distinguish
// "absent/null" from "wrong type").
func String(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
