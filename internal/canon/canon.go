// Package canon implements the engine's canonical JSON encoder (§4.3) and
// the per-field quantization policy (§4.4).
//
// Canonical JSON is deterministic byte-identical output: object keys sorted
// by ascending UTF-8 byte order, fixed-precision numerics (no scientific
// notation except the ±infinity sentinel), and a fixed string-escaping
// table. It is hand-rolled rather than built on encoding/json's Marshal
// because the numeric formatting rules (4-decimal quantization keyed by
// field name, no scientific notation, -0 normalization) are stricter than
// anything encoding/json's Marshaler hooks expose — Go's stdlib float
// formatting picks the shortest round-trippable representation, which is
// exactly the thing determinism across platforms cannot tolerate.
package canon

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// QFloat marks a float64 that must be encoded using the 4-decimal
// quantization policy (§4.4), regardless of its field name. Most callers
// instead rely on field-name-based quantization via Object; QFloat is for
// values encoded outside an object context (e.g. inside an array).
type QFloat float64

// Object is an ordered set of key/value pairs encoded as a JSON object.
// Keys are sorted by ascending UTF-8 byte order at encode time (§4.3);
// insertion order here does not matter and is not preserved.
type Object map[string]any

// Array preserves element order, per §4.3 ("arrays preserve order").
type Array []any

// Encode serializes v into canonical JSON bytes. Supported value types:
// nil, bool, string, int, int64, float64 (encoded with the 15-significant
// -digit policy unless the field name triggers quantization), QFloat
// (always quantized), Object, Array, and []byte is not supported — pass
// strings instead.
func Encode(v any) ([]byte, error) {
	var b strings.Builder
	if err := encodeValue(&b, "", v); err != nil {
		return nil, fmt.Errorf("canon: encode failed: %w", err)
	}
	return []byte(b.String()), nil
}

// EncodeField serializes v as if it were the value of an object field
// named fieldName, which decides whether a float64 gets quantized (§4.4).
// Used by callers that need the quantization policy applied without
// wrapping the value in an Object.
func EncodeField(fieldName string, v any) ([]byte, error) {
	var b strings.Builder
	if err := encodeValue(&b, fieldName, v); err != nil {
		return nil, fmt.Errorf("canon: encode failed: %w", err)
	}
	return []byte(b.String()), nil
}

func encodeValue(b *strings.Builder, fieldName string, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
		return nil
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case string:
		encodeString(b, t)
		return nil
	case int:
		b.WriteString(formatInt(int64(t)))
		return nil
	case int64:
		b.WriteString(formatInt(t))
		return nil
	case QFloat:
		b.WriteString(formatQuantized(float64(t)))
		return nil
	case float64:
		if IsQuantizedField(fieldName) {
			b.WriteString(formatQuantized(t))
		} else {
			b.WriteString(formatRaw(t))
		}
		return nil
	case json.Number:
		// A value round-tripped through Decode (which uses UseNumber so
		// integers survive exactly). Re-encode it through the same
		// field-name-keyed quantization policy as a native float64.
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("canon: field %q holds a non-numeric json.Number %q: %w", fieldName, t.String(), err)
		}
		return encodeValue(b, fieldName, f)
	case Object:
		return encodeObject(b, t)
	case Array:
		return encodeArray(b, t)
	case []any:
		return encodeArray(b, Array(t))
	case map[string]any:
		return encodeObject(b, Object(t))
	default:
		return fmt.Errorf("unsupported type %T for field %q", v, fieldName)
	}
}

func encodeObject(b *strings.Builder, obj Object) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Go string comparison is byte-wise, i.e. UTF-8 byte order.

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeString(b, k)
		b.WriteByte(':')
		if err := encodeValue(b, k, obj[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func encodeArray(b *strings.Builder, arr Array) error {
	b.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encodeValue(b, "", v); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

// encodeString writes a JSON string literal with the canonical escape
// table: the required JSON escapes plus all control characters below
// 0x20 as uppercase-hex \uXXXX. No other characters (including non-ASCII
// runes) are escaped.
func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// formatInt writes an integer as decimal ASCII with no leading zeros.
func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// formatQuantized applies the 4-decimal fixed-point policy: round to 4
// decimals, trim trailing zeros (and a bare trailing '.'), normalize -0,
// map NaN to the JSON null literal and ±Inf to the ±1e308 sentinel.
func formatQuantized(f float64) string {
	if math.IsNaN(f) {
		return "null"
	}
	if math.IsInf(f, 1) {
		return "1e308"
	}
	if math.IsInf(f, -1) {
		return "-1e308"
	}

	r := math.Round(f*10000) / 10000
	r += 0 // IEEE 754: (-0)+(+0) == +0, normalizing negative zero.

	s := strconv.FormatFloat(r, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

// formatRaw applies the 15-significant-digit policy for non-quantized
// floating point fields, with the same NaN/Inf handling as quantized
// fields and no scientific notation for finite values.
func formatRaw(f float64) string {
	if math.IsNaN(f) {
		return "null"
	}
	if math.IsInf(f, 1) {
		return "1e308"
	}
	if math.IsInf(f, -1) {
		return "-1e308"
	}

	f += 0 // normalize -0
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if strings.ContainsAny(s, "eE") {
		// Re-render without scientific notation; 'f' with -1 precision
		// gives the shortest exact decimal representation.
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

// quantizedFieldSuffixes is the closed set of field-name tokens that mark
// a float64 field as quantized (§4.4). Matching is a case-insensitive
// suffix test so compound field names like "gateDisplay" or
// "lateWeight" are covered without enumerating every concrete field.
var quantizedFieldSuffixes = []string{
	"evidence",
	"quality",
	"weight",
	"delta",
	"display",
	"scale",
}

// IsQuantizedField reports whether fieldName belongs to the closed set of
// quantized fields per §4.4.
func IsQuantizedField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, suffix := range quantizedFieldSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
