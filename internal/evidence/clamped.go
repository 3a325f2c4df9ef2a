// Package evidence defines the scalar type shared by every confidence,
// quality, and display value in the engine: a real number constrained to
// [0,1] (§4.2). Clamp is the only construction site, so every decode path
// (JSON, canonical-encoder round trip, arithmetic result) normalizes
// through the same policy: NaN and -Inf map to 0, +Inf maps to 1, -0
// normalizes to +0, everything else clamps into range.
package evidence

import "math"

// Clamped is a scalar in [0,1]. The zero value is a valid Clamped equal to 0.
type Clamped struct {
	v float64
}

// Clamp constructs a Clamped from any real number, applying the
// construction-site policy from §4.2.
func Clamp(x float64) Clamped {
	switch {
	case math.IsNaN(x):
		return Clamped{0}
	case math.IsInf(x, -1):
		return Clamped{0}
	case math.IsInf(x, 1):
		return Clamped{1}
	case x < 0:
		return Clamped{0}
	case x > 1:
		return Clamped{1}
	default:
		return Clamped{x + 0} // +0 normalizes -0 per IEEE 754 addition.
	}
}

// Zero is the Clamped value 0.
var Zero = Clamped{0}

// One is the Clamped value 1.
var One = Clamped{1}

// Float64 returns the underlying value.
func (c Clamped) Float64() float64 { return c.v }

// Equal reports bit-exact equality on the clamped representation (§4.2).
func (c Clamped) Equal(other Clamped) bool { return c.v == other.v }

// Max returns the larger of two Clamped values.
func Max(a, b Clamped) Clamped {
	if a.v >= b.v {
		return a
	}
	return b
}

// Min returns the smaller of two Clamped values.
func Min(a, b Clamped) Clamped {
	if a.v <= b.v {
		return a
	}
	return b
}

// ClampBetween constructs a Clamped from x restricted to [lo, hi] instead of
// [0,1], used by the display map's monotonic floor (§4.7 step 6: "clamp into
// [prevDisplay, 1]"). lo and hi are themselves Clamped so the result is
// always representable.
func ClampBetween(x float64, lo, hi Clamped) Clamped {
	c := Clamp(x)
	if c.v < lo.v {
		return lo
	}
	if c.v > hi.v {
		return hi
	}
	return c
}
