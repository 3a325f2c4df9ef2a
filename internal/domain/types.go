// Package domain contains the evidence engine's pure data types — no
// infrastructure imports, mirroring the teacher repo's innermost
// clean-architecture ring.
package domain

// PatchId is an opaque identifier for a surface patch, derived externally
// from normalized patch coordinates. Unique within a capture session.
type PatchId string

// FrameId identifies the camera frame an observation was captured in.
type FrameId string

// Verdict is the closed-set classification of an observation (§3).
type Verdict string

const (
	VerdictGood    Verdict = "good"
	VerdictSuspect Verdict = "suspect"
	VerdictBad     Verdict = "bad"
	VerdictUnknown Verdict = "unknown"
)

// Normalize coerces unknown/invalid verdicts to VerdictSuspect per the
// "unknown treated as suspect and logged" contract (§3, §7).
func (v Verdict) Normalize() (Verdict, bool) {
	switch v {
	case VerdictGood, VerdictSuspect, VerdictBad:
		return v, true
	case VerdictUnknown:
		return VerdictSuspect, true
	default:
		return VerdictSuspect, false
	}
}

// ErrorType is the closed set of causes attached to a bad/unknown verdict.
type ErrorType string

const (
	ErrorDynamicObject     ErrorType = "dynamicObject"
	ErrorDepthDistortion   ErrorType = "depthDistortion"
	ErrorExposureDrift     ErrorType = "exposureDrift"
	ErrorWhiteBalanceDrift ErrorType = "whiteBalanceDrift"
	ErrorMotionBlur        ErrorType = "motionBlur"
	ErrorUnknown           ErrorType = "unknown"
)

// Observation is a single per-patch report arriving at the engine. It
// carries no sequence number of its own — the engine assigns one at
// ingress, in the order ProcessObservation calls arrive, and wraps the
// observation in a SequencedObservation before handing it to the reorder
// buffer (C13).
type Observation struct {
	PatchId     PatchId
	Timestamp   int64 // monotonic ms; see clock.MonoMs
	FrameId     FrameId
	Verdict     Verdict
	ErrorType   ErrorType // zero value means "not set"
	AngleDeg    float64   // view angle for diversity tracking (§4.9)
	Direction   Direction // unit direction vector for gate coverage (§4.10)
	GateQuality float64   // caller-supplied quality scale for the gate ledger
	SoftQuality float64   // caller-supplied quality scale for the soft ledger
}

// Direction is a unit-ish direction vector (x,y,z) used by the gate
// coverage tracker's zero-trig bucketing method (§4.10). Callers need not
// normalize it; the bucketing method only consumes signs and ratios.
type Direction struct {
	X, Y, Z float64
}

// SequencedObservation pairs an Observation with the ingress-assigned
// monotonic sequence number the reorder buffer (C13) orders on.
type SequencedObservation struct {
	Seq         uint64
	Observation Observation
	ArrivalMs   int64 // monotonic ms the observation reached the reorder buffer
}
