// Package clock provides the engine's two disjoint time domains.
//
// Wall-clock time is for display and serialization only — it may jump
// backwards (NTP step, user changes the system clock) and must never drive
// a timing decision. Monotonic time never decreases and is the only
// source used for decay, cooldowns, and rate limits.
//
// The two domains are distinct Go types so a timing computation that
// accidentally receives a WallMs fails to compile rather than misbehaving
// at runtime.
package clock

import "time"

// WallMs is a wall-clock timestamp in milliseconds since the Unix epoch.
// Display and serialization only.
type WallMs int64

// MonoMs is a monotonic timestamp in milliseconds. Never decreases across
// calls to the same Clock. All timing math uses this type.
type MonoMs int64

// Sub returns a-b, clamped to zero if negative (backward monotonic time,
// which should be impossible but is handled per §5's time source discipline).
func (a MonoMs) Sub(b MonoMs) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return 0
	}
	return d
}

// Clock abstracts the two time sources so tests can advance deterministically.
type Clock interface {
	WallNowMs() WallMs
	MonotonicNowMs() MonoMs
}

// System is the production Clock backed by the OS clock.
//
// MonotonicNowMs is derived from time.Since against a fixed reference
// instant taken at construction, which uses Go's runtime monotonic reading
// internally and so is immune to wall-clock adjustments.
type System struct {
	start time.Time
}

// NewSystem creates a System clock referenced to the current instant.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// WallNowMs returns the current wall-clock time in milliseconds.
func (s *System) WallNowMs() WallMs {
	return WallMs(time.Now().UnixMilli())
}

// MonotonicNowMs returns elapsed monotonic milliseconds since the clock
// was constructed.
func (s *System) MonotonicNowMs() MonoMs {
	return MonoMs(time.Since(s.start).Milliseconds())
}

// Fake is a deterministic Clock for tests. Both domains are advanced
// explicitly by the test; they do not track real time at all.
type Fake struct {
	wall WallMs
	mono MonoMs
}

// NewFake creates a fake clock starting both domains at the given values.
func NewFake(wallMs WallMs, monoMs MonoMs) *Fake {
	return &Fake{wall: wallMs, mono: monoMs}
}

// WallNowMs returns the current fake wall-clock value.
func (f *Fake) WallNowMs() WallMs { return f.wall }

// MonotonicNowMs returns the current fake monotonic value.
func (f *Fake) MonotonicNowMs() MonoMs { return f.mono }

// Advance moves both domains forward by deltaMs.
func (f *Fake) Advance(deltaMs int64) {
	f.wall += WallMs(deltaMs)
	f.mono += MonoMs(deltaMs)
}

// StepWallBackward moves only the wall-clock domain backward, to exercise
// the "wall clock may jump" contract without perturbing monotonic timing.
func (f *Fake) StepWallBackward(deltaMs int64) {
	f.wall -= WallMs(deltaMs)
}

// SetMono forces the monotonic domain to an explicit value, including
// backward, to exercise the backward-monotonic-time warning path (§5).
func (f *Fake) SetMono(v MonoMs) {
	f.mono = v
}
