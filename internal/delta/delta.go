// Package delta tracks the smoothed rate of change of a patch's evidence
// (C15), using an asymmetric exponential moving average: evidence rising
// is smoothed faster than evidence falling, so a patch under active
// reinforcement shows its improvement sooner than a patch's display would
// otherwise retreat. The symmetric form is the teacher's reputation.ema();
// this generalizes it to two independent rates.
package delta

import (
	"sort"
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/domain"
)

// Config controls the asymmetric smoothing rates. RisingAlpha must be
// greater than or equal to FallingAlpha — a delta tracker that smooths
// falls faster than rises would contradict its purpose.
type Config struct {
	RisingAlpha  float64
	FallingAlpha float64
}

// DefaultConfig returns rates that favor fast recognition of improvement
// and slow recognition of regression.
func DefaultConfig() Config {
	return Config{RisingAlpha: 0.5, FallingAlpha: 0.1}
}

type entry struct {
	lastValue    float64
	smoothedRate float64
	lastUpdateMs clock.MonoMs
	hasLast      bool
}

// Tracker holds per-patch delta state. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	cfg  Config
	data map[domain.PatchId]*entry
}

// New builds an empty tracker.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, data: make(map[domain.PatchId]*entry)}
}

// Observe records a new raw value for patchId and returns the smoothed
// delta per second. Must be called before the caller's own display or
// ledger update overwrites the value being compared against — the delta
// is defined relative to the previous observed value, not the previous
// displayed one.
func (t *Tracker) Observe(patchId domain.PatchId, value float64, nowMs clock.MonoMs) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.data[patchId]
	if !ok {
		e = &entry{}
		t.data[patchId] = e
	}

	if !e.hasLast {
		e.lastValue = value
		e.lastUpdateMs = nowMs
		e.hasLast = true
		return 0
	}

	elapsedSec := float64(nowMs.Sub(e.lastUpdateMs)) / 1000.0
	instantRate := 0.0
	if elapsedSec > 0 {
		instantRate = (value - e.lastValue) / elapsedSec
	}

	alpha := t.cfg.FallingAlpha
	if instantRate > 0 {
		alpha = t.cfg.RisingAlpha
	}
	e.smoothedRate = alpha*instantRate + (1-alpha)*e.smoothedRate
	e.lastValue = value
	e.lastUpdateMs = nowMs

	return e.smoothedRate
}

// Rate returns the last computed smoothed delta for patchId without
// recording a new observation.
func (t *Tracker) Rate(patchId domain.PatchId) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.data[patchId]
	if !ok {
		return 0
	}
	return e.smoothedRate
}

// PatchIds returns all tracked patch ids, sorted ascending.
func (t *Tracker) PatchIds() []domain.PatchId {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]domain.PatchId, 0, len(t.data))
	for id := range t.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset clears all tracked state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = make(map[domain.PatchId]*entry)
}

// Scalar is the literal C15 asymmetric-delta tracker (§4.15): a single
// smoothed value fed directly with each frame's already-computed delta, no
// time division. Used for the engine's global gateDisplay/softDisplay
// delta (§4.19 step 10), as opposed to Tracker's per-patch value-rate
// smoothing used for diagnostic health signals.
type Scalar struct {
	mu       sync.Mutex
	cfg      Config
	smoothed float64
}

// NewScalar builds a zeroed single-value delta tracker.
func NewScalar(cfg Config) *Scalar {
	return &Scalar{cfg: cfg}
}

// Update folds newDelta into the smoothed rate and returns the result.
func (s *Scalar) Update(newDelta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	alpha := s.cfg.FallingAlpha
	if newDelta >= s.smoothed {
		alpha = s.cfg.RisingAlpha
	}
	s.smoothed = alpha*newDelta + (1-alpha)*s.smoothed
	return s.smoothed
}

// Read returns the current smoothed value without recording a new delta.
func (s *Scalar) Read() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoothed
}

// Reset sets the smoothed value back to zero.
func (s *Scalar) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothed = 0
}
