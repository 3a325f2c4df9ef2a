// Package display implements the patch display map (C7): the
// monotonically non-decreasing, EMA-smoothed value actually shown to a
// caller, derived from (but never identical to) the split ledger's raw
// combined evidence. Smoothing follows the teacher's reputation.ema()
// shape — alpha*sample + (1-alpha)*old — generalized with a
// locked-acceleration multiplier and a monotonic floor.
package display

import (
	"sort"
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

// Entry is one patch's displayed state (§3's DisplayEntry). Ema is kept
// distinct from Value: it tracks the raw EMA of target evidence and can
// fall, while Value (the actual display) never does.
type Entry struct {
	Value            evidence.Clamped
	Ema              evidence.Clamped
	ObservationCount int
	LastUpdateMs     clock.MonoMs
	Locked           bool
}

// Map holds the display entries for every known patch. Safe for
// concurrent use.
type Map struct {
	mu      sync.Mutex
	cfg     config.DisplayConfig
	entries map[domain.PatchId]*Entry
}

// New builds an empty display map.
func New(cfg config.DisplayConfig) *Map {
	return &Map{cfg: cfg, entries: make(map[domain.PatchId]*Entry)}
}

// Update moves the displayed value for patchId toward target (§4.7):
//
//  1. Look up (or create at zero) the entry; read prevDisplay, prevEma.
//  2. Clamp target into [0,1].
//  3. newEma := alpha*target + (1-alpha)*prevEma — the EMA always moves,
//     even downward, independent of the display floor below.
//  4. baseNext := newEma.
//  5. If locked: growth := baseNext - prevDisplay; next := prevDisplay +
//     growth*LockedAcceleration, clamped into [prevDisplay, 1].
//  6. Else: next := clamp(baseNext, prevDisplay, 1) — the display itself
//     never moves backward (I1), regardless of what the EMA is doing.
//  7. Record the new value, EMA, observation count, timestamp, and lock
//     state.
func (m *Map) Update(patchId domain.PatchId, target float64, nowMs clock.MonoMs, locked bool) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[patchId]
	if !ok {
		e = &Entry{}
		m.entries[patchId] = e
	}

	clampedTarget := evidence.Clamp(target).Float64()
	prevDisplay := e.Value.Float64()
	prevEma := e.Ema.Float64()

	alpha := m.cfg.Alpha
	newEma := alpha*clampedTarget + (1-alpha)*prevEma
	baseNext := newEma

	var next float64
	if locked {
		growth := baseNext - prevDisplay
		next = prevDisplay + growth*m.cfg.LockedAcceleration
	} else {
		next = baseNext
	}
	next = clampFloor(next, prevDisplay)

	e.Value = evidence.Clamp(next)
	e.Ema = evidence.Clamp(newEma)
	e.ObservationCount++
	e.LastUpdateMs = nowMs
	e.Locked = locked
	return *e
}

// clampFloor clips v into [floor, 1], enforcing the monotonic display
// floor and the [0,1] ceiling in one step.
func clampFloor(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	if v > 1 {
		return 1
	}
	return v
}

// Restore directly installs value as patchId's display, bypassing the EMA
// smoothing step. Used only by snapshot restore (§4.18): a loaded snapshot
// already holds the final display value, and re-deriving it through a
// single partial EMA step toward that target would under-restore it.
func (m *Map) Restore(patchId domain.PatchId, value float64, nowMs clock.MonoMs, locked bool) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[patchId]
	if !ok {
		e = &Entry{}
		m.entries[patchId] = e
	}
	current := evidence.Clamp(value).Float64()
	if current < e.Value.Float64() {
		current = e.Value.Float64() // restore never moves display backward either (I1)
	}
	e.Value = evidence.Clamp(current)
	e.Ema = evidence.Clamp(current)
	e.LastUpdateMs = nowMs
	e.Locked = locked
	return *e
}

// Entry returns a copy of the current entry, or false if unknown.
func (m *Map) Entry(patchId domain.PatchId) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[patchId]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// PatchIds returns all known patch ids, sorted ascending.
func (m *Map) PatchIds() []domain.PatchId {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]domain.PatchId, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset clears all display state.
func (m *Map) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[domain.PatchId]*Entry)
}

// ColorHybrid blends a locally-observed color confidence with a
// globally-aggregated one using the configured color weights, for
// callers layering a color-evidence signal on top of geometric evidence.
func ColorHybrid(cfg config.ColorConfig, local, global float64) evidence.Clamped {
	return evidence.Clamp(cfg.LocalWeight*local + cfg.GlobalWeight*global)
}
