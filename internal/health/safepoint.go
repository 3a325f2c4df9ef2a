package health

import (
	"sync"

	"github.com/aether3d/evidence-core/internal/canon"
	"github.com/aether3d/evidence-core/internal/clock"
)

// SafePoint is a retained known-good snapshot payload the rollback
// strategy can restore to. The payload itself is an opaque canonical
// object produced by the snapshot package — health doesn't need to
// understand its contents, only to keep a bounded history of them.
type SafePoint struct {
	CapturedAtMs clock.MonoMs
	Payload      canon.Object
}

// SafePointManager retains the most recent capacity safe points, evicting
// the oldest once full. Grounded on the teacher's Tracer span ring buffer
// (observability.go) — overwrite-oldest-at-capacity, one mutex, simple
// slice backing store.
type SafePointManager struct {
	mu       sync.Mutex
	capacity int
	points   []SafePoint
}

// NewSafePointManager builds a manager with the given retention capacity.
func NewSafePointManager(capacity int) *SafePointManager {
	if capacity < 1 {
		capacity = 1
	}
	return &SafePointManager{capacity: capacity, points: make([]SafePoint, 0, capacity)}
}

// Record appends a new safe point, evicting the oldest if at capacity.
func (m *SafePointManager) Record(p SafePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.points) >= m.capacity {
		m.points = m.points[1:]
	}
	m.points = append(m.points, p)
}

// Latest returns the most recently recorded safe point, or false if none
// exist yet.
func (m *SafePointManager) Latest() (SafePoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.points) == 0 {
		return SafePoint{}, false
	}
	return m.points[len(m.points)-1], true
}

// All returns a copy of every retained safe point, oldest first.
func (m *SafePointManager) All() []SafePoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SafePoint, len(m.points))
	copy(out, m.points)
	return out
}

// Len reports how many safe points are currently retained.
func (m *SafePointManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}
