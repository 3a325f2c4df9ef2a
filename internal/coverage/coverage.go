// Package coverage implements the gate coverage tracker (C10): per-patch
// angular coverage over a spherical theta/phi bucket grid, stored as
// bitsets so membership, union, and popcount are all word-level integer
// operations. Bucketing from a direction vector uses no trigonometry —
// just sign tests and one ratio comparison per octant, since the
// direction vector's exact angle is never needed, only which bucket it
// falls in.
package coverage

import (
	"math"
	"sync"

	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

const wordBits = 64

// bitset is a fixed-size bit vector backed by uint64 words.
type bitset struct {
	words []uint64
	n     int
}

func newBitset(n int) bitset {
	return bitset{words: make([]uint64, (n+wordBits-1)/wordBits), n: n}
}

func (b *bitset) set(i int) {
	b.words[i/wordBits] |= 1 << uint(i%wordBits)
}

func (b *bitset) clear(i int) {
	b.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

func (b *bitset) isSet(i int) bool {
	return b.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

func (b *bitset) popcount() int {
	total := 0
	for _, w := range b.words {
		total += popcount64(w)
	}
	return total
}

func popcount64(w uint64) int {
	count := 0
	for w != 0 {
		w &= w - 1
		count++
	}
	return count
}

// record is one retained observation, kept so eviction can rebuild the
// bitset when the last occupant of a bucket ages out.
type record struct {
	thetaIdx   int
	phiIdx     int
	frameIndex int
}

type patchCoverage struct {
	theta   bitset
	phi     bitset
	records []record // ascending by frameIndex
}

// Tracker holds per-patch angular coverage. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	cfg  config.CoverageConfig
	data map[domain.PatchId]*patchCoverage
}

// New builds an empty tracker.
func New(cfg config.CoverageConfig) *Tracker {
	return &Tracker{cfg: cfg, data: make(map[domain.PatchId]*patchCoverage)}
}

// bucketFromDirection maps a direction vector to a (theta, phi) bucket
// pair without trigonometry: the octant is chosen from the signs of x, y,
// z, and the position within the octant from a ratio comparison against
// the unit diagonal, then scaled into the configured bucket counts.
func bucketFromDirection(d domain.Direction, thetaBuckets, phiBuckets int) (int, int) {
	ax, ay, az := math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)
	if ax+ay+az == 0 {
		return 0, 0
	}

	// Octant index from sign bits: 0..7.
	octant := 0
	if d.X < 0 {
		octant |= 1
	}
	if d.Y < 0 {
		octant |= 2
	}
	if d.Z < 0 {
		octant |= 4
	}

	// Position within the octant's quarter-turn, via the ratio of the
	// two horizontal components — avoids atan2 entirely.
	horiz := ax + ay
	frac := 0.5
	if horiz > 0 {
		frac = ax / horiz
	}
	slice := thetaBuckets / 8
	if slice < 1 {
		slice = 1
	}
	thetaIdx := octant*slice + int(frac*float64(slice))
	if thetaIdx >= thetaBuckets {
		thetaIdx = thetaBuckets - 1
	}

	// Phi from the vertical component's fraction of the total magnitude.
	vertFrac := 0.5
	total := ax + ay + az
	if total > 0 {
		vertFrac = az / total
	}
	phiIdx := int(vertFrac * float64(phiBuckets))
	if phiIdx >= phiBuckets {
		phiIdx = phiBuckets - 1
	}

	return thetaIdx, phiIdx
}

// AddObservation records a direction for patchId at the given frame
// index (a strictly increasing counter used only for eviction ordering).
func (t *Tracker) AddObservation(patchId domain.PatchId, dir domain.Direction, frameIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.data[patchId]
	if !ok {
		pc = &patchCoverage{
			theta: newBitset(t.cfg.ThetaBuckets),
			phi:   newBitset(t.cfg.PhiBuckets),
		}
		t.data[patchId] = pc
	}

	thetaIdx, phiIdx := bucketFromDirection(dir, t.cfg.ThetaBuckets, t.cfg.PhiBuckets)
	pc.theta.set(thetaIdx)
	pc.phi.set(phiIdx)
	pc.records = append(pc.records, record{thetaIdx: thetaIdx, phiIdx: phiIdx, frameIndex: frameIndex})

	if t.cfg.MaxRecords > 0 && len(pc.records) > t.cfg.MaxRecords {
		t.evictOldestLocked(pc)
	}
}

// evictOldestLocked drops the single oldest record and, if no remaining
// record still occupies that record's bucket, clears the corresponding
// bit.
func (t *Tracker) evictOldestLocked(pc *patchCoverage) {
	evicted := pc.records[0]
	pc.records = pc.records[1:]

	thetaStillOccupied := false
	phiStillOccupied := false
	for _, r := range pc.records {
		if r.thetaIdx == evicted.thetaIdx {
			thetaStillOccupied = true
		}
		if r.phiIdx == evicted.phiIdx {
			phiStillOccupied = true
		}
	}
	if !thetaStillOccupied {
		pc.theta.clear(evicted.thetaIdx)
	}
	if !phiStillOccupied {
		pc.phi.clear(evicted.phiIdx)
	}
}

// Level reports how far coverage has progressed for patchId: 0 (none),
// 2, or 3, based on the fraction of theta/phi buckets occupied against
// the configured L2/L3 thresholds, using the tighter of the two axes.
func (t *Tracker) Level(patchId domain.PatchId) int {
	frac := t.fraction(patchId)
	switch {
	case frac >= t.cfg.L3Threshold:
		return 3
	case frac >= t.cfg.L2Threshold:
		return 2
	default:
		return 0
	}
}

// fraction returns the minimum of the theta and phi occupancy fractions.
func (t *Tracker) fraction(patchId domain.PatchId) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.data[patchId]
	if !ok {
		return 0
	}
	thetaFrac := float64(pc.theta.popcount()) / float64(t.cfg.ThetaBuckets)
	phiFrac := float64(pc.phi.popcount()) / float64(t.cfg.PhiBuckets)
	if thetaFrac < phiFrac {
		return thetaFrac
	}
	return phiFrac
}

// Score maps the coverage fraction directly into [0,1], for callers that
// want a continuous signal rather than the discrete Level.
func (t *Tracker) Score(patchId domain.PatchId) evidence.Clamped {
	return evidence.Clamp(t.fraction(patchId))
}

// Reset clears all tracked coverage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = make(map[domain.PatchId]*patchCoverage)
}
