// Package diversity tracks how many distinct viewing angles a patch has
// been observed from (C9), scoring coverage breadth with a blend of
// bucket-occupancy fraction and Shannon entropy so a handful of
// repeatedly-hit angles scores lower than the same number of angles hit
// evenly.
package diversity

import (
	"math"
	"sort"
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

type angleBucket struct {
	index        int
	count        int
	lastUpdateMs clock.MonoMs
}

type patchBuckets struct {
	buckets []angleBucket // sorted by index
}

// Tracker holds per-patch angle-bucket occupancy. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	cfg  config.DiversityConfig
	data map[domain.PatchId]*patchBuckets
}

// New builds an empty tracker.
func New(cfg config.DiversityConfig) *Tracker {
	return &Tracker{cfg: cfg, data: make(map[domain.PatchId]*patchBuckets)}
}

func bucketIndex(angleDeg, bucketSizeDeg float64) int {
	normalized := math.Mod(angleDeg, 360)
	if normalized < 0 {
		normalized += 360
	}
	return int(normalized / bucketSizeDeg)
}

// AddObservation records one observation's view angle for patchId.
func (t *Tracker) AddObservation(patchId domain.PatchId, angleDeg float64, nowMs clock.MonoMs) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pb, ok := t.data[patchId]
	if !ok {
		pb = &patchBuckets{}
		t.data[patchId] = pb
	}

	idx := bucketIndex(angleDeg, t.cfg.AngleBucketSizeDeg)
	i := sort.Search(len(pb.buckets), func(i int) bool { return pb.buckets[i].index >= idx })
	if i < len(pb.buckets) && pb.buckets[i].index == idx {
		pb.buckets[i].count++
		pb.buckets[i].lastUpdateMs = nowMs
	} else {
		pb.buckets = append(pb.buckets, angleBucket{})
		copy(pb.buckets[i+1:], pb.buckets[i:])
		pb.buckets[i] = angleBucket{index: idx, count: 1, lastUpdateMs: nowMs}
	}

	if len(pb.buckets) > t.cfg.MaxBucketsTracked {
		t.evictOldest(pb)
	}
}

// evictOldest drops the least-recently-updated bucket. Removing one
// element keeps the rest in index order, so AddObservation's binary
// search stays valid without a re-sort.
func (t *Tracker) evictOldest(pb *patchBuckets) {
	oldest := 0
	for i := 1; i < len(pb.buckets); i++ {
		if pb.buckets[i].lastUpdateMs < pb.buckets[oldest].lastUpdateMs {
			oldest = i
		}
	}
	pb.buckets = append(pb.buckets[:oldest], pb.buckets[oldest+1:]...)
}

// Score returns the diversity score for patchId: 0.6 times the fraction
// of possible angle buckets occupied, plus 0.4 times the Shannon entropy
// of the per-bucket observation distribution normalized against the
// maximum possible entropy (log2 of the bucket capacity). A patch with no
// observations scores a perfect 1.0 — diversity is only a penalty once
// evidence starts accumulating, not a precondition for showing anything.
func (t *Tracker) Score(patchId domain.PatchId) evidence.Clamped {
	t.mu.Lock()
	defer t.mu.Unlock()

	pb, ok := t.data[patchId]
	if !ok || len(pb.buckets) == 0 {
		return evidence.One
	}

	maxBuckets := t.cfg.MaxBucketsTracked
	if maxBuckets <= 0 {
		maxBuckets = 1
	}
	occupancy := float64(len(pb.buckets)) / float64(maxBuckets)

	total := 0
	for _, b := range pb.buckets {
		total += b.count
	}
	entropy := 0.0
	for _, b := range pb.buckets {
		p := float64(b.count) / float64(total)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	maxEntropy := math.Log2(float64(maxBuckets))
	normalizedEntropy := 0.0
	if maxEntropy > 0 {
		normalizedEntropy = entropy / maxEntropy
	}

	return evidence.Clamp(0.6*occupancy + 0.4*normalizedEntropy)
}

// BucketCount returns the number of distinct angle buckets occupied for
// patchId.
func (t *Tracker) BucketCount(patchId domain.PatchId) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pb, ok := t.data[patchId]
	if !ok {
		return 0
	}
	return len(pb.buckets)
}

// Reset clears all tracked state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = make(map[domain.PatchId]*patchBuckets)
}
