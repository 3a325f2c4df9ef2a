// Package aggregator implements the bucketed, time-decayed evidence
// aggregator (C8): a single ring of at most 8 recency buckets shared by
// every tracked patch, plus a compact patchId -> (bucketIndex, evidence,
// weight) index so a patch's contribution can be moved between buckets in
// O(1) and the overall total evidence recomputed in O(k), k = bucket
// count. Grounded on the teacher's autoscale ring-buffer sampling window
// (internal/infra/autoscale.go), generalized from one global load sample
// per tick into one weighted evidence sample per patch, still kept in a
// single shared ring rather than per-patch state.
package aggregator

import (
	"sort"
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

// decayTable holds the fixed per-bucket-age decay weights, bucket 0 (most
// recent) first. A closed table, rather than a recomputed exponential,
// keeps TotalEvidence's cost and shape exactly predictable regardless of
// the configured half-life (§4.8).
var decayTable = [8]float64{1.00, 0.84, 0.71, 0.59, 0.50, 0.42, 0.35, 0.30}

// bucket accumulates the weighted evidence of every patch currently
// assigned to this rotation window.
type bucket struct {
	weightedSum float64
	totalWeight float64
	patchCount  int
}

// patchLoc is the compact index entry for one patch: which bucket its
// latest contribution lives in, and the evidence/weight it contributed,
// so a later update (or recalibration) can subtract it cleanly.
type patchLoc struct {
	bucketIndex int
	evidence    float64
	weight      float64
}

// Sample is one patch's current evidence/weight/recency, supplied by the
// caller for a full Recalibrate pass (the aggregator does not itself know
// a patch's last-update time once it is bucketed).
type Sample struct {
	Evidence     float64
	Weight       float64
	LastUpdateMs clock.MonoMs
}

// Aggregator holds the single shared bucket ring and patch index. Safe for
// concurrent use.
type Aggregator struct {
	mu sync.Mutex

	cfg         config.AggregatorConfig
	buckets     []bucket
	bucketStart clock.MonoMs
	hasStart    bool
	index       map[domain.PatchId]patchLoc

	framesSinceRecal int
	recalibrations   int
}

// New builds an empty aggregator with a fixed-size bucket ring (always
// cfg.MaxBuckets long; unused slots simply carry zero weight).
func New(cfg config.AggregatorConfig) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		buckets: make([]bucket, cfg.MaxBuckets),
		index:   make(map[domain.PatchId]patchLoc),
	}
}

// rotate advances the bucket ring so bucket 0 covers nowMs. The ring is a
// fixed MaxBuckets slots; a bucket (or a patch's index entry) that would
// shift past the last slot is merged additively into it rather than
// discarded — the last slot is a "this old or older" catch-all, which is
// what lets a lone, never-updated patch's TotalEvidence stay exactly 1.0
// for the life of the ring (its weight and weighted sum both land in the
// same slot, so the decay factor cancels out of the ratio) instead of
// vanishing once it ages past the ring's span.
func (a *Aggregator) rotate(nowMs clock.MonoMs) {
	if !a.hasStart {
		a.bucketStart = nowMs
		a.hasStart = true
		return
	}
	elapsed := nowMs.Sub(a.bucketStart)
	if elapsed < a.cfg.BucketDurationMs {
		return
	}
	steps := int(elapsed / a.cfg.BucketDurationMs)
	if steps <= 0 {
		return
	}

	last := a.cfg.MaxBuckets - 1
	shifted := make([]bucket, a.cfg.MaxBuckets)
	for i, b := range a.buckets {
		target := i + steps
		if target > last {
			target = last
		}
		shifted[target].weightedSum += b.weightedSum
		shifted[target].totalWeight += b.totalWeight
		shifted[target].patchCount += b.patchCount
	}
	a.buckets = shifted

	for id, loc := range a.index {
		newIdx := loc.bucketIndex + steps
		if newIdx > last {
			newIdx = last
		}
		loc.bucketIndex = newIdx
		a.index[id] = loc
	}
	a.bucketStart += clock.MonoMs(steps) * clock.MonoMs(a.cfg.BucketDurationMs)
}

// UpdatePatch records patchId's current blended evidence with the given
// baseWeight (the caller's frequency-cap factor only — time decay is
// applied entirely by the bucket ring, never baked into baseWeight) at
// nowMs (§4.8).
func (a *Aggregator) UpdatePatch(patchId domain.PatchId, patchEvidence float64, baseWeight float64, nowMs clock.MonoMs) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rotate(nowMs)

	if loc, ok := a.index[patchId]; ok && loc.bucketIndex < len(a.buckets) {
		b := &a.buckets[loc.bucketIndex]
		b.weightedSum -= loc.evidence * loc.weight
		b.totalWeight -= loc.weight
		b.patchCount--
	}

	ev := evidence.Clamp(patchEvidence).Float64()
	a.buckets[0].weightedSum += ev * baseWeight
	a.buckets[0].totalWeight += baseWeight
	a.buckets[0].patchCount++
	a.index[patchId] = patchLoc{bucketIndex: 0, evidence: ev, weight: baseWeight}

	a.framesSinceRecal++
}

// TotalEvidence returns the single decay-weighted mean evidence across
// every tracked patch (the session "progress" signal that drives the
// split ledger's dynamic gate/soft blend, §4.6). O(8).
func (a *Aggregator) TotalEvidence() evidence.Clamped {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalEvidenceLocked()
}

func (a *Aggregator) totalEvidenceLocked() evidence.Clamped {
	var weightedSum, weightTotal float64
	for i, b := range a.buckets {
		if i >= len(decayTable) {
			break
		}
		d := decayTable[i]
		weightedSum += b.weightedSum * d
		weightTotal += b.totalWeight * d
	}
	if weightTotal == 0 {
		return evidence.Zero
	}
	return evidence.Clamp(weightedSum / weightTotal)
}

// RecalibrationDue reports whether enough updates have landed since the
// last recalibration (§4.8's "mark recalibration due if frameCount >= 60")
// that the caller should build a fresh Sample set and call Recalibrate to
// correct incremental floating-point drift.
func (a *Aggregator) RecalibrationDue() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.RecalibrateEveryFrames > 0 && a.framesSinceRecal >= a.cfg.RecalibrateEveryFrames
}

// Recalibrate clears the bucket ring and re-bins every sample in patches
// by its own age (LastUpdateMs relative to nowMs), capped at the oldest
// bucket index, correcting the drift that incremental
// subtraction/addition accumulates under floating point (§4.8, P7).
func (a *Aggregator) Recalibrate(patches map[domain.PatchId]Sample, nowMs clock.MonoMs) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buckets = make([]bucket, a.cfg.MaxBuckets)
	a.bucketStart = nowMs
	a.hasStart = true
	a.index = make(map[domain.PatchId]patchLoc, len(patches))

	ids := make([]domain.PatchId, 0, len(patches))
	for id := range patches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s := patches[id]
		ageMs := nowMs.Sub(s.LastUpdateMs)
		idx := int(int64(ageMs) / a.cfg.BucketDurationMs)
		if idx < 0 {
			idx = 0
		}
		if idx >= a.cfg.MaxBuckets {
			idx = a.cfg.MaxBuckets - 1
		}
		ev := evidence.Clamp(s.Evidence).Float64()
		a.buckets[idx].weightedSum += ev * s.Weight
		a.buckets[idx].totalWeight += s.Weight
		a.buckets[idx].patchCount++
		a.index[id] = patchLoc{bucketIndex: idx, evidence: ev, weight: s.Weight}
	}

	a.framesSinceRecal = 0
	a.recalibrations++
}

// Remove drops patches from the index and their buckets, used after
// pruning (§4.5). Callers should follow with Recalibrate once the
// remaining patch set is known, per the pruning invariant in §4.8.
func (a *Aggregator) Remove(ids []domain.PatchId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		loc, ok := a.index[id]
		if !ok {
			continue
		}
		if loc.bucketIndex < len(a.buckets) {
			b := &a.buckets[loc.bucketIndex]
			b.weightedSum -= loc.evidence * loc.weight
			b.totalWeight -= loc.weight
			b.patchCount--
		}
		delete(a.index, id)
	}
}

// Recalibrations returns the number of recalibration passes run so far.
func (a *Aggregator) Recalibrations() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recalibrations
}

// PatchIds returns every patch id currently indexed, sorted ascending.
func (a *Aggregator) PatchIds() []domain.PatchId {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]domain.PatchId, 0, len(a.index))
	for id := range a.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset clears all aggregator state back to an empty ring.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make([]bucket, a.cfg.MaxBuckets)
	a.hasStart = false
	a.index = make(map[domain.PatchId]patchLoc)
	a.framesSinceRecal = 0
	a.recalibrations = 0
}
