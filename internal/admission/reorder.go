package admission

import (
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

// ReleaseItem is one observation the reorder buffer has decided to
// release downstream, along with the quality scale late or out-of-order
// delivery earned it.
type ReleaseItem struct {
	Obs          domain.SequencedObservation
	QualityScale float64
}

// pendingItem is a buffered out-of-order observation awaiting its
// sequence gap to close.
type pendingItem struct {
	obs          domain.SequencedObservation
	bufferedAtMs clock.MonoMs
}

// ReorderBuffer holds observations that arrived ahead of their sequence
// slot, releasing them in order once the gap fills, the buffer fills up,
// or the oldest pending item ages out of the reorder window (§4.13).
// Small enough (capacity 16) that linear scans over the pending set are
// cheaper than a heap.
type ReorderBuffer struct {
	mu      sync.Mutex
	cfg     config.AdmissionConfig
	nextSeq uint64
	hasNext bool
	pending map[uint64]pendingItem
}

// NewReorderBuffer builds an empty buffer.
func NewReorderBuffer(cfg config.AdmissionConfig) *ReorderBuffer {
	return &ReorderBuffer{cfg: cfg, pending: make(map[uint64]pendingItem)}
}

// Push admits one sequenced observation and returns everything the
// buffer is now ready to release, in ascending sequence order.
func (r *ReorderBuffer) Push(obs domain.SequencedObservation, nowMs clock.MonoMs) []ReleaseItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasNext {
		r.nextSeq = obs.Seq
		r.hasNext = true
	}

	var released []ReleaseItem

	switch {
	case obs.Seq < r.nextSeq:
		// Arrived after its slot already closed: release immediately at a
		// lateness-scaled quality, no buffering.
		released = append(released, ReleaseItem{Obs: obs, QualityScale: latenessScale(r.cfg, obs, nowMs)})
	case obs.Seq == r.nextSeq:
		// In-order does not mean on-time: an observation can be exactly the
		// one the buffer was waiting for and still have sat in flight long
		// enough to count as late (§4.13, S6).
		released = append(released, ReleaseItem{Obs: obs, QualityScale: latenessScale(r.cfg, obs, nowMs)})
		r.nextSeq++
		released = append(released, r.drainContiguousLocked(nowMs)...)
	default:
		r.pending[obs.Seq] = pendingItem{obs: obs, bufferedAtMs: nowMs}
	}

	released = append(released, r.expireStaleLocked(nowMs)...)

	if len(r.pending) > r.cfg.ReorderMaxBuffer {
		released = append(released, r.forceAdvanceLocked(nowMs)...)
	}

	return released
}

// drainContiguousLocked releases any buffered items that now form an
// unbroken run starting at nextSeq, each scaled for its own lateness
// (§4.13) rather than assumed on-time just because its gap has closed.
func (r *ReorderBuffer) drainContiguousLocked(nowMs clock.MonoMs) []ReleaseItem {
	var out []ReleaseItem
	for {
		p, ok := r.pending[r.nextSeq]
		if !ok {
			break
		}
		delete(r.pending, r.nextSeq)
		out = append(out, ReleaseItem{Obs: p.obs, QualityScale: latenessScale(r.cfg, p.obs, nowMs)})
		r.nextSeq++
	}
	return out
}

// expireStaleLocked force-releases any pending item that has waited
// longer than the reorder window, advancing nextSeq past the gap it was
// blocking on.
func (r *ReorderBuffer) expireStaleLocked(nowMs clock.MonoMs) []ReleaseItem {
	var out []ReleaseItem
	for {
		advanced := false
		for seq, p := range r.pending {
			if nowMs.Sub(p.bufferedAtMs) < r.cfg.ReorderWindowMs {
				continue
			}
			delete(r.pending, seq)
			out = append(out, ReleaseItem{Obs: p.obs, QualityScale: latenessScale(r.cfg, p.obs, nowMs)})
			if seq >= r.nextSeq {
				r.nextSeq = seq + 1
				out = append(out, r.drainContiguousLocked(nowMs)...)
			}
			advanced = true
			break
		}
		if !advanced {
			break
		}
	}
	return out
}

// forceAdvanceLocked evicts the smallest-sequence pending item once the
// buffer exceeds its capacity, so a single missing observation can never
// grow memory use without bound.
func (r *ReorderBuffer) forceAdvanceLocked(nowMs clock.MonoMs) []ReleaseItem {
	if len(r.pending) == 0 {
		return nil
	}
	var minSeq uint64
	first := true
	for seq := range r.pending {
		if first || seq < minSeq {
			minSeq = seq
			first = false
		}
	}
	p := r.pending[minSeq]
	delete(r.pending, minSeq)
	if minSeq >= r.nextSeq {
		r.nextSeq = minSeq + 1
	}
	out := []ReleaseItem{{Obs: p.obs, QualityScale: latenessScale(r.cfg, p.obs, nowMs)}}
	out = append(out, r.drainContiguousLocked(nowMs)...)
	return out
}

// latenessScale decays quality by how long the observation has sat
// between capture and delivery, floored so a very stale observation still
// contributes a minimal signal rather than being worth nothing.
func latenessScale(cfg config.AdmissionConfig, obs domain.SequencedObservation, nowMs clock.MonoMs) float64 {
	ageMs := float64(nowMs) - float64(obs.Observation.Timestamp)
	if ageMs <= 0 {
		return 1.0
	}
	scale := float64(cfg.ReorderWindowMs) / ageMs
	if scale > 1.0 {
		scale = 1.0
	}
	if scale < 0.1 {
		scale = 0.1
	}
	return scale
}

// PendingCount reports how many observations are currently buffered
// awaiting a sequence gap to close.
func (r *ReorderBuffer) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reset clears all buffered state.
func (r *ReorderBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasNext = false
	r.pending = make(map[uint64]pendingItem)
}
