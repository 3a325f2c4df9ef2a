package ledger

import (
	"sort"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

// SplitLedger pairs a gate ledger (fast, permissive, drives early
// admission decisions) with a soft ledger (slower, stricter, drives final
// display once capture has progressed) and blends the two with a
// smoothstep-interpolated weight (§4.6).
type SplitLedger struct {
	cfg  config.WeightingConfig
	Gate *PatchLedger
	Soft *PatchLedger
}

// NewSplitLedger builds a split ledger. ledgerCfg is shared by both
// halves; only the blend weighting differs between gate and soft.
func NewSplitLedger(ledgerCfg config.LedgerConfig, weightingCfg config.WeightingConfig) *SplitLedger {
	return &SplitLedger{
		cfg:  weightingCfg,
		Gate: NewPatchLedger(ledgerCfg),
		Soft: NewPatchLedger(ledgerCfg),
	}
}

// UpdateGate applies an observation to the gate ledger only.
func (s *SplitLedger) UpdateGate(patchId domain.PatchId, quality float64, verdict domain.Verdict, frameId domain.FrameId, nowMs clock.MonoMs) UpdateResult {
	return s.Gate.Update(patchId, quality, verdict, frameId, nowMs)
}

// UpdateSoft applies an observation to the soft ledger only.
func (s *SplitLedger) UpdateSoft(patchId domain.PatchId, quality float64, verdict domain.Verdict, frameId domain.FrameId, nowMs clock.MonoMs) UpdateResult {
	return s.Soft.Update(patchId, quality, verdict, frameId, nowMs)
}

// BlendWeight returns the gate ledger's share of the combined evidence at
// the given capture progress in [0,1] (fraction complete, supplied by the
// caller — typically derived from coverage or aggregator confidence).
// Below transitionStart the gate dominates at gateEarly; above
// transitionEnd the soft ledger dominates (weight settles at gateLate);
// between the two a smoothstep curve interpolates so the handoff has no
// visible seam.
func (s *SplitLedger) BlendWeight(progress float64) float64 {
	start, end := s.cfg.TransitionStart, s.cfg.TransitionEnd
	if progress <= start {
		return s.cfg.GateEarly
	}
	if progress >= end {
		return s.cfg.GateLate
	}
	t := (progress - start) / (end - start)
	smooth := t * t * (3 - 2*t)
	return s.cfg.GateEarly + (s.cfg.GateLate-s.cfg.GateEarly)*smooth
}

// CombinedEvidence blends the gate and soft evidence for a patch at the
// given capture progress. A patch with no entry in either ledger reports
// zero evidence, not an error — callers check ledger presence separately
// when they need to distinguish "never observed" from "observed but
// zero".
func (s *SplitLedger) CombinedEvidence(patchId domain.PatchId, progress float64) evidence.Clamped {
	gate, _ := s.Gate.Entry(patchId)
	soft, _ := s.Soft.Entry(patchId)
	w := s.BlendWeight(progress)
	return evidence.Clamp(w*gate.Evidence.Float64() + (1-w)*soft.Evidence.Float64())
}

// CombinedLocked reports whether either half of the split ledger has
// locked the patch. A gate lock is sufficient to freeze the patch's
// display growth even before the soft ledger catches up (§4.7).
func (s *SplitLedger) CombinedLocked(patchId domain.PatchId, ledgerCfg config.LedgerConfig) bool {
	gate, ok := s.Gate.Entry(patchId)
	if ok && gate.IsLocked(ledgerCfg) {
		return true
	}
	soft, ok := s.Soft.Entry(patchId)
	return ok && soft.IsLocked(ledgerCfg)
}

// PatchIds returns the union of patch ids known to either half, sorted.
func (s *SplitLedger) PatchIds() []domain.PatchId {
	seen := make(map[domain.PatchId]struct{})
	for _, id := range s.Gate.PatchIds() {
		seen[id] = struct{}{}
	}
	for _, id := range s.Soft.PatchIds() {
		seen[id] = struct{}{}
	}
	ids := make([]domain.PatchId, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Reset clears both halves.
func (s *SplitLedger) Reset() {
	s.Gate.Reset()
	s.Soft.Reset()
}

// Prune evicts up to count patches, chosen by strategy, from both halves
// of the split ledger (§4.5a). diversityLookup supplies the diversity
// score each candidate needs for PruneLowestDiversity, since that score
// lives in the diversity tracker, not the ledger. Candidates are drawn
// from the union of patch ids known to either half; a patch's evidence
// and last-update time are taken from whichever half reports the more
// recent update, and it counts as locked if either half has locked it.
// Returns the ids actually evicted so the caller can evict them from the
// aggregator and recalibrate.
func (s *SplitLedger) Prune(strategy PruneStrategy, count int, ledgerCfg config.LedgerConfig, diversityLookup func(domain.PatchId) float64) []domain.PatchId {
	ids := s.PatchIds()
	if count <= 0 || len(ids) == 0 {
		return nil
	}

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		gate, gateOk := s.Gate.Entry(id)
		soft, softOk := s.Soft.Entry(id)

		ev := gate.Evidence.Float64()
		lastUpdateMs := gate.LastUpdateMs
		locked := gateOk && gate.IsLocked(ledgerCfg)
		if softOk && soft.LastUpdateMs > lastUpdateMs {
			ev = soft.Evidence.Float64()
			lastUpdateMs = soft.LastUpdateMs
		}
		if softOk && soft.IsLocked(ledgerCfg) {
			locked = true
		}

		div := 0.0
		if diversityLookup != nil {
			div = diversityLookup(id)
		}

		candidates = append(candidates, Candidate{
			PatchId:      id,
			Evidence:     ev,
			LastUpdateMs: lastUpdateMs,
			Locked:       locked,
			Diversity:    div,
		})
	}

	pruned := SelectForPrune(candidates, strategy, count)
	s.Gate.Remove(pruned)
	s.Soft.Remove(pruned)
	return pruned
}
