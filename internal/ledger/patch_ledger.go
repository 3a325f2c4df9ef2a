// Package ledger implements the per-patch split ledger (C5/C6): the
// gate/soft PatchEntry maps, gradual bad-verdict penalty with corpse
// protection and cooldown, lock propagation, and the dynamic gate/soft
// blending weights used to combine them into one evidence scalar per
// patch. Modeled on the teacher's reputation.Tracker — a mutex-guarded
// map keyed by id, EMA-flavored updates, and an injectable clock for
// deterministic tests.
package ledger

import (
	"sort"
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
)

// PatchEntry is the per-(ledger-kind, patch) state (§3).
type PatchEntry struct {
	Evidence         evidence.Clamped
	LastUpdateMs     clock.MonoMs
	ObservationCount int
	BestFrameId      domain.FrameId
	HasBestFrame     bool
	ErrorCount       int
	ErrorStreak      int
	LastGoodUpdateMs clock.MonoMs
	HasLastGood      bool
	SuspectCount     int
}

// IsLocked reports whether this entry has crossed the lock thresholds
// (§3). Locking is a pure function of evidence and observation count, so
// it is monotonic for free: neither quantity ever decreases for a locked
// entry once the normal (non-locked) update path stops applying bad-verdict
// penalties to it.
func (e *PatchEntry) IsLocked(cfg config.LedgerConfig) bool {
	return e.Evidence.Float64() >= cfg.LockThreshold && e.ObservationCount >= cfg.MinObservationsForLock
}

// Clone returns a value copy safe to hand to a reader.
func (e *PatchEntry) Clone() PatchEntry {
	return *e
}

// UpdateResult reports what a single Update call did, for callers (the
// engine) that need the resulting evidence and lock state without a
// second lookup.
type UpdateResult struct {
	Evidence       evidence.Clamped
	Locked         bool
	PenaltyApplied float64
}

// PatchLedger is one of the two parallel ledgers in a SplitLedger (gate or
// soft). Safe for concurrent use.
type PatchLedger struct {
	mu      sync.Mutex
	cfg     config.LedgerConfig
	entries map[domain.PatchId]*PatchEntry
}

// NewPatchLedger creates an empty ledger.
func NewPatchLedger(cfg config.LedgerConfig) *PatchLedger {
	return &PatchLedger{
		cfg:     cfg,
		entries: make(map[domain.PatchId]*PatchEntry),
	}
}

// Entry returns a copy of the current entry for patchId, or false if the
// patch has never been observed.
func (l *PatchLedger) Entry(patchId domain.PatchId) (PatchEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[patchId]
	if !ok {
		return PatchEntry{}, false
	}
	return e.Clone(), true
}

// PatchIds returns all known patch ids, sorted ascending for deterministic
// iteration (I7).
func (l *PatchLedger) PatchIds() []domain.PatchId {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]domain.PatchId, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Update applies one observation to this ledger (§4.5). verdict must
// already be normalized (VerdictUnknown coerced to VerdictSuspect by the
// caller) — the ledger does not re-normalize so that "unknown" logging
// happens exactly once, at the engine boundary.
func (l *PatchLedger) Update(
	patchId domain.PatchId,
	ledgerQuality float64,
	verdict domain.Verdict,
	frameId domain.FrameId,
	nowMs clock.MonoMs,
) UpdateResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[patchId]
	if !ok {
		e = &PatchEntry{}
		l.entries[patchId] = e
	}

	wasLocked := e.IsLocked(l.cfg)
	q := evidence.Clamp(ledgerQuality).Float64()
	penalty := 0.0

	if wasLocked {
		if verdict == domain.VerdictGood && q > e.Evidence.Float64() {
			e.Evidence = evidence.Clamp(q)
			e.BestFrameId = frameId
			e.HasBestFrame = true
		} else {
			switch verdict {
			case domain.VerdictSuspect:
				e.SuspectCount++
			case domain.VerdictBad:
				e.ErrorCount++
				e.ErrorStreak++
			}
		}
	} else {
		switch verdict {
		case domain.VerdictGood:
			e.ErrorStreak = 0
			e.LastGoodUpdateMs = nowMs
			e.HasLastGood = true
			if q > e.Evidence.Float64() {
				e.Evidence = evidence.Clamp(q)
				e.BestFrameId = frameId
				e.HasBestFrame = true
			}
		case domain.VerdictSuspect:
			e.SuspectCount++
		case domain.VerdictBad:
			e.ErrorStreak++
			e.ErrorCount++
			penalty = gradualPenalty(e, nowMs, l.cfg)
			e.Evidence = evidence.Clamp(e.Evidence.Float64() - penalty)
		}
	}

	e.ObservationCount++
	e.LastUpdateMs = nowMs

	return UpdateResult{
		Evidence:       e.Evidence,
		Locked:         e.IsLocked(l.cfg),
		PenaltyApplied: penalty,
	}
}

// gradualPenalty computes the frame-rate-independent bad-verdict penalty
// (§4.5). Must be called with the ledger's mutex already held and after
// errorStreak has been incremented for the current observation.
func gradualPenalty(e *PatchEntry, nowMs clock.MonoMs, cfg config.LedgerConfig) float64 {
	if !e.HasLastGood {
		return 0
	}

	ageSec := float64(nowMs.Sub(e.LastGoodUpdateMs)) / 1000.0
	if ageSec > cfg.CorpseProtectionSec {
		return 0 // Don't flog a stale patch.
	}
	if ageSec < cfg.CooldownSec {
		return 0
	}

	streakMultiplier := 1 + cfg.StreakMultiplierStep*float64(e.ErrorStreak)
	if streakMultiplier > cfg.StreakMultiplierCap {
		streakMultiplier = cfg.StreakMultiplierCap
	}

	fps := cfg.AssumedFPS
	if fps <= 0 {
		fps = 30
	}

	fromStreak := cfg.BasePerObservation * streakMultiplier
	fromRate := cfg.MaxPerSec / fps
	if fromStreak < fromRate {
		return fromStreak
	}
	return fromRate
}

// RestoreEntry directly installs entry for patchId, bypassing the normal
// verdict-driven update rules. Used only by snapshot restore (§4.18),
// which reconstructs bookkeeping fields from serialized state rather than
// replaying observations.
func (l *PatchLedger) RestoreEntry(patchId domain.PatchId, entry PatchEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := entry
	l.entries[patchId] = &clone
}

// Reset clears all ledger state, per the explicit-reset escape hatch from
// the locking invariant in §4.5.
func (l *PatchLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[domain.PatchId]*PatchEntry)
}

// Remove deletes the entries for the given patch ids, used by pruning.
func (l *PatchLedger) Remove(ids []domain.PatchId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.entries, id)
	}
}

// Len returns the number of tracked patches.
func (l *PatchLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
