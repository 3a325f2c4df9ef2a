package ledger

import (
	"sort"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/domain"
)

// PruneStrategy selects which eviction ordering a capacity-constrained
// ledger applies when it exceeds its tracked-patch budget (§4.5a).
type PruneStrategy string

const (
	// PruneLowestEvidence evicts the weakest patches first.
	PruneLowestEvidence PruneStrategy = "lowestEvidence"
	// PruneOldestLastUpdate evicts whatever hasn't been touched in the
	// longest time, favoring patches still actively being observed.
	PruneOldestLastUpdate PruneStrategy = "oldestLastUpdate"
	// PruneLowestDiversity evicts patches seen from the fewest distinct
	// viewing angles, on the theory that a well-covered patch is more
	// trustworthy even at equal evidence.
	PruneLowestDiversity PruneStrategy = "lowestDiversity"
	// PruneNotLockedFirst never evicts a locked patch while an unlocked
	// one remains, breaking ties within each group by ascending evidence.
	PruneNotLockedFirst PruneStrategy = "notLockedFirst"
)

// Candidate carries the fields a prune decision needs about one patch.
// Diversity is supplied by the caller since the diversity score lives in
// a separate tracker, not the ledger itself.
type Candidate struct {
	PatchId      domain.PatchId
	Evidence     float64
	LastUpdateMs clock.MonoMs
	Locked       bool
	Diversity    float64
}

// SelectForPrune returns up to count patch ids to evict, ordered
// worst-to-keep-first according to strategy. If count exceeds the number
// of candidates, all candidates are returned.
func SelectForPrune(candidates []Candidate, strategy PruneStrategy, count int) []domain.PatchId {
	if count <= 0 || len(candidates) == 0 {
		return nil
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)

	switch strategy {
	case PruneOldestLastUpdate:
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].LastUpdateMs < ordered[j].LastUpdateMs
		})
	case PruneLowestDiversity:
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Diversity != ordered[j].Diversity {
				return ordered[i].Diversity < ordered[j].Diversity
			}
			return ordered[i].Evidence < ordered[j].Evidence
		})
	case PruneNotLockedFirst:
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Locked != ordered[j].Locked {
				return !ordered[i].Locked // unlocked sorts first (evicted first)
			}
			return ordered[i].Evidence < ordered[j].Evidence
		})
	case PruneLowestEvidence:
		fallthrough
	default:
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].Evidence < ordered[j].Evidence
		})
	}

	if count > len(ordered) {
		count = len(ordered)
	}
	ids := make([]domain.PatchId, count)
	for i := 0; i < count; i++ {
		ids[i] = ordered[i].PatchId
	}
	return ids
}
