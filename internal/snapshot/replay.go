package snapshot

import (
	"sort"

	"github.com/aether3d/evidence-core/internal/domain"
)

// Replay feeds a recorded log of sequenced observations through apply in
// strictly ascending sequence order, regardless of the order the log
// itself was stored in. Determinism (P6) depends on every replay visiting
// observations in the same order a live capture's reorder buffer would
// eventually have released them in, not the arrival order they happened
// to be appended to the log.
func Replay(log []domain.SequencedObservation, apply func(domain.SequencedObservation)) {
	ordered := make([]domain.SequencedObservation, len(log))
	copy(ordered, log)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	for _, obs := range ordered {
		apply(obs)
	}
}
