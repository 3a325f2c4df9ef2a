package ledger

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/clock"
)

func candidates() []Candidate {
	return []Candidate{
		{PatchId: "a", Evidence: 0.9, LastUpdateMs: clock.MonoMs(300), Locked: true, Diversity: 0.1},
		{PatchId: "b", Evidence: 0.1, LastUpdateMs: clock.MonoMs(100), Locked: false, Diversity: 0.9},
		{PatchId: "c", Evidence: 0.5, LastUpdateMs: clock.MonoMs(200), Locked: false, Diversity: 0.5},
	}
}

func TestSelectForPruneLowestEvidence(t *testing.T) {
	ids := SelectForPrune(candidates(), PruneLowestEvidence, 1)
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("got %v, want [b]", ids)
	}
}

func TestSelectForPruneOldestLastUpdate(t *testing.T) {
	ids := SelectForPrune(candidates(), PruneOldestLastUpdate, 1)
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("got %v, want [b]", ids)
	}
}

func TestSelectForPruneLowestDiversity(t *testing.T) {
	ids := SelectForPrune(candidates(), PruneLowestDiversity, 1)
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("got %v, want [a]", ids)
	}
}

func TestSelectForPruneNotLockedFirst(t *testing.T) {
	ids := SelectForPrune(candidates(), PruneNotLockedFirst, 2)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("got %v, want [b c] (locked patch a must survive)", ids)
	}
}

func TestSelectForPruneCountExceedsCandidates(t *testing.T) {
	ids := SelectForPrune(candidates(), PruneLowestEvidence, 100)
	if len(ids) != 3 {
		t.Errorf("len = %d, want 3", len(ids))
	}
}

func TestSelectForPruneEmpty(t *testing.T) {
	if ids := SelectForPrune(nil, PruneLowestEvidence, 5); ids != nil {
		t.Errorf("got %v, want nil", ids)
	}
}
