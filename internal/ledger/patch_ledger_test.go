package ledger

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

func TestUpdateGoodRaisesEvidenceOnNewMax(t *testing.T) {
	l := NewPatchLedger(config.DefaultLedgerConfig())

	r := l.Update("p1", 0.5, domain.VerdictGood, "f1", clock.MonoMs(0))
	if r.Evidence.Float64() != 0.5 {
		t.Fatalf("evidence = %v, want 0.5", r.Evidence.Float64())
	}

	// A lower-quality good observation must not lower the recorded max.
	r = l.Update("p1", 0.3, domain.VerdictGood, "f2", clock.MonoMs(100))
	if r.Evidence.Float64() != 0.5 {
		t.Fatalf("evidence = %v, want 0.5 (unchanged)", r.Evidence.Float64())
	}

	r = l.Update("p1", 0.9, domain.VerdictGood, "f3", clock.MonoMs(200))
	if r.Evidence.Float64() != 0.9 {
		t.Fatalf("evidence = %v, want 0.9", r.Evidence.Float64())
	}
}

func TestLockPropagatesAndIsMonotonic(t *testing.T) {
	cfg := config.DefaultLedgerConfig()
	cfg.LockThreshold = 0.8
	cfg.MinObservationsForLock = 3
	l := NewPatchLedger(cfg)

	l.Update("p1", 0.9, domain.VerdictGood, "f1", clock.MonoMs(0))
	l.Update("p1", 0.9, domain.VerdictGood, "f2", clock.MonoMs(10))
	r := l.Update("p1", 0.9, domain.VerdictGood, "f3", clock.MonoMs(20))
	if !r.Locked {
		t.Fatal("expected locked after 3rd observation crossing threshold")
	}

	// A subsequent bad verdict must not unlock or reduce evidence.
	r = l.Update("p1", 0.1, domain.VerdictBad, "f4", clock.MonoMs(30))
	if !r.Locked {
		t.Error("locked entry must stay locked")
	}
	if r.Evidence.Float64() != 0.9 {
		t.Errorf("locked entry evidence = %v, want unchanged 0.9", r.Evidence.Float64())
	}

	entry, ok := l.Entry("p1")
	if !ok {
		t.Fatal("entry not found")
	}
	if entry.ErrorCount != 1 || entry.ErrorStreak != 1 {
		t.Errorf("locked bad verdict should still count errors: got %+v", entry)
	}
}

// TestGradualPenaltyScenario mirrors the documented three-bad-observation
// walkthrough: an isolated bad observation inside the cooldown window is
// free, a second bad observation outside cooldown but inside corpse
// protection applies a streak-scaled penalty, and a third bad observation
// long after the last good update is fully protected.
func TestGradualPenaltyScenario(t *testing.T) {
	l := NewPatchLedger(config.DefaultLedgerConfig())

	l.Update("p1", 0.9, domain.VerdictGood, "f0", clock.MonoMs(0))

	r := l.Update("p1", 0.0, domain.VerdictBad, "f1", clock.MonoMs(400))
	if r.PenaltyApplied != 0 {
		t.Errorf("first bad inside cooldown: penalty = %v, want 0", r.PenaltyApplied)
	}
	if r.Evidence.Float64() != 0.9 {
		t.Errorf("evidence after cooldown-protected bad = %v, want 0.9", r.Evidence.Float64())
	}

	r = l.Update("p1", 0.0, domain.VerdictBad, "f2", clock.MonoMs(700))
	want := 0.014
	if diff := r.PenaltyApplied - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("second bad penalty = %v, want %v", r.PenaltyApplied, want)
	}
	if diff := r.Evidence.Float64() - (0.9 - want); diff > 1e-9 || diff < -1e-9 {
		t.Errorf("evidence after second bad = %v, want %v", r.Evidence.Float64(), 0.9-want)
	}

	r = l.Update("p1", 0.0, domain.VerdictBad, "f3", clock.MonoMs(11_000))
	if r.PenaltyApplied != 0 {
		t.Errorf("third bad past corpse protection: penalty = %v, want 0", r.PenaltyApplied)
	}
}

func TestSuspectDoesNotPenalizeEvidence(t *testing.T) {
	l := NewPatchLedger(config.DefaultLedgerConfig())
	l.Update("p1", 0.5, domain.VerdictGood, "f0", clock.MonoMs(0))
	r := l.Update("p1", 0.0, domain.VerdictSuspect, "f1", clock.MonoMs(10))
	if r.Evidence.Float64() != 0.5 {
		t.Errorf("suspect verdict must not change evidence: got %v", r.Evidence.Float64())
	}
	entry, _ := l.Entry("p1")
	if entry.SuspectCount != 1 {
		t.Errorf("SuspectCount = %d, want 1", entry.SuspectCount)
	}
}

func TestPatchIdsSortedAscending(t *testing.T) {
	l := NewPatchLedger(config.DefaultLedgerConfig())
	l.Update("zeta", 0.1, domain.VerdictGood, "f", clock.MonoMs(0))
	l.Update("alpha", 0.1, domain.VerdictGood, "f", clock.MonoMs(0))
	l.Update("mid", 0.1, domain.VerdictGood, "f", clock.MonoMs(0))

	ids := l.PatchIds()
	want := []domain.PatchId{"alpha", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestResetClearsEntries(t *testing.T) {
	l := NewPatchLedger(config.DefaultLedgerConfig())
	l.Update("p1", 0.5, domain.VerdictGood, "f", clock.MonoMs(0))
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", l.Len())
	}
}
