package aggregator

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

func TestUpdatePatchAccumulatesInCurrentBucket(t *testing.T) {
	a := New(config.DefaultAggregatorConfig())
	a.UpdatePatch("p1", 0.5, 1.0, clock.MonoMs(0))
	a.UpdatePatch("p1", 1.0, 1.0, clock.MonoMs(100))

	got := a.TotalEvidence().Float64()
	if got != 1.0 {
		t.Fatalf("TotalEvidence = %v, want 1.0 (latest overwrite)", got)
	}
}

func TestEmptyAggregatorReturnsZero(t *testing.T) {
	a := New(config.DefaultAggregatorConfig())
	if v := a.TotalEvidence().Float64(); v != 0 {
		t.Errorf("TotalEvidence() = %v, want 0", v)
	}
}

// TestDecayTableAcrossBucketRotation mirrors the spec's seed scenario S4:
// a single patch at evidence 1.0 stays at TotalEvidence 1.0 through 120s of
// bucket rotation (decay cancels out of the ratio for a lone patch), and a
// second patch added at t=120s with evidence 0 pulls the aggregate down to
// the decay-weighted mix of the two buckets they now occupy.
func TestDecayTableAcrossBucketRotation(t *testing.T) {
	cfg := config.DefaultAggregatorConfig()
	a := New(cfg)

	a.UpdatePatch("p1", 1.0, 1.0, clock.MonoMs(0))
	if got := a.TotalEvidence().Float64(); got != 1.0 {
		t.Fatalf("TotalEvidence at t=0 = %v, want 1.0", got)
	}

	// Advance past one 15s rotation without updating p1: it ages into
	// bucket 1, but as the only patch in the ring the ratio is unaffected.
	a.rotate(clock.MonoMs(15_000))
	if got := a.TotalEvidence().Float64(); got != 1.0 {
		t.Fatalf("TotalEvidence after one rotation = %v, want 1.0", got)
	}

	// Advance to t=120s (8 rotations from t=0): p1 is now in the oldest
	// bucket (index 7, decay 0.30). Add p2 with evidence 0 into the fresh
	// bucket 0 (decay 1.00).
	a.UpdatePatch("p2", 0.0, 1.0, clock.MonoMs(120_000))

	got := a.TotalEvidence().Float64()
	want := (1.0*0.30 + 0.0*1.00) / (1.0*0.30 + 1.0*1.00)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalEvidence at t=120s = %v, want %v", got, want)
	}
}

func TestRecalibrateDueAfterConfiguredFrameCount(t *testing.T) {
	cfg := config.DefaultAggregatorConfig()
	cfg.RecalibrateEveryFrames = 2
	a := New(cfg)

	a.UpdatePatch("p1", 0.5, 1.0, clock.MonoMs(0))
	if a.RecalibrationDue() {
		t.Fatal("RecalibrationDue before threshold")
	}
	a.UpdatePatch("p1", 0.5, 1.0, clock.MonoMs(10))
	if !a.RecalibrationDue() {
		t.Fatal("RecalibrationDue at threshold")
	}
}

func TestRecalibrateRebinsByAgeAndClearsDueFlag(t *testing.T) {
	cfg := config.DefaultAggregatorConfig()
	a := New(cfg)
	a.UpdatePatch("p1", 0.8, 1.0, clock.MonoMs(0))

	patches := map[domain.PatchId]Sample{
		"p1": {Evidence: 0.8, Weight: 1.0, LastUpdateMs: clock.MonoMs(0)},
	}
	a.Recalibrate(patches, clock.MonoMs(0))

	if got := a.TotalEvidence().Float64(); got != 0.8 {
		t.Errorf("TotalEvidence after recalibrate = %v, want 0.8", got)
	}
	if a.RecalibrationDue() {
		t.Error("RecalibrationDue should be false immediately after a recalibration")
	}
	if a.Recalibrations() != 1 {
		t.Errorf("Recalibrations = %d, want 1", a.Recalibrations())
	}
}

func TestPatchIdsSortedAscending(t *testing.T) {
	a := New(config.DefaultAggregatorConfig())
	a.UpdatePatch("z", 0.5, 1.0, clock.MonoMs(0))
	a.UpdatePatch("a", 0.5, 1.0, clock.MonoMs(0))
	ids := a.PatchIds()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "z" {
		t.Errorf("ids = %v, want [a z]", ids)
	}
}

func TestRemoveDropsPatchFromIndexAndBucket(t *testing.T) {
	a := New(config.DefaultAggregatorConfig())
	a.UpdatePatch("p1", 1.0, 1.0, clock.MonoMs(0))
	a.UpdatePatch("p2", 0.0, 1.0, clock.MonoMs(0))
	a.Remove([]domain.PatchId{"p1"})

	ids := a.PatchIds()
	if len(ids) != 1 || ids[0] != "p2" {
		t.Errorf("PatchIds after Remove = %v, want [p2]", ids)
	}
	if got := a.TotalEvidence().Float64(); got != 0.0 {
		t.Errorf("TotalEvidence after removing p1 = %v, want 0.0", got)
	}
}

func TestResetClearsState(t *testing.T) {
	a := New(config.DefaultAggregatorConfig())
	a.UpdatePatch("p1", 0.5, 1.0, clock.MonoMs(0))
	a.Reset()
	if len(a.PatchIds()) != 0 {
		t.Error("expected no patches after reset")
	}
	if a.Recalibrations() != 0 {
		t.Error("expected recalibration count reset")
	}
	if got := a.TotalEvidence().Float64(); got != 0 {
		t.Errorf("TotalEvidence after reset = %v, want 0", got)
	}
}
