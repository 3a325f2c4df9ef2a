package admission

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

func seqObs(seq uint64, ts int64) domain.SequencedObservation {
	return domain.SequencedObservation{
		Seq:         seq,
		Observation: domain.Observation{PatchId: "p1", Timestamp: ts},
		ArrivalMs:   ts,
	}
}

func TestReorderBufferReleasesInOrderImmediately(t *testing.T) {
	r := NewReorderBuffer(config.DefaultAdmissionConfig())
	out := r.Push(seqObs(0, 0), clock.MonoMs(0))
	if len(out) != 1 || out[0].Obs.Seq != 0 || out[0].QualityScale != 1.0 {
		t.Fatalf("got %+v, want single full-quality release of seq 0", out)
	}
}

func TestReorderBufferBuffersOutOfOrderThenDrains(t *testing.T) {
	r := NewReorderBuffer(config.DefaultAdmissionConfig())
	r.Push(seqObs(0, 0), clock.MonoMs(0)) // the first push fixes where the sequence starts

	out := r.Push(seqObs(2, 10), clock.MonoMs(10))
	if len(out) != 0 {
		t.Fatalf("seq 2 arriving before seq 1 should buffer, got %+v", out)
	}
	if r.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", r.PendingCount())
	}

	out = r.Push(seqObs(1, 0), clock.MonoMs(20))
	if len(out) != 2 {
		t.Fatalf("filling the gap should release both seq 1 and seq 2, got %+v", out)
	}
	if out[0].Obs.Seq != 1 || out[1].Obs.Seq != 2 {
		t.Errorf("release order = [%d %d], want [1 2]", out[0].Obs.Seq, out[1].Obs.Seq)
	}
}

func TestReorderBufferScalesInOrderButLateRelease(t *testing.T) {
	// Seed scenario S6: seq arrives exactly as expectedNext, but the gap
	// between capture (obsTime) and delivery (nowMs) already exceeds the
	// reorder window, so "in order" must not imply full quality.
	r := NewReorderBuffer(config.DefaultAdmissionConfig()) // ReorderWindowMs = 120
	out := r.Push(seqObs(0, 1150), clock.MonoMs(1300))     // age = 150ms
	if len(out) != 1 {
		t.Fatalf("got %+v, want single release", out)
	}
	want := 0.8 // max(0.1, 1/(150/120))
	if diff := out[0].QualityScale - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("QualityScale = %v, want %v", out[0].QualityScale, want)
	}
}

func TestReorderBufferScalesDrainedGapFillByLateness(t *testing.T) {
	cfg := config.DefaultAdmissionConfig() // ReorderWindowMs = 120
	r := NewReorderBuffer(cfg)

	// seq 0 fixes where the sequence starts.
	r.Push(seqObs(0, 800), clock.MonoMs(800))

	// seq 2, captured at 800ms, buffers at 900ms waiting on the seq-1 gap.
	out := r.Push(seqObs(2, 800), clock.MonoMs(900))
	if len(out) != 0 {
		t.Fatalf("got %+v, want seq 2 buffered", out)
	}

	// seq 1 fills the gap at 1000ms. It and the drained seq 2 were both
	// captured at 800ms (age 200ms), so each release is scaled by its own
	// lateness.
	out = r.Push(seqObs(1, 800), clock.MonoMs(1000))
	if len(out) != 2 {
		t.Fatalf("got %+v, want both seq 1 and drained seq 2 released", out)
	}
	for _, item := range out {
		if item.QualityScale >= 1.0 {
			t.Errorf("seq %d QualityScale = %v, want scaled below 1.0", item.Obs.Seq, item.QualityScale)
		}
	}
}

func TestReorderBufferLateArrivalScalesDownQuality(t *testing.T) {
	cfg := config.DefaultAdmissionConfig()
	cfg.ReorderWindowMs = 100
	r := NewReorderBuffer(cfg)

	r.Push(seqObs(0, 0), clock.MonoMs(0))
	// seq 0 was already released (nextSeq is now 1); this arrives late.
	out := r.Push(seqObs(0, 0), clock.MonoMs(1000))
	if len(out) != 1 {
		t.Fatalf("got %+v, want one late release", out)
	}
	if out[0].QualityScale >= 1.0 {
		t.Errorf("QualityScale = %v, want scaled below 1.0 for a stale duplicate", out[0].QualityScale)
	}
	if out[0].QualityScale < 0.1 {
		t.Errorf("QualityScale = %v, want floored at 0.1", out[0].QualityScale)
	}
}

func TestReorderBufferExpiresStalePending(t *testing.T) {
	cfg := config.DefaultAdmissionConfig()
	cfg.ReorderWindowMs = 50
	cfg.ReorderMaxBuffer = 16
	r := NewReorderBuffer(cfg)

	r.Push(seqObs(0, 0), clock.MonoMs(0)) // fixes where the sequence starts
	r.Push(seqObs(2, 0), clock.MonoMs(0)) // gap at 1, buffered

	out := r.Push(seqObs(3, 60), clock.MonoMs(60))
	found := false
	for _, item := range out {
		if item.Obs.Seq == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected seq 2 to expire out of the pending buffer, got %+v", out)
	}
}

func TestReorderBufferForceAdvancesWhenOverCapacity(t *testing.T) {
	cfg := config.DefaultAdmissionConfig()
	cfg.ReorderMaxBuffer = 2
	cfg.ReorderWindowMs = 10_000
	r := NewReorderBuffer(cfg)

	r.Push(seqObs(0, 0), clock.MonoMs(0)) // seqs 5..7 now buffer behind the gap at 1
	r.Push(seqObs(5, 0), clock.MonoMs(0))
	r.Push(seqObs(6, 0), clock.MonoMs(0))
	out := r.Push(seqObs(7, 0), clock.MonoMs(0))
	if r.PendingCount() > cfg.ReorderMaxBuffer {
		t.Errorf("PendingCount = %d, want <= %d", r.PendingCount(), cfg.ReorderMaxBuffer)
	}
	if len(out) == 0 {
		t.Error("expected a forced release when exceeding capacity")
	}
}
