package diversity

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
)

func TestEmptyPatchScoresOne(t *testing.T) {
	tr := New(config.DefaultDiversityConfig())
	if v := tr.Score("ghost").Float64(); v != 1.0 {
		t.Errorf("Score(ghost) = %v, want 1.0", v)
	}
}

func TestSingleAngleLowScoreComparedToSpread(t *testing.T) {
	cfg := config.DefaultDiversityConfig()
	single := New(cfg)
	single.AddObservation("p1", 10, clock.MonoMs(0))
	single.AddObservation("p1", 10, clock.MonoMs(10))
	single.AddObservation("p1", 10, clock.MonoMs(20))

	spread := New(cfg)
	spread.AddObservation("p1", 10, clock.MonoMs(0))
	spread.AddObservation("p1", 100, clock.MonoMs(10))
	spread.AddObservation("p1", 200, clock.MonoMs(20))

	if spread.Score("p1").Float64() <= single.Score("p1").Float64() {
		t.Errorf("spread score %v should exceed single-angle score %v",
			spread.Score("p1").Float64(), single.Score("p1").Float64())
	}
}

func TestBucketIndexWrapsNegativeAngles(t *testing.T) {
	if got := bucketIndex(-10, 15); got != bucketIndex(350, 15) {
		t.Errorf("bucketIndex(-10) = %d, want same as bucketIndex(350) = %d", got, bucketIndex(350, 15))
	}
}

func TestBucketCountTracksDistinctAngles(t *testing.T) {
	tr := New(config.DefaultDiversityConfig())
	tr.AddObservation("p1", 0, clock.MonoMs(0))
	tr.AddObservation("p1", 20, clock.MonoMs(1))
	tr.AddObservation("p1", 0, clock.MonoMs(2)) // repeat, same bucket
	if got := tr.BucketCount("p1"); got != 2 {
		t.Errorf("BucketCount = %d, want 2", got)
	}
}

func TestEvictionRespectsCapacity(t *testing.T) {
	cfg := config.DefaultDiversityConfig()
	cfg.MaxBucketsTracked = 2
	tr := New(cfg)
	tr.AddObservation("p1", 0, clock.MonoMs(0))
	tr.AddObservation("p1", 20, clock.MonoMs(10))
	tr.AddObservation("p1", 40, clock.MonoMs(20))
	if got := tr.BucketCount("p1"); got > 2 {
		t.Errorf("BucketCount = %d, want <= 2", got)
	}
}
