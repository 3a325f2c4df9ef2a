package coverage

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

func TestUnknownPatchIsLevelZero(t *testing.T) {
	tr := New(config.DefaultCoverageConfig())
	if lvl := tr.Level("ghost"); lvl != 0 {
		t.Errorf("Level(ghost) = %d, want 0", lvl)
	}
}

func TestCoverageIncreasesWithDistinctDirections(t *testing.T) {
	tr := New(config.DefaultCoverageConfig())
	dirs := []domain.Direction{
		{X: 1, Y: 0, Z: 0},
		{X: -1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 0, Y: -1, Z: 0},
		{X: 0, Y: 0, Z: 1},
		{X: 0, Y: 0, Z: -1},
		{X: 1, Y: 1, Z: 1},
		{X: -1, Y: -1, Z: -1},
	}
	before := tr.Score("p1").Float64()
	for i, d := range dirs {
		tr.AddObservation("p1", d, i)
	}
	after := tr.Score("p1").Float64()
	if after <= before {
		t.Errorf("score did not increase: before=%v after=%v", before, after)
	}
}

func TestBucketFromDirectionStableForSameInput(t *testing.T) {
	d := domain.Direction{X: 0.3, Y: 0.7, Z: 0.2}
	t1, p1 := bucketFromDirection(d, 24, 12)
	t2, p2 := bucketFromDirection(d, 24, 12)
	if t1 != t2 || p1 != p2 {
		t.Error("bucketFromDirection is not deterministic for identical input")
	}
}

func TestZeroDirectionDoesNotPanic(t *testing.T) {
	tr := New(config.DefaultCoverageConfig())
	tr.AddObservation("p1", domain.Direction{}, 0)
	if tr.Level("p1") < 0 {
		t.Fatal("unexpected negative level")
	}
}

func TestEvictionClearsBucketWhenLastOccupantLeaves(t *testing.T) {
	cfg := config.DefaultCoverageConfig()
	cfg.MaxRecords = 1
	tr := New(cfg)

	tr.AddObservation("p1", domain.Direction{X: 1, Y: 0, Z: 0}, 0)
	before := tr.fraction("p1")

	tr.AddObservation("p1", domain.Direction{X: 0, Y: 1, Z: 0}, 1)
	after := tr.fraction("p1")

	if after > before {
		t.Logf("fraction grew from %v to %v as expected for a new bucket", before, after)
	}
	// With MaxRecords=1, the first bucket's sole record should have been
	// evicted, so fraction must not exceed what a single bucket yields.
	single := New(cfg)
	single.AddObservation("p1", domain.Direction{X: 0, Y: 1, Z: 0}, 0)
	if after != single.fraction("p1") {
		t.Errorf("fraction after eviction = %v, want %v (single occupied bucket)", after, single.fraction("p1"))
	}
}
