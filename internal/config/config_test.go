package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Display.Alpha != 0.2 {
		t.Errorf("Display.Alpha = %v, want 0.2", cfg.Display.Alpha)
	}
	if cfg.Display.LockedAcceleration != 1.5 {
		t.Errorf("Display.LockedAcceleration = %v, want 1.5", cfg.Display.LockedAcceleration)
	}
	if cfg.Ledger.LockThreshold != 0.8 {
		t.Errorf("Ledger.LockThreshold = %v, want 0.8", cfg.Ledger.LockThreshold)
	}
	if cfg.Ledger.MinObservationsForLock != 10 {
		t.Errorf("Ledger.MinObservationsForLock = %d, want 10", cfg.Ledger.MinObservationsForLock)
	}
	if cfg.Aggregator.ConfidenceHalfLifeSec != 60 {
		t.Errorf("Aggregator.ConfidenceHalfLifeSec = %v, want 60", cfg.Aggregator.ConfidenceHalfLifeSec)
	}
	if cfg.Aggregator.WeightCapDenominator != 8 {
		t.Errorf("Aggregator.WeightCapDenominator = %v, want 8", cfg.Aggregator.WeightCapDenominator)
	}
	if cfg.Admission.MinimumSoftScale != 0.25 {
		t.Errorf("Admission.MinimumSoftScale = %v, want 0.25", cfg.Admission.MinimumSoftScale)
	}
	if cfg.Weighting.GateEarly != 0.8 || cfg.Weighting.GateLate != 0.2 {
		t.Errorf("Weighting gate early/late = %v/%v, want 0.8/0.2", cfg.Weighting.GateEarly, cfg.Weighting.GateLate)
	}
	if cfg.Weighting.TransitionStart != 0.3 || cfg.Weighting.TransitionEnd != 0.7 {
		t.Errorf("Weighting transition = %v/%v, want 0.3/0.7", cfg.Weighting.TransitionStart, cfg.Weighting.TransitionEnd)
	}
	if cfg.Diversity.AngleBucketSizeDeg != 15 {
		t.Errorf("Diversity.AngleBucketSizeDeg = %v, want 15", cfg.Diversity.AngleBucketSizeDeg)
	}
	if cfg.Color.LocalWeight != 0.7 || cfg.Color.GlobalWeight != 0.3 {
		t.Errorf("Color weights = %v/%v, want 0.7/0.3", cfg.Color.LocalWeight, cfg.Color.GlobalWeight)
	}
	if cfg.Strict {
		t.Error("Strict should default to false")
	}
}

func TestLoadOverridesOnlySpecifiedSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")

	contents := `
strict = true

[display]
alpha = 0.33
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Strict {
		t.Error("Strict = false, want true (from file)")
	}
	if cfg.Display.Alpha != 0.33 {
		t.Errorf("Display.Alpha = %v, want 0.33 (from file)", cfg.Display.Alpha)
	}
	// Untouched section keeps its documented default.
	if cfg.Ledger.LockThreshold != 0.8 {
		t.Errorf("Ledger.LockThreshold = %v, want 0.8 (default preserved)", cfg.Ledger.LockThreshold)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() of a missing file should return an error")
	}
}
