package health

import (
	"testing"

	"github.com/aether3d/evidence-core/internal/config"
)

func TestScoreHealthyWhenNoStallNoAgeNoDeltaPenalty(t *testing.T) {
	s := Signals{StalledRatio: 0, AverageAgeSec: 0, AverageDelta: 0.1}
	if got := Score(s).Float64(); got != 1.0 {
		t.Errorf("Score() = %v, want 1.0", got)
	}
}

func TestScoreDegradesWithStall(t *testing.T) {
	healthy := Score(Signals{StalledRatio: 0, AverageDelta: 0.1}).Float64()
	stalled := Score(Signals{StalledRatio: 1.0, AverageDelta: 0.1}).Float64()
	if stalled >= healthy {
		t.Errorf("stalled score %v should be less than healthy score %v", stalled, healthy)
	}
}

func TestScoreAgeTermCapsAtPointTwo(t *testing.T) {
	moderateAge := Score(Signals{AverageAgeSec: 300, AverageDelta: 0.1}).Float64()
	extremeAge := Score(Signals{AverageAgeSec: 30000, AverageDelta: 0.1}).Float64()
	if moderateAge != extremeAge {
		t.Errorf("age penalty should cap at 0.2: 300s gave %v, 30000s gave %v", moderateAge, extremeAge)
	}
}

func TestScoreAppliesStaleDeltaPenalty(t *testing.T) {
	fresh := Score(Signals{AverageDelta: 0.1}).Float64()
	stale := Score(Signals{AverageDelta: 0.0001}).Float64()
	if stale >= fresh {
		t.Errorf("stale delta should be penalized: stale=%v fresh=%v", stale, fresh)
	}
}

func TestScoreUnaffectedByLockedRatio(t *testing.T) {
	withoutLock := Score(Signals{StalledRatio: 0.5, AverageDelta: 0.1, LockedRatio: 0}).Float64()
	withLock := Score(Signals{StalledRatio: 0.5, AverageDelta: 0.1, LockedRatio: 0.9}).Float64()
	if withoutLock != withLock {
		t.Errorf("Score should not depend on LockedRatio: %v != %v", withoutLock, withLock)
	}
}

func TestSelectStrategyRollbackOnCriticalScore(t *testing.T) {
	cfg := config.DefaultHealthConfig()
	s := Signals{StalledRatio: 1.0, AverageAgeSec: 1000}
	strat := SelectStrategy(s, cfg, Score(s))
	if strat != StrategyRollback {
		t.Errorf("strategy = %v, want rollback", strat)
	}
}

func TestSelectStrategyNoneWhenHealthy(t *testing.T) {
	cfg := config.DefaultHealthConfig()
	s := Signals{StalledRatio: 0, LockedRatio: 0.1, NoveltyRatio: 0.5, AverageDelta: 0.1, TotalPatches: 10}
	strat := SelectStrategy(s, cfg, Score(s))
	if strat != StrategyNone {
		t.Errorf("strategy = %v, want none", strat)
	}
}

func TestSelectStrategySuggestViewChangeOnHighStall(t *testing.T) {
	cfg := config.DefaultHealthConfig()
	s := Signals{StalledRatio: 0.5, LockedRatio: 0.1, AverageDelta: 0.1, TotalPatches: 10}
	strat := SelectStrategy(s, cfg, Score(s))
	if strat != StrategySuggestViewChange {
		t.Errorf("strategy = %v, want suggestViewChange", strat)
	}
}

func TestSelectStrategyRecalibrateOnStaleDeltaAndLowLock(t *testing.T) {
	cfg := config.DefaultHealthConfig()
	s := Signals{StalledRatio: 0, AverageAgeSec: 0, AverageDelta: 0.00001, LockedRatio: 0.3, TotalPatches: 10}
	strat := SelectStrategy(s, cfg, Score(s))
	if strat != StrategyRecalibrate {
		t.Errorf("strategy = %v, want recalibrate", strat)
	}
}
