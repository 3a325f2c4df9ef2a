// Package health implements the engine health monitor (C17): aggregate
// signals about the whole capture session (stalled ratio, average patch
// age, average delta, locked ratio) folded into a single health score,
// and a first-match-wins strategy table that turns a degraded score into
// a concrete recovery action.
package health

import (
	"math"

	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/evidence"
)

// Strategy is the recovery action the health monitor recommends.
type Strategy string

const (
	StrategyNone              Strategy = "none"
	StrategyRollback          Strategy = "rollback"
	StrategyFreezeDisplay     Strategy = "freezeDisplay"
	StrategySuggestViewChange Strategy = "suggestViewChange"
	StrategyResetDecayTimers  Strategy = "resetDecayTimers"
	StrategyRecalibrate       Strategy = "recalibrate"
	StrategyAlert             Strategy = "alert"
)

// Signals is the set of aggregate measurements the health monitor
// evaluates each pass. All are expected to already be computed by the
// engine from its ledgers, display map, and delta trackers.
type Signals struct {
	StalledRatio  float64 // fraction of patches with no update inside the stalled window
	AverageAgeSec float64 // mean age of the most recent update, across all patches
	AverageDelta  float64 // mean smoothed delta across all patches
	LockedRatio   float64 // fraction of patches locked
	NoveltyRatio  float64 // fraction of observations landing in a previously unseen bucket
	TotalPatches  int
}

// Score computes the health score (§4.17):
//
//	max(0, 1 − 0.4·stalledRatio − min(0.2, averageAgeSec/300) − (averageDelta<0.001 ? 0.2 : 0))
func Score(s Signals) evidence.Clamped {
	ageTerm := s.AverageAgeSec / 300
	if ageTerm > 0.2 {
		ageTerm = 0.2
	}
	deltaTerm := 0.0
	if s.AverageDelta < 0.001 {
		deltaTerm = 0.2
	}
	base := 1.0 - 0.4*s.StalledRatio - ageTerm - deltaTerm
	return evidence.Clamp(math.Max(0, base))
}

// SelectStrategy evaluates the first-match-wins table (§4.17) against
// the current signals, returning the single recommended action. The
// table's thresholds are fixed in code; cfg is not consulted.
func SelectStrategy(s Signals, cfg config.HealthConfig, score evidence.Clamped) Strategy {
	switch {
	case score.Float64() < 0.25:
		return StrategyRollback
	case score.Float64() < 0.40:
		return StrategyFreezeDisplay
	case s.StalledRatio > 0.3:
		return StrategySuggestViewChange
	case s.AverageAgeSec > 120:
		return StrategyResetDecayTimers
	case s.AverageDelta < 0.0001 && s.LockedRatio < 0.8:
		return StrategyRecalibrate
	case score.Float64() < 0.5:
		return StrategyAlert
	default:
		return StrategyNone
	}
}
