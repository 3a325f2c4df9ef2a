// Package config holds the engine's closed configuration set (§6). Each
// subsystem gets its own nested struct with a Default*() constructor,
// matching internal/daemon's DefaultConfig()/nested-struct idiom from the
// teacher repo. The whole tree can additionally be loaded from a TOML file
// with BurntSushi/toml, the same library and loader shape the teacher uses.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the engine's full closed configuration set.
type Config struct {
	Ledger     LedgerConfig     `toml:"ledger"`
	Display    DisplayConfig    `toml:"display"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Weighting  WeightingConfig  `toml:"weighting"`
	Admission  AdmissionConfig  `toml:"admission"`
	Diversity  DiversityConfig  `toml:"diversity"`
	Coverage   CoverageConfig   `toml:"coverage"`
	Color      ColorConfig      `toml:"color"`
	Health     HealthConfig     `toml:"health"`

	// Strict is part of the loadable configuration, but no code reads it:
	// the engine has no debug-only assertions and does no logging, so
	// setting it changes no behavior.
	Strict bool `toml:"strict"`
}

// LedgerConfig controls the patch ledger (C5) and split ledger (C6).
type LedgerConfig struct {
	LockThreshold          float64 `toml:"lock_threshold"`            // evidence ≥ this locks the entry
	MinObservationsForLock int     `toml:"min_observations_for_lock"` // and observationCount ≥ this

	// Gradual penalty (§4.5).
	CorpseProtectionSec float64 `toml:"corpse_protection_sec"`
	CooldownSec         float64 `toml:"cooldown_sec"`
	BasePerObservation  float64 `toml:"base_per_observation"`
	MaxPerSec           float64 `toml:"max_per_sec"`
	StreakMultiplierCap float64 `toml:"streak_multiplier_cap"`
	StreakMultiplierStep float64 `toml:"streak_multiplier_step"`
	AssumedFPS          float64 `toml:"assumed_fps"`

	// SuspectDeltaMultiplier scales ledger quality on a "suspect" verdict,
	// per §3's verdict contract ("suspect → deltaMultiplier 0.3").
	SuspectDeltaMultiplier float64 `toml:"suspect_delta_multiplier"`
}

// DefaultLedgerConfig returns the §4.5/§6 documented defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		LockThreshold:          0.8,
		MinObservationsForLock: 10,
		CorpseProtectionSec:    10,
		CooldownSec:            0.5,
		BasePerObservation:     0.01,
		MaxPerSec:              0.5,
		StreakMultiplierCap:    3.0,
		StreakMultiplierStep:   0.2,
		AssumedFPS:             30,
		SuspectDeltaMultiplier: 0.3,
	}
}

// DisplayConfig controls the patch display map (C7).
type DisplayConfig struct {
	Alpha              float64 `toml:"alpha"`               // EMA smoothing (§4.7)
	LockedAcceleration float64 `toml:"locked_acceleration"` // growth multiplier once locked
}

// DefaultDisplayConfig returns §6's documented defaults.
func DefaultDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Alpha:              0.2,
		LockedAcceleration: 1.5,
	}
}

// AggregatorConfig controls the bucketed amortized aggregator (C8).
type AggregatorConfig struct {
	BucketDurationMs       int64   `toml:"bucket_duration_ms"`
	MaxBuckets             int     `toml:"max_buckets"`
	ConfidenceHalfLifeSec  float64 `toml:"confidence_half_life_sec"`
	WeightCapDenominator   float64 `toml:"weight_cap_denominator"`
	RecalibrateEveryFrames int     `toml:"recalibrate_every_frames"`
}

// DefaultAggregatorConfig returns §4.8's documented defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BucketDurationMs:       15_000,
		MaxBuckets:             8,
		ConfidenceHalfLifeSec:  60,
		WeightCapDenominator:   8,
		RecalibrateEveryFrames: 60,
	}
}

// WeightingConfig controls the dynamic gate/soft blend (C6). The
// PatchWeightComputer (§4.19 step 6) does not read it; it uses
// AggregatorConfig's WeightCapDenominator and ConfidenceHalfLifeSec.
type WeightingConfig struct {
	GateEarly       float64 `toml:"gate_early"`
	GateLate        float64 `toml:"gate_late"`
	TransitionStart float64 `toml:"transition_start"`
	TransitionEnd   float64 `toml:"transition_end"`
}

// DefaultWeightingConfig returns §4.6's documented defaults.
func DefaultWeightingConfig() WeightingConfig {
	return WeightingConfig{
		GateEarly:       0.8,
		GateLate:        0.2,
		TransitionStart: 0.3,
		TransitionEnd:   0.7,
	}
}

// AdmissionConfig controls the token bucket (C11), spam provider (C12),
// reorder buffer (C13), and admission controller (C14).
type AdmissionConfig struct {
	TokenRefillRatePerSec  float64 `toml:"token_refill_rate_per_sec"`
	TokenBucketMaxTokens   float64 `toml:"token_bucket_max_tokens"`
	TokenCostPerObservation float64 `toml:"token_cost_per_observation"`

	SpamMaxPerWindow   int     `toml:"spam_max_per_window"`
	SpamWindowMs       int64   `toml:"spam_window_ms"`
	SpamFloorScale     float64 `toml:"spam_floor_scale"`
	MinInterUpdateMs   int64   `toml:"min_inter_update_ms"`

	ReorderWindowMs  int64 `toml:"reorder_window_ms"`
	ReorderMaxBuffer int   `toml:"reorder_max_buffer"`

	MinimumSoftScale float64 `toml:"minimum_soft_scale"` // I5 floor

	// LowNoveltyThreshold/Penalty compute the admission noveltyScale factor
	// (§4.14): a patch whose current diversity score sits below the
	// threshold has its admission quality scaled down by (1-Penalty),
	// since repeated observations from the same angle teach the aggregator
	// nothing new. Mapped to C12 per §6's config table.
	LowNoveltyThreshold float64 `toml:"low_novelty_threshold"`
	LowNoveltyPenalty   float64 `toml:"low_novelty_penalty"`
}

// DefaultAdmissionConfig returns §6/§4.11-14's documented defaults.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		TokenRefillRatePerSec:   20,
		TokenBucketMaxTokens:    40,
		TokenCostPerObservation: 1,
		SpamMaxPerWindow:        30,
		SpamWindowMs:            1000,
		SpamFloorScale:          0.2,
		MinInterUpdateMs:        33,
		ReorderWindowMs:         120,
		ReorderMaxBuffer:        16,
		MinimumSoftScale:        0.25,
		LowNoveltyThreshold:     0.2,
		LowNoveltyPenalty:       0.5,
	}
}

// DiversityConfig controls the view diversity tracker (C9).
type DiversityConfig struct {
	AngleBucketSizeDeg float64 `toml:"angle_bucket_size_deg"`
	MaxBucketsTracked  int     `toml:"max_buckets_tracked"`
}

// DefaultDiversityConfig returns §4.9/§6's documented defaults.
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		AngleBucketSizeDeg: 15,
		MaxBucketsTracked:  24, // 360/15
	}
}

// CoverageConfig controls the gate coverage tracker (C10).
type CoverageConfig struct {
	ThetaBuckets    int     `toml:"theta_buckets"` // 24 × 15° = 360°
	PhiBuckets      int     `toml:"phi_buckets"`   // 12 × 15° = 180°
	MaxRecords      int     `toml:"max_records"`
	L2Threshold     float64 `toml:"l2_threshold"`
	L3Threshold     float64 `toml:"l3_threshold"`
}

// DefaultCoverageConfig returns §4.10's documented defaults.
func DefaultCoverageConfig() CoverageConfig {
	return CoverageConfig{
		ThetaBuckets: 24,
		PhiBuckets:   12,
		MaxRecords:   200,
		L2Threshold:  0.3,
		L3Threshold:  0.6,
	}
}

// ColorConfig controls the downstream color-evidence hybrid (§4.7).
type ColorConfig struct {
	LocalWeight  float64 `toml:"local_weight"`
	GlobalWeight float64 `toml:"global_weight"`
}

// DefaultColorConfig returns §6's documented defaults.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		LocalWeight:  0.7,
		GlobalWeight: 0.3,
	}
}

// HealthConfig controls the health monitor (C17).
type HealthConfig struct {
	StalledWindowSec  float64 `toml:"stalled_window_sec"`
	SafePointCapacity int     `toml:"safe_point_capacity"`
}

// DefaultHealthConfig returns §4.17's documented defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		StalledWindowSec:  30,
		SafePointCapacity: 8,
	}
}

// Default returns the full engine configuration with every subsystem at
// its documented default.
func Default() Config {
	return Config{
		Ledger:     DefaultLedgerConfig(),
		Display:    DefaultDisplayConfig(),
		Aggregator: DefaultAggregatorConfig(),
		Weighting:  DefaultWeightingConfig(),
		Admission:  DefaultAdmissionConfig(),
		Diversity:  DefaultDiversityConfig(),
		Coverage:   DefaultCoverageConfig(),
		Color:      DefaultColorConfig(),
		Health:     DefaultHealthConfig(),
		Strict:     false,
	}
}

// Load reads a TOML configuration file, starting from Default() so an
// omitted section keeps its documented defaults rather than zero values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
