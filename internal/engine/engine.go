// Package engine is the single actor boundary for the evidence state
// machine (C19): one mutex-guarded struct owning every subsystem
// (ledgers, display map, aggregator, diversity and coverage trackers,
// delta trackers, dimensional scores, admission control, and health
// monitoring), exposing a small synchronous API. Every observation enters
// through ProcessObservation and is fully applied before the call
// returns — there is no internal queue or background goroutine, matching
// the teacher's preference for a locked struct over a channel-mailbox
// actor whenever the work inside a message handler is this cheap.
package engine

import (
	"math"
	"sync"

	"github.com/aether3d/evidence-core/internal/admission"
	"github.com/aether3d/evidence-core/internal/aggregator"
	"github.com/aether3d/evidence-core/internal/canon"
	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/coverage"
	"github.com/aether3d/evidence-core/internal/delta"
	"github.com/aether3d/evidence-core/internal/dimscore"
	"github.com/aether3d/evidence-core/internal/display"
	"github.com/aether3d/evidence-core/internal/diversity"
	"github.com/aether3d/evidence-core/internal/domain"
	"github.com/aether3d/evidence-core/internal/evidence"
	"github.com/aether3d/evidence-core/internal/health"
	"github.com/aether3d/evidence-core/internal/ledger"
	"github.com/aether3d/evidence-core/internal/metrics"
	"github.com/aether3d/evidence-core/internal/snapshot"
	"github.com/google/uuid"
)

// Engine is the evidence aggregation state machine. Zero value is not
// usable; construct with New.
type Engine struct {
	mu  sync.Mutex
	cfg config.Config
	clk clock.Clock

	split      *ledger.SplitLedger
	disp       *display.Map
	agg        *aggregator.Aggregator
	div        *diversity.Tracker
	cov        *coverage.Tracker
	gateDelta  *delta.Tracker
	softDelta  *delta.Tracker
	admit      *admission.Controller
	safePoints *health.SafePointManager
	dims       map[domain.PatchId]*dimscore.Set
	metrics    *metrics.Recorder

	// gateDisplay/softDisplay are the session-global monotonic-max display
	// scalars (§4.19 steps 8-10), distinct from the per-patch display map:
	// one smoothed "how good is the best gate/soft evidence seen so far"
	// reading across the whole capture, not per patch.
	gateDisplay evidence.Clamped
	softDisplay evidence.Clamped

	// gateDeltaGlobal/softDeltaGlobal smooth the frame-to-frame delta of
	// gateDisplay/softDisplay themselves (C15 proper, §4.15) — no time
	// division, fed directly from the post-max-update delta each frame.
	gateDeltaGlobal *delta.Scalar
	softDeltaGlobal *delta.Scalar

	// lastWeight remembers each patch's most recently computed
	// PatchWeightComputer output, so a recalibration pass (which has no
	// other way to know a patch's weight once it's folded into the bucket
	// ring) can re-bin every patch without re-deriving it from scratch.
	lastWeight map[domain.PatchId]float64

	frameIndex int
	nextSeq    uint64
}

// New builds an engine from a configuration, a clock (pass clock.NewSystem()
// in production, a *clock.Fake in tests), and an optional metrics recorder
// (nil gets a recorder whose collectors are not registered anywhere).
func New(cfg config.Config, clk clock.Clock, rec *metrics.Recorder) *Engine {
	if rec == nil {
		rec = metrics.NewUnregistered()
	}
	div := diversity.New(cfg.Diversity)
	admit := admission.NewController(cfg.Admission)
	// The diversity tracker's current (pre-update) score for a patch is
	// this observation's noveltyScale input (§4.14) — admission always
	// runs before applyAdmitted's own AddObservation call for the same
	// observation, so this reads history strictly older than the one
	// being judged.
	admit.NoveltyFunc = func(id domain.PatchId) float64 { return div.Score(id).Float64() }
	return &Engine{
		cfg:             cfg,
		clk:             clk,
		split:           ledger.NewSplitLedger(cfg.Ledger, cfg.Weighting),
		disp:            display.New(cfg.Display),
		agg:             aggregator.New(cfg.Aggregator),
		div:             div,
		cov:             coverage.New(cfg.Coverage),
		gateDelta:       delta.New(delta.DefaultConfig()),
		softDelta:       delta.New(delta.DefaultConfig()),
		admit:           admit,
		safePoints:      health.NewSafePointManager(cfg.Health.SafePointCapacity),
		dims:            make(map[domain.PatchId]*dimscore.Set),
		metrics:         rec,
		gateDeltaGlobal: delta.NewScalar(delta.DefaultConfig()),
		softDeltaGlobal: delta.NewScalar(delta.DefaultConfig()),
		lastWeight:      make(map[domain.PatchId]float64),
	}
}

// Result reports what ProcessObservation actually did for the caller's
// single input observation, after admission control and any cascaded
// reorder-buffer releases it triggered.
type Result struct {
	Admitted []PatchOutcome
	Denied   []admission.Decision

	// GateDisplay/SoftDisplay are the session-global display scalars after
	// this call, reflecting every admitted observation (§4.19 steps 8-10).
	// Unchanged from the prior call if nothing was admitted.
	GateDisplay float64
	SoftDisplay float64
}

// PatchOutcome is the post-update state for one patch touched by a
// ProcessObservation call.
type PatchOutcome struct {
	PatchId          domain.PatchId
	CombinedEvidence float64
	DisplayValue     float64
	Locked           bool
	GateDeltaRate    float64
	SoftDeltaRate    float64
}

// ProcessObservation is the sole entry point for new evidence (§4.19). It
// assigns a sequence number, passes the observation through admission
// control, and — for everything admission releases, which may be zero,
// one, or several observations once a sequence gap closes — applies the
// full update pipeline: ledger update, delta tracking (computed from the
// pre-update combined evidence, never the post-update one, per the
// delta-before-display ordering invariant), aggregator and
// diversity/coverage tracking, dimensional scoring, and finally the
// display map.
func (e *Engine) ProcessObservation(obs domain.Observation) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	verdict, valid := obs.Verdict.Normalize()
	obs.Verdict = verdict
	if !valid && e.metrics != nil {
		e.metrics.AdmissionDeniedTotal.WithLabelValues("invalid_verdict").Inc()
	}
	if obs.FrameId == "" {
		// Callers that can't correlate observations to an upstream frame
		// identifier (synthetic test traffic, replayed single observations)
		// still need a unique FrameId for PatchEntry.BestFrameId tracking.
		obs.FrameId = domain.FrameId(uuid.NewString())
	}

	seq := e.nextSeq
	e.nextSeq++
	sequenced := domain.SequencedObservation{
		Seq:         seq,
		Observation: obs,
		ArrivalMs:   int64(e.clk.MonotonicNowMs()),
	}

	nowMs := e.clk.MonotonicNowMs()
	decisions := e.admit.Evaluate(sequenced, nowMs)

	result := Result{}
	for _, d := range decisions {
		if e.metrics != nil {
			e.metrics.ObservationsTotal.WithLabelValues(string(obs.Verdict)).Inc()
			e.metrics.AdmissionScale.Observe(d.QualityScale)
			if !d.Admit {
				e.metrics.AdmissionDeniedTotal.WithLabelValues(d.Reason).Inc()
			}
		}
		if !d.Admit {
			result.Denied = append(result.Denied, d)
			continue
		}
		outcome := e.applyAdmitted(obs, d, nowMs)
		result.Admitted = append(result.Admitted, outcome)
	}
	result.GateDisplay = e.gateDisplay.Float64()
	result.SoftDisplay = e.softDisplay.Float64()
	return result
}

func (e *Engine) applyAdmitted(obs domain.Observation, d admission.Decision, nowMs clock.MonoMs) PatchOutcome {
	gateQuality := obs.GateQuality * d.QualityScale
	softQuality := obs.SoftQuality * d.QualityScale
	if obs.Verdict == domain.VerdictSuspect {
		gateQuality *= e.cfg.Ledger.SuspectDeltaMultiplier
		softQuality *= e.cfg.Ledger.SuspectDeltaMultiplier
	}

	priorGate, hadPrior := e.split.Gate.Entry(obs.PatchId)

	// Step 1.
	e.split.UpdateGate(obs.PatchId, gateQuality, obs.Verdict, obs.FrameId, nowMs)
	e.split.UpdateSoft(obs.PatchId, softQuality, obs.Verdict, obs.FrameId, nowMs)

	e.cov.AddObservation(obs.PatchId, obs.Direction, e.frameIndex)
	e.frameIndex++
	e.div.AddObservation(obs.PatchId, obs.AngleDeg, nowMs)

	// Step 2: progress is the aggregator's global evidence signal as it
	// stood BEFORE this patch's own contribution lands, not a per-patch
	// coverage score.
	progress := e.agg.TotalEvidence().Float64()
	// Step 3.
	combined := e.split.CombinedEvidence(obs.PatchId, progress)

	// Delta must be observed against the ledger's freshly-combined value
	// before the display map's monotonic floor ever sees it, so a
	// momentary dip in raw evidence is still visible in the rate even
	// though the display itself never moves backward.
	gateRate := e.gateDelta.Observe(obs.PatchId, combined.Float64(), nowMs)
	softRate := e.softDelta.Observe(obs.PatchId, combined.Float64(), nowMs)

	// Step 4.
	locked := e.split.CombinedLocked(obs.PatchId, e.cfg.Ledger)
	// Step 5.
	entry := e.disp.Update(obs.PatchId, combined.Float64(), nowMs, locked)

	dims, ok := e.dims[obs.PatchId]
	if !ok {
		s := dimscore.NewSet()
		dims = &s
		e.dims[obs.PatchId] = dims
	}
	// Completeness is read before this frame's own Set calls overwrite it,
	// since PatchWeightComputer's 4th factor describes how rounded out the
	// patch's evidence was going into this update, not after.
	completeness := dims.SoftAggregate().Float64()
	diversityScore := e.div.Score(obs.PatchId).Float64()

	gateEntry, _ := e.split.Gate.Entry(obs.PatchId)
	weight := e.patchWeight(gateEntry.ObservationCount, priorGate.LastUpdateMs, hadPrior, nowMs, diversityScore, completeness)
	e.lastWeight[obs.PatchId] = weight

	// Steps 6-7.
	e.agg.UpdatePatch(obs.PatchId, combined.Float64(), weight, nowMs)
	if e.agg.RecalibrationDue() {
		e.recalibrateAggregatorLocked(nowMs)
	}

	coverageScore := e.cov.Score(obs.PatchId).Float64()

	dims.Set(dimscore.DimGeometricConsistency, combined.Float64())
	dims.Set(dimscore.DimViewDiversity, diversityScore)
	dims.Set(dimscore.DimCoverageBreadth, coverageScore)
	if locked {
		dims.Set(dimscore.DimLockConfidence, 1.0)
	} else {
		dims.Set(dimscore.DimLockConfidence, 0.0)
	}

	// Steps 8-10: the session-global monotonic-max display scalars and
	// their own (no-time-division) delta trackers. Order matters (I6):
	// the delta is computed from the pre- and post-update display values,
	// never the other way around.
	alpha := e.cfg.Display.Alpha
	prevGate := e.gateDisplay.Float64()
	prevSoft := e.softDisplay.Float64()
	newGate := math.Max(prevGate, alpha*gateQuality+(1-alpha)*prevGate)
	newSoft := math.Max(prevSoft, alpha*softQuality+(1-alpha)*prevSoft)
	e.gateDisplay = evidence.Clamp(newGate)
	e.softDisplay = evidence.Clamp(newSoft)
	e.gateDeltaGlobal.Update(newGate - prevGate)
	e.softDeltaGlobal.Update(newSoft - prevSoft)

	if e.metrics != nil {
		lockedCount := 0
		for _, id := range e.split.PatchIds() {
			if e.split.CombinedLocked(id, e.cfg.Ledger) {
				lockedCount++
			}
		}
		e.metrics.LockedPatches.Set(float64(lockedCount))
	}

	return PatchOutcome{
		PatchId:          obs.PatchId,
		CombinedEvidence: combined.Float64(),
		DisplayValue:     entry.Value.Float64(),
		Locked:           locked,
		GateDeltaRate:    gateRate,
		SoftDeltaRate:    softRate,
	}
}

// patchWeight implements the PatchWeightComputer formula (§4.19 step 6):
// min(1, obsCount/weightCapDenominator) · exp(−ln2·age/halfLife) ·
// (0.5+0.5·diversity) · (0.5+0.5·completeness). A patch with no prior
// update (hadPrior false) is treated as age zero — its weight is not
// penalized for recency on its very first observation.
func (e *Engine) patchWeight(obsCount int, priorUpdateMs clock.MonoMs, hadPrior bool, nowMs clock.MonoMs, diversityScore, completeness float64) float64 {
	capDenom := e.cfg.Aggregator.WeightCapDenominator
	if capDenom <= 0 {
		capDenom = 8
	}
	obsFactor := float64(obsCount) / capDenom
	if obsFactor > 1 {
		obsFactor = 1
	}

	recency := 1.0
	if hadPrior {
		halfLife := e.cfg.Aggregator.ConfidenceHalfLifeSec
		if halfLife > 0 {
			ageSec := float64(nowMs.Sub(priorUpdateMs)) / 1000.0
			recency = math.Exp(-math.Ln2 * ageSec / halfLife)
		}
	}

	diversityFactor := 0.5 + 0.5*diversityScore
	completenessFactor := 0.5 + 0.5*completeness

	return obsFactor * recency * diversityFactor * completenessFactor
}

// recalibrateAggregatorLocked rebuilds the aggregator's bucket ring from
// the engine's current per-patch state (§4.8, P7), correcting the
// incremental floating-point drift that repeated subtract/add update
// cycles accumulate. Must be called with e.mu already held.
func (e *Engine) recalibrateAggregatorLocked(nowMs clock.MonoMs) {
	progress := e.agg.TotalEvidence().Float64()
	samples := make(map[domain.PatchId]aggregator.Sample)
	for _, id := range e.split.PatchIds() {
		gate, _ := e.split.Gate.Entry(id)
		soft, _ := e.split.Soft.Entry(id)
		lastUpdateMs := gate.LastUpdateMs
		if soft.LastUpdateMs > lastUpdateMs {
			lastUpdateMs = soft.LastUpdateMs
		}
		weight, ok := e.lastWeight[id]
		if !ok {
			weight = 1.0
		}
		samples[id] = aggregator.Sample{
			Evidence:     e.split.CombinedEvidence(id, progress).Float64(),
			Weight:       weight,
			LastUpdateMs: lastUpdateMs,
		}
	}
	e.agg.Recalibrate(samples, nowMs)
	if e.metrics != nil {
		e.metrics.RecalibrationsTotal.Inc()
	}
}

// HealthSignals computes the current aggregate health signals across all
// tracked patches.
func (e *Engine) HealthSignals() health.Signals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthSignalsLocked()
}

func (e *Engine) healthSignalsLocked() health.Signals {
	ids := e.split.PatchIds()
	if len(ids) == 0 {
		return health.Signals{}
	}

	nowMs := e.clk.MonotonicNowMs()
	stalled := 0
	locked := 0
	var totalAgeSec, totalDelta float64

	for _, id := range ids {
		gate, _ := e.split.Gate.Entry(id)
		ageSec := float64(nowMs.Sub(gate.LastUpdateMs)) / 1000.0
		totalAgeSec += ageSec
		if ageSec > e.cfg.Health.StalledWindowSec {
			stalled++
		}
		if e.split.CombinedLocked(id, e.cfg.Ledger) {
			locked++
		}
		totalDelta += e.gateDelta.Rate(id)
	}

	n := float64(len(ids))
	return health.Signals{
		StalledRatio:  float64(stalled) / n,
		AverageAgeSec: totalAgeSec / n,
		AverageDelta:  totalDelta / n,
		LockedRatio:   float64(locked) / n,
		NoveltyRatio:  1.0, // refined by callers with coverage-specific signals
		TotalPatches:  len(ids),
	}
}

// Health returns the current health score and recommended strategy.
func (e *Engine) Health() (evidenceScore float64, strategy health.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	signals := e.healthSignalsLocked()
	if signals.TotalPatches == 0 {
		if e.metrics != nil {
			e.metrics.HealthScore.Set(1.0)
		}
		return 1.0, health.StrategyNone
	}
	score := health.Score(signals)
	if e.metrics != nil {
		e.metrics.HealthScore.Set(score.Float64())
	}
	return score.Float64(), health.SelectStrategy(signals, e.cfg.Health, score)
}

// PatchIds returns every patch id known to the engine, sorted ascending.
func (e *Engine) PatchIds() []domain.PatchId {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.split.PatchIds()
}

// Prune evicts up to count patches, chosen by strategy, from the split
// ledger, then removes the same ids from the aggregator and recalibrates
// it from the surviving patch set (§4.5a, §4.8). Returns the ids actually
// evicted, in no particular order.
func (e *Engine) Prune(strategy ledger.PruneStrategy, count int) []domain.PatchId {
	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := e.clk.MonotonicNowMs()
	pruned := e.split.Prune(strategy, count, e.cfg.Ledger, func(id domain.PatchId) float64 {
		return e.div.Score(id).Float64()
	})
	if len(pruned) == 0 {
		return nil
	}

	e.agg.Remove(pruned)
	for _, id := range pruned {
		delete(e.dims, id)
		delete(e.lastWeight, id)
	}
	e.recalibrateAggregatorLocked(nowMs)
	if e.metrics != nil {
		e.metrics.PrunedPatchesTotal.WithLabelValues(string(strategy)).Add(float64(len(pruned)))
	}
	return pruned
}

// Reset clears all engine state back to empty, as if newly constructed.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.split.Reset()
	e.disp.Reset()
	e.agg.Reset()
	e.div.Reset()
	e.cov.Reset()
	e.gateDelta.Reset()
	e.softDelta.Reset()
	e.admit.Reset()
	e.dims = make(map[domain.PatchId]*dimscore.Set)
	e.gateDisplay = evidence.Zero
	e.softDisplay = evidence.Zero
	e.gateDeltaGlobal.Reset()
	e.softDeltaGlobal.Reset()
	e.lastWeight = make(map[domain.PatchId]float64)
	e.frameIndex = 0
	e.nextSeq = 0
}

// ExportState assembles the full engine state into a canonical snapshot
// object and returns its wire bytes.
func (e *Engine) ExportState() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot.Export(e.exportLocked())
}

// exportLocked builds the canonical snapshot tree in the exact shape of
// §6's wire format. Per-patch bookkeeping (errorCount, errorStreak,
// bestFrameId, lastGoodUpdateMs) is sourced from the gate ledger: gate and
// soft halves are always advanced together by applyAdmitted (there is no
// path that updates one without the other), so either side's counters are
// equally valid; the gate side is canonical since it is what admission and
// locking decisions are driven from.
func (e *Engine) exportLocked() canon.Object {
	patches := make(canon.Object)
	ids := e.split.PatchIds() // already sorted ascending
	progress := e.agg.TotalEvidence().Float64()

	for _, id := range ids {
		gate, _ := e.split.Gate.Entry(id)
		combined := e.split.CombinedEvidence(id, progress)

		var bestFrameId any
		if gate.HasBestFrame {
			bestFrameId = string(gate.BestFrameId)
		}
		var lastGoodUpdateMs any
		if gate.HasLastGood {
			lastGoodUpdateMs = int64(gate.LastGoodUpdateMs)
		}

		patches[string(id)] = canon.Object{
			"bestFrameId":      bestFrameId,
			"errorCount":       int64(gate.ErrorCount),
			"errorStreak":      int64(gate.ErrorStreak),
			"evidence":         combined.Float64(),
			"lastGoodUpdateMs": lastGoodUpdateMs,
			"lastUpdateMs":     int64(gate.LastUpdateMs),
			"observationCount": int64(gate.ObservationCount),
		}
	}

	return canon.Object{
		"exportedAtMs":     int64(e.clk.WallNowMs()),
		"gateDisplay":      e.gateDisplay.Float64(),
		"softDisplay":      e.softDisplay.Float64(),
		"lastTotalDisplay": progress,
		"schemaVersion":    snapshot.CurrentSchemaVersion,
		"patches":          patches,
	}
}

// LoadState restores gateDisplay/softDisplay directly and reconstructs
// per-patch ledger/display state from the flat snapshot (§4.18). Both
// ledger halves are seeded identically from the single serialized record,
// since the wire format does not distinguish gate from soft evidence —
// a loaded snapshot's "evidence" is the already-blended value, and a fresh
// BlendWeight computation against it would otherwise double-apply the
// gate/soft split. The aggregator is left untouched: LoadState neither
// rebuilds nor resets its bucket ring and does not mark it for
// recalibration, so loaded patches reach the ring only through new
// observations or the next periodic recalibration (which re-bins every
// ledger patch). Patches known to the engine but absent from data are left
// untouched — loading a deliberately partial snapshot is a supported
// operation, not an error (§9).
func (e *Engine) LoadState(data []byte) error {
	obj, err := snapshot.Load(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := e.clk.MonotonicNowMs()

	if v, ok := canon.Float64(obj["gateDisplay"]); ok {
		e.gateDisplay = evidence.Clamp(v)
	}
	if v, ok := canon.Float64(obj["softDisplay"]); ok {
		e.softDisplay = evidence.Clamp(v)
	}

	rawPatches, _ := obj["patches"].(map[string]any)
	for idStr, rawEntry := range rawPatches {
		entry, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		patchId := domain.PatchId(idStr)

		ev, _ := canon.Float64(entry["evidence"])
		errorCount, _ := canon.Int64(entry["errorCount"])
		errorStreak, _ := canon.Int64(entry["errorStreak"])
		observationCount, _ := canon.Int64(entry["observationCount"])
		lastUpdateMs, _ := canon.Int64(entry["lastUpdateMs"])

		restored := ledger.PatchEntry{
			Evidence:         evidence.Clamp(ev),
			LastUpdateMs:     clock.MonoMs(lastUpdateMs),
			ObservationCount: int(observationCount),
			ErrorCount:       int(errorCount),
			ErrorStreak:      int(errorStreak),
		}
		if bestFrameId, ok := canon.String(entry["bestFrameId"]); ok {
			restored.BestFrameId = domain.FrameId(bestFrameId)
			restored.HasBestFrame = true
		}
		if lastGood, ok := canon.Int64(entry["lastGoodUpdateMs"]); ok {
			restored.LastGoodUpdateMs = clock.MonoMs(lastGood)
			restored.HasLastGood = true
		}

		e.split.Gate.RestoreEntry(patchId, restored)
		e.split.Soft.RestoreEntry(patchId, restored)

		locked := restored.IsLocked(e.cfg.Ledger)
		e.disp.Restore(patchId, ev, nowMs, locked)
	}
	return nil
}
