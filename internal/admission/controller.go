package admission

import (
	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

// Decision is the single authoritative admission outcome for one
// observation (C14). Every path into the ledgers passes through here;
// nothing downstream re-checks tokens, spam, or ordering.
type Decision struct {
	Admit        bool
	QualityScale float64
	Reason       string // set when Admit is false, or when scale < 1
}

// Controller combines the token bucket, spam guard, and reorder buffer
// into one decision per observation.
type Controller struct {
	cfg     config.AdmissionConfig
	tokens  *TokenBucket
	spam    *SpamGuard
	reorder *ReorderBuffer

	// NoveltyFunc supplies a patch's current diversity score at admission
	// time (queried before this observation's own AddObservation call
	// lands), used to compute the noveltyScale factor of §4.14's
	// qualityScale formula. Left nil by default so admission can be
	// exercised in isolation from a diversity tracker (e.g. in this
	// package's own tests); the engine wires it to its diversity tracker's
	// Score method.
	NoveltyFunc func(domain.PatchId) float64
}

// NewController wires the three admission primitives together.
func NewController(cfg config.AdmissionConfig) *Controller {
	return &Controller{
		cfg:     cfg,
		tokens:  NewTokenBucket(cfg),
		spam:    NewSpamGuard(cfg),
		reorder: NewReorderBuffer(cfg),
	}
}

// noveltyScale implements the low-novelty penalty (§6: lowNoveltyThreshold/
// Penalty, mapped to C12): a patch whose diversity score sits below the
// threshold has its admission quality scaled down, since a run of
// observations from the same angle teaches the aggregator nothing new.
func noveltyScale(diversityScore float64, cfg config.AdmissionConfig) float64 {
	if diversityScore >= cfg.LowNoveltyThreshold {
		return 1.0
	}
	return 1.0 - cfg.LowNoveltyPenalty
}

// Evaluate runs one sequenced observation through admission control. It
// may return zero, one, or several decisions: the reorder buffer can
// release more than one previously-buffered observation once a sequence
// gap closes, and each release is independently token- and spam-checked
// as if it had just arrived.
func (c *Controller) Evaluate(obs domain.SequencedObservation, nowMs clock.MonoMs) []Decision {
	released := c.reorder.Push(obs, nowMs)
	decisions := make([]Decision, 0, len(released))
	for _, r := range released {
		decisions = append(decisions, c.admitOne(r, nowMs))
	}
	return decisions
}

func (c *Controller) admitOne(r ReleaseItem, nowMs clock.MonoMs) Decision {
	if !c.tokens.TryTake(r.Obs.Observation.PatchId, nowMs) {
		return Decision{Admit: false, Reason: "token_bucket_exhausted"}
	}

	allowed, spamScale := c.spam.Evaluate(r.Obs.Observation.PatchId, nowMs)
	if !allowed {
		return Decision{Admit: false, Reason: "spam_min_interval"}
	}

	novelty := 1.0
	if c.NoveltyFunc != nil {
		novelty = noveltyScale(c.NoveltyFunc(r.Obs.Observation.PatchId), c.cfg)
	}

	scale := r.QualityScale * spamScale * novelty
	if scale < c.cfg.MinimumSoftScale {
		scale = c.cfg.MinimumSoftScale
	}

	reason := ""
	if scale < 1.0 {
		reason = "quality_scaled"
	}
	return Decision{Admit: true, QualityScale: scale, Reason: reason}
}

// Reset clears all admission state.
func (c *Controller) Reset() {
	c.tokens.Reset()
	c.spam.Reset()
	c.reorder.Reset()
}
