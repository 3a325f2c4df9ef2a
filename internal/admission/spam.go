package admission

import (
	"sync"

	"github.com/aether3d/evidence-core/internal/clock"
	"github.com/aether3d/evidence-core/internal/config"
	"github.com/aether3d/evidence-core/internal/domain"
)

type spamState struct {
	windowStart  clock.MonoMs
	count        int
	lastUpdateMs clock.MonoMs
	hasLast      bool
}

// SpamGuard enforces a minimum spacing between observations for the same
// patch and a soft throttle once a patch exceeds its per-window update
// budget. The minimum-spacing check is a hard block (C12's
// shouldAllowUpdate); the window-budget check only scales quality down,
// since an unusually chatty but genuine sensor shouldn't be silenced
// outright.
type SpamGuard struct {
	mu    sync.Mutex
	cfg   config.AdmissionConfig
	state map[domain.PatchId]*spamState
}

// NewSpamGuard builds an empty guard.
func NewSpamGuard(cfg config.AdmissionConfig) *SpamGuard {
	return &SpamGuard{cfg: cfg, state: make(map[domain.PatchId]*spamState)}
}

// shouldAllowUpdate is the hard-block check: an observation arriving less
// than MinInterUpdateMs after the previous one for the same patch is
// refused outright, since it cannot represent a genuinely new camera
// frame at any plausible capture rate.
func (g *SpamGuard) shouldAllowUpdate(s *spamState, nowMs clock.MonoMs) bool {
	if !s.hasLast {
		return true
	}
	return nowMs.Sub(s.lastUpdateMs) >= g.cfg.MinInterUpdateMs
}

// Evaluate records one observation attempt for patchId at nowMs and
// returns whether it is admitted and, if so, the quality scale to apply.
// A denied observation must not be counted toward the window budget —
// only admitted traffic can trip the soft throttle.
func (g *SpamGuard) Evaluate(patchId domain.PatchId, nowMs clock.MonoMs) (allowed bool, scale float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.state[patchId]
	if !ok {
		s = &spamState{windowStart: nowMs}
		g.state[patchId] = s
	}

	if !g.shouldAllowUpdate(s, nowMs) {
		return false, 0
	}

	if nowMs.Sub(s.windowStart) > g.cfg.SpamWindowMs {
		s.windowStart = nowMs
		s.count = 0
	}
	s.count++
	s.lastUpdateMs = nowMs
	s.hasLast = true

	if s.count > g.cfg.SpamMaxPerWindow {
		return true, spamRampScale(s.count, g.cfg)
	}
	return true, 1.0
}

// spamRampScale ramps linearly from full quality down to SpamFloorScale as
// count climbs past SpamMaxPerWindow (§4.12: "decreases linearly ... to
// floor as excess grows"), reaching the floor once excess equals the
// window budget itself and staying there for anything chattier.
func spamRampScale(count int, cfg config.AdmissionConfig) float64 {
	excess := count - cfg.SpamMaxPerWindow
	rampSpan := cfg.SpamMaxPerWindow
	if rampSpan <= 0 {
		return cfg.SpamFloorScale
	}
	t := float64(excess) / float64(rampSpan)
	if t >= 1 {
		return cfg.SpamFloorScale
	}
	return 1.0 - (1.0-cfg.SpamFloorScale)*t
}

// Reset clears all per-patch spam state.
func (g *SpamGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = make(map[domain.PatchId]*spamState)
}
