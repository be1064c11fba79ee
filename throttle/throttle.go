// Package throttle implements the RetryThrottle : a
// global, per-transport token bucket that caps how much retry/hedge
// fan-out a channel may generate from its recent success/failure ratio.
package throttle

import "sync"

// scale lets tokenRatio carry three decimal places while Throttle's
// internal counter stays an integer.
const scale = 1000

// Throttle is safe for concurrent use; it is shared by every attempt
// executor running over the same transport.
type Throttle struct {
	mu         sync.Mutex
	tokens     int64 // scaled by `scale`
	maxTokens  int64 // scaled by `scale`
	tokenRatio int64 // scaled by `scale`
}

// New returns a Throttle starting at maxTokens tokens. maxTokens must be > 0
// and tokenRatio must be > 0, RetryThrottle invariants.
func New(maxTokens int, tokenRatio float64) *Throttle {
	max := int64(maxTokens) * scale
	return &Throttle{
		tokens:     max,
		maxTokens:  max,
		tokenRatio: int64(tokenRatio * scale),
	}
}

// RecordSuccess adds tokenRatio tokens, clamped to maxTokens.
func (t *Throttle) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens += t.tokenRatio
	if t.tokens > t.maxTokens {
		t.tokens = t.maxTokens
	}
}

// RecordFailure subtracts one token (scaled), clamped to 0.
func (t *Throttle) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens -= scale
	if t.tokens < 0 {
		t.tokens = 0
	}
}

// Permits reports whether a retry or hedge attempt is currently allowed:
// true iff the token count exceeds half of maxTokens.
func (t *Throttle) Permits() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens > t.maxTokens/2
}

// Tokens returns the current (unscaled) token count, for tests and
// diagnostics.
func (t *Throttle) Tokens() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.tokens) / scale
}
