// Package backoff computes the retry delay sequence spec'd for corerpc's
// retry executor: a uniform sample bounded by an exponentially growing cap.
package backoff

import (
	"math/rand"
	"time"
)

// Config holds the knobs the retry executor needs to compute a delay,
// mirroring the matching fields of serviceconfig.RetryPolicy.
type Config struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Compute returns the delay before the given 1-indexed attempt, sampled
// uniformly from [0, min(initialBackoff * multiplier^(attempt-1), maxBackoff)].
// attempt must be >= 1.
func Compute(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	cap := float64(cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		cap *= cfg.BackoffMultiplier
		if cap > float64(cfg.MaxBackoff) {
			cap = float64(cfg.MaxBackoff)
			break
		}
	}
	if cap > float64(cfg.MaxBackoff) {
		cap = float64(cfg.MaxBackoff)
	}
	if cap <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(cap) + 1))
}
