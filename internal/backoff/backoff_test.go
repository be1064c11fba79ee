package backoff

import (
	"testing"
	"time"
)

func TestComputeNeverExceedsMaxBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond, BackoffMultiplier: 2}
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := Compute(attempt, cfg)
			if d < 0 {
				t.Fatalf("Compute(%d) = %v, want >= 0", attempt, d)
			}
			if d > cfg.MaxBackoff {
				t.Fatalf("Compute(%d) = %v, want <= %v", attempt, d, cfg.MaxBackoff)
			}
		}
	}
}

func TestComputeCapGrowsExponentially(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	var maxSeen [3]time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		for i := 0; i < 200; i++ {
			d := Compute(attempt, cfg)
			if d > maxSeen[attempt-1] {
				maxSeen[attempt-1] = d
			}
		}
	}
	if maxSeen[1] <= maxSeen[0] || maxSeen[2] <= maxSeen[1] {
		t.Errorf("expected the observed cap to grow across attempts, got %v", maxSeen)
	}
}

func TestComputeAttemptOneBoundedByInitial(t *testing.T) {
	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	for i := 0; i < 50; i++ {
		if d := Compute(1, cfg); d > cfg.InitialBackoff {
			t.Fatalf("Compute(1) = %v, want <= %v", d, cfg.InitialBackoff)
		}
	}
}
