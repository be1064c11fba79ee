// Package keepalive defines the configuration structs corerpc validates and
// forwards to whatever Transport is plugged in; actually sending pings is a
// Transport responsibility.
package keepalive

import (
	"fmt"
	"time"
)

// ClientParameters configures how a client actively probes connection
// liveness.
type ClientParameters struct {
	// Time is how long the client waits for activity before pinging.
	Time time.Duration
	// Timeout is how long the client waits for a ping response before
	// considering the connection dead.
	Timeout time.Duration
	// PermitWithoutStream allows keepalive pings with no active RPCs.
	PermitWithoutStream bool
}

// Validate checks that p's durations are non-negative.
func (p ClientParameters) Validate() error {
	if p.Time < 0 {
		return fmt.Errorf("keepalive: ClientParameters.Time must be non-negative, got %v", p.Time)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("keepalive: ClientParameters.Timeout must be non-negative, got %v", p.Timeout)
	}
	return nil
}

// ServerParameters configures server-side connection lifetime and liveness
// probing.
type ServerParameters struct {
	MaxConnectionIdle     time.Duration
	MaxConnectionAge      time.Duration
	MaxConnectionAgeGrace time.Duration
	Time                  time.Duration
	Timeout               time.Duration
}

// Validate checks that every duration in p is non-negative.
func (p ServerParameters) Validate() error {
	for name, d := range map[string]time.Duration{
		"MaxConnectionIdle":     p.MaxConnectionIdle,
		"MaxConnectionAge":      p.MaxConnectionAge,
		"MaxConnectionAgeGrace": p.MaxConnectionAgeGrace,
		"Time":                  p.Time,
		"Timeout":               p.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("keepalive: ServerParameters.%s must be non-negative, got %v", name, d)
		}
	}
	return nil
}

// EnforcementPolicy is the server-side policy for rejecting clients that
// send keepalive pings too aggressively.
type EnforcementPolicy struct {
	MinTime             time.Duration
	PermitWithoutStream bool
}

// Validate checks that p.MinTime is non-negative.
func (p EnforcementPolicy) Validate() error {
	if p.MinTime < 0 {
		return fmt.Errorf("keepalive: EnforcementPolicy.MinTime must be non-negative, got %v", p.MinTime)
	}
	return nil
}
