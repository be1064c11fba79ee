package keepalive

import (
	"testing"
	"time"
)

func TestClientParametersRejectsNegative(t *testing.T) {
	if err := (ClientParameters{Time: -1}).Validate(); err == nil {
		t.Error("Validate() should reject negative Time")
	}
	if err := (ClientParameters{Timeout: 20 * time.Second}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestServerParametersRejectsNegative(t *testing.T) {
	if err := (ServerParameters{MaxConnectionAge: -1}).Validate(); err == nil {
		t.Error("Validate() should reject negative MaxConnectionAge")
	}
}

func TestEnforcementPolicyRejectsNegative(t *testing.T) {
	if err := (EnforcementPolicy{MinTime: -1}).Validate(); err == nil {
		t.Error("Validate() should reject negative MinTime")
	}
}
