package balancer

import (
	"context"
	"testing"

	"github.com/corerpc/corerpc/resolver"
)

func addrs(names ...string) []resolver.Address {
	out := make([]resolver.Address, len(names))
	for i, n := range names {
		out[i] = resolver.Address{Addr: n}
	}
	return out
}

func TestPickFirstAlwaysReturnsFirstAddress(t *testing.T) {
	p := Get("pick_first").Build(addrs("a", "b", "c"))
	for i := 0; i < 5; i++ {
		res, err := p.Pick(context.Background(), PickInfo{})
		if err != nil {
			t.Fatalf("Pick() error = %v", err)
		}
		if res.Address.Addr != "a" {
			t.Errorf("Pick() = %v, want a", res.Address.Addr)
		}
	}
}

func TestRoundRobinCyclesBeforeRepeating(t *testing.T) {
	p := Get("round_robin").Build(addrs("a", "b", "c"))
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		res, err := p.Pick(context.Background(), PickInfo{})
		if err != nil {
			t.Fatalf("Pick() error = %v", err)
		}
		if seen[res.Address.Addr] {
			t.Fatalf("address %s repeated before full cycle", res.Address.Addr)
		}
		seen[res.Address.Addr] = true
	}
	res, _ := p.Pick(context.Background(), PickInfo{})
	if !seen[res.Address.Addr] {
		t.Error("expected the 4th pick to repeat an address from the first cycle")
	}
}

func TestPickNoAddressesErrors(t *testing.T) {
	p := Get("round_robin").Build(nil)
	if _, err := p.Pick(context.Background(), PickInfo{}); err != ErrNoAddresses {
		t.Errorf("Pick() error = %v, want ErrNoAddresses", err)
	}
}

func TestGetUnknownBuilderReturnsNil(t *testing.T) {
	if Get("not-a-builder") != nil {
		t.Error("Get(unknown) should return nil")
	}
}
