// Package balancer defines the load-balancing contracts a corerpc
// ClientConn consults to pick an address among a
// resolved set, simplified to the synchronous address-list model the
// in-process fixture needs (no sub-connection lifecycle, no
// connectivity-state machine — those belong to a production Transport,
// out of scope here).
package balancer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/corerpc/corerpc/resolver"
)

// ErrNoAddresses is returned by Pick when the balancer has no address to
// offer.
var ErrNoAddresses = errors.New("balancer: no addresses available")

// DoneInfo is reported back to the balancer once an RPC on a picked
// address has finished.
type DoneInfo struct {
	Err error
}

// PickInfo carries whatever context a Picker might need to choose an
// address; currently nothing.
type PickInfo struct{}

// PickResult is the outcome of a successful Pick.
type PickResult struct {
	Address resolver.Address
	Done    func(DoneInfo)
}

// Picker chooses an address to send an RPC to.
type Picker interface {
	Pick(ctx context.Context, info PickInfo) (PickResult, error)
}

// Builder constructs a Picker from a resolved address list.
type Builder interface {
	Build(addrs []resolver.Address) Picker
	Name() string
}

var (
	mu       sync.Mutex
	registry = make(map[string]Builder)
)

// Register registers b under the lower-cased form of b.Name(). The last
// registration for a given name wins.
func Register(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(b.Name())] = b
}

// Get returns the Builder registered under name (case-insensitive), or nil.
func Get(name string) Builder {
	mu.Lock()
	defer mu.Unlock()
	return registry[strings.ToLower(name)]
}

func init() {
	Register(pickFirstBuilder{})
	Register(roundRobinBuilder{})
}

type pickFirstBuilder struct{}

func (pickFirstBuilder) Name() string { return "pick_first" }

func (pickFirstBuilder) Build(addrs []resolver.Address) Picker {
	return &pickFirstPicker{addrs: addrs}
}

type pickFirstPicker struct {
	addrs []resolver.Address
}

func (p *pickFirstPicker) Pick(context.Context, PickInfo) (PickResult, error) {
	if len(p.addrs) == 0 {
		return PickResult{}, ErrNoAddresses
	}
	return PickResult{Address: p.addrs[0]}, nil
}

type roundRobinBuilder struct{}

func (roundRobinBuilder) Name() string { return "round_robin" }

func (roundRobinBuilder) Build(addrs []resolver.Address) Picker {
	cp := make([]resolver.Address, len(addrs))
	copy(cp, addrs)
	return &roundRobinPicker{addrs: cp}
}

// roundRobinPicker cycles through all READY addresses before repeating any
// address.
type roundRobinPicker struct {
	mu   sync.Mutex
	next int
	addrs []resolver.Address
}

func (p *roundRobinPicker) Pick(context.Context, PickInfo) (PickResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.addrs) == 0 {
		return PickResult{}, ErrNoAddresses
	}
	addr := p.addrs[p.next%len(p.addrs)]
	p.next++
	return PickResult{Address: addr}, nil
}
