package core

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/encodeous/sospf/state"
	"github.com/stretchr/testify/assert"
)

func TestRegistryResolve(t *testing.T) {
	self := state.NewPeer(netip.MustParseAddrPort("127.0.0.1:1000"), "10.0.0.1")
	reg := NewRegistry(self)

	got, ok := reg.Lookup("10.0.0.1")
	assert.True(t, ok)
	assert.Same(t, self, got)

	// learnt from an LSA first, endpoint unknown
	b := reg.Resolve(netip.AddrPort{}, "10.0.0.2")
	assert.False(t, b.Endpoint().IsValid())

	ep := netip.MustParseAddrPort("127.0.0.1:1001")
	again := reg.Resolve(ep, "10.0.0.2")
	assert.Same(t, b, again)
	assert.Equal(t, ep, b.Endpoint())

	// an unknown endpoint never erases a known one
	reg.Resolve(netip.AddrPort{}, "10.0.0.2")
	assert.Equal(t, ep, b.Endpoint())

	_, ok = reg.Lookup("10.0.0.3")
	assert.False(t, ok)
	assert.Len(t, reg.All(), 2)
}

func TestRegistryConcurrentResolve(t *testing.T) {
	reg := NewRegistry(state.NewPeer(netip.AddrPort{}, "10.0.0.1"))
	peers := make([]*state.Peer, 32)
	var wg sync.WaitGroup
	for i := range peers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			peers[i] = reg.Resolve(netip.AddrPort{}, "10.0.0.9")
		}()
	}
	wg.Wait()
	for _, p := range peers {
		assert.Same(t, peers[0], p)
	}
}
