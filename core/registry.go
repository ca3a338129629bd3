package core

import (
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/encodeous/sospf/state"
)

// Registry maps simulated addresses to the one shared Peer for that router. Peers are never removed.
type Registry struct {
	mu    sync.RWMutex
	peers map[state.Addr]*state.Peer
}

func NewRegistry(self *state.Peer) *Registry {
	return &Registry{
		peers: map[state.Addr]*state.Peer{self.Addr: self},
	}
}

// Resolve returns the peer for addr, creating it if needed. A valid endpoint replaces the stored one.
func (r *Registry) Resolve(endpoint netip.AddrPort, addr state.Addr) *state.Peer {
	r.mu.RLock()
	p, ok := r.peers[addr]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		p, ok = r.peers[addr]
		if !ok {
			p = state.NewPeer(endpoint, addr)
			r.peers[addr] = p
		}
		r.mu.Unlock()
	}
	p.SetEndpoint(endpoint)
	return p
}

func (r *Registry) Lookup(addr state.Addr) (*state.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[addr]
	return p, ok
}

func (r *Registry) All() []*state.Peer {
	r.mu.RLock()
	peers := make([]*state.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()
	slices.SortFunc(peers, func(a, b *state.Peer) int {
		return strings.Compare(string(a.Addr), string(b.Addr))
	})
	return peers
}
