package core

import (
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
)

// LinkStateDatabase holds the newest known LSA of every router. The stored LSAs are immutable;
// each key is updated with compare-and-swap so remote LSAs need no coarse lock.
type LinkStateDatabase struct {
	self  state.Addr
	lsas  sync.Map // state.Addr -> *state.LSA
	peers *Registry
	log   *slog.Logger
}

func NewLinkStateDatabase(self state.Addr, peers *Registry, log *slog.Logger) *LinkStateDatabase {
	d := &LinkStateDatabase{
		self:  self,
		peers: peers,
		log:   log,
	}
	d.lsas.Store(self, state.NewLSA(self))
	return d
}

func (d *LinkStateDatabase) load(addr state.Addr) (*state.LSA, bool) {
	v, ok := d.lsas.Load(addr)
	if !ok {
		return nil, false
	}
	return v.(*state.LSA), true
}

// Get returns a copy of the LSA originated by addr.
func (d *LinkStateDatabase) Get(addr state.Addr) (*state.LSA, bool) {
	lsa, ok := d.load(addr)
	if !ok {
		return nil, false
	}
	return lsa.Clone(), true
}

// Own returns a copy of the local router's LSA.
func (d *LinkStateDatabase) Own() *state.LSA {
	lsa, _ := d.Get(d.self)
	return lsa
}

// update replaces the LSA of an existing key with fn(cur). fn returning nil leaves it untouched.
func (d *LinkStateDatabase) update(addr state.Addr, fn func(cur *state.LSA) *state.LSA) bool {
	for {
		cur, ok := d.load(addr)
		if !ok {
			return false
		}
		next := fn(cur)
		if next == nil {
			return false
		}
		if d.lsas.CompareAndSwap(addr, cur, next) {
			return true
		}
	}
}

// AddOwnLink advertises an adjacency with neighbor on port. Called when the neighbor reaches TWO_WAY.
func (d *LinkStateDatabase) AddOwnLink(neighbor state.Addr, port int) {
	if neighbor == d.self {
		return
	}
	d.update(d.self, func(cur *state.LSA) *state.LSA {
		return cur.WithLink(neighbor, port)
	})
	d.log.Debug("added link to own lsa", "peer", neighbor, "port", port)
}

// RemoveLinks withdraws the adjacency with neighbor from the local LSA and from the stored copy of the neighbor's LSA.
func (d *LinkStateDatabase) RemoveLinks(neighbor state.Addr) {
	if neighbor == d.self {
		return
	}
	d.update(d.self, func(cur *state.LSA) *state.LSA {
		if !cur.HasLink(neighbor) {
			return nil
		}
		return cur.WithoutLink(neighbor)
	})
	d.update(neighbor, func(cur *state.LSA) *state.LSA {
		if !cur.HasLink(d.self) {
			return nil
		}
		return cur.WithoutLink(d.self)
	})
	d.log.Debug("removed links", "peer", neighbor)
}

// Reconcile stores lsa if it is newer than what is known for its origin and reports whether it did.
func (d *LinkStateDatabase) Reconcile(lsa *state.LSA) bool {
	next := lsa.Clone()
	for {
		cur, ok := d.load(lsa.Origin)
		if !ok {
			if _, loaded := d.lsas.LoadOrStore(lsa.Origin, next); loaded {
				continue
			}
		} else {
			if !lsa.Newer(cur) {
				perf.LSAsDiscarded.Add(1)
				d.log.Debug("discarded lsa", "origin", lsa.Origin, "seqno", lsa.Seqno, "current", cur.Seqno)
				return false
			}
			if !d.lsas.CompareAndSwap(lsa.Origin, cur, next) {
				continue
			}
		}
		perf.LSAsAccepted.Add(1)
		d.log.Debug("accepted lsa", "origin", lsa.Origin, "seqno", lsa.Seqno)
		return true
	}
}

// ConnectedNeighbors returns every router the local LSA advertises an adjacency with.
func (d *LinkStateDatabase) ConnectedNeighbors() []*state.Peer {
	own, _ := d.load(d.self)
	out := make([]*state.Peer, 0, len(own.Links))
	for _, ld := range own.Links {
		if ld.LinkID == d.self {
			continue
		}
		out = append(out, d.peers.Resolve(netip.AddrPort{}, ld.LinkID))
	}
	return out
}

// All returns a copy of every LSA sorted by origin.
func (d *LinkStateDatabase) All() []state.LSA {
	out := make([]state.LSA, 0)
	d.lsas.Range(func(_, v any) bool {
		out = append(out, *v.(*state.LSA).Clone())
		return true
	})
	slices.SortFunc(out, func(a, b state.LSA) int {
		return strings.Compare(string(a.Origin), string(b.Origin))
	})
	return out
}

func (d *LinkStateDatabase) snapshot() map[state.Addr]*state.LSA {
	out := make(map[state.Addr]*state.LSA)
	d.lsas.Range(func(k, v any) bool {
		out[k.(state.Addr)] = v.(*state.LSA)
		return true
	})
	return out
}
