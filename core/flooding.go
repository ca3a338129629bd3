package core

import (
	"context"

	"github.com/encodeous/sospf/state"
)

func (r *Router) handleUpdate(ctx context.Context, pkt *state.Packet) {
	r.peers.Resolve(pkt.SrcProcessAddr, pkt.SrcAddr)
	changed := false
	own := false
	for i := range pkt.LSAs {
		if r.lsd.Reconcile(&pkt.LSAs[i]) {
			changed = true
			own = own || pkt.LSAs[i].Origin == r.self.Addr
		}
	}
	if !changed {
		r.env.Log.Debug("lsa update carried nothing new", "peer", pkt.SrcAddr)
		return
	}
	var out []outbound
	_ = r.ports.Do(func(p *Ports) error {
		except := pkt.SrcAddr
		if own && r.repairLocked(p) {
			// the sender holds the stale copy too
			except = ""
		}
		out = r.floodLocked(p, except)
		return nil
	})
	r.flush(ctx, out)
}

// repairLocked makes the port table agree with a copy of the local LSA that another router changed.
// A TWO_WAY neighbor missing from the LSA has withdrawn the adjacency and its port is freed.
// Adjacencies the LSA claims but the port table lacks are withdrawn again, in which case it returns true.
func (r *Router) repairLocked(p *Ports) bool {
	own := r.lsd.Own()
	for _, port := range p.Occupied() {
		remote := p.Link(port).Remote
		if remote.Status() == state.StatusTwoWay && !own.HasLink(remote.Addr) {
			r.env.Log.Info("neighbor withdrew adjacency", "peer", remote.Addr, "port", port)
			p.Vacate(port)
		}
	}
	withdrew := false
	for _, ld := range own.Links {
		if ld.LinkID == r.self.Addr {
			continue
		}
		port, ok := p.OutgoingPort(ld.LinkID)
		if ok && p.Link(port).Remote.Status() == state.StatusTwoWay {
			continue
		}
		r.env.Log.Info("withdrawing stale adjacency", "peer", ld.LinkID)
		r.lsd.RemoveLinks(ld.LinkID)
		withdrew = true
	}
	return withdrew
}
