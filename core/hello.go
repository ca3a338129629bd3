package core

import (
	"context"
	"time"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
)

func (r *Router) handleHello(ctx context.Context, pkt *state.Packet) {
	sender := r.peers.Resolve(pkt.SrcProcessAddr, pkt.SrcAddr)
	r.env.Log.Debug("received hello", "peer", sender.Addr, "neighbor", pkt.Neighbor)

	var out []outbound
	var req *AttachRequest
	_ = r.ports.Do(func(p *Ports) error {
		if _, ok := p.OutgoingPort(sender.Addr); ok {
			out = r.statusHandshake(p, sender, pkt)
		} else {
			req, out = r.attachHandshake(p, sender, pkt)
		}
		return nil
	})
	if req != nil {
		r.requests.Add(req)
		r.env.Log.Info("received attach request", "peer", sender.Addr, "endpoint", req.Endpoint)
		if hook := r.hook.Load(); hook != nil {
			(*hook)(req)
		}
	}
	r.flush(ctx, out)
}

// attachHandshake handles a hello from a router that has no port. The answer to an outbound
// request carries the responder's own address just like a request does, so a pending attach is checked first.
func (r *Router) attachHandshake(p *Ports, sender *state.Peer, pkt *state.Packet) (*AttachRequest, []outbound) {
	log := r.env.Log.With("peer", sender.Addr)
	if pend, ok := p.Take(sender.Addr); ok {
		if pkt.Neighbor == state.RejectNeighbor {
			pend.resolve(ErrRejected)
			log.Info("attach request was rejected")
			return nil, nil
		}
		verified := r.peers.Resolve(pkt.SrcProcessAddr, pkt.Neighbor)
		port, err := p.Occupy(&state.Link{Local: r.self, Remote: verified})
		pend.resolve(err)
		if err != nil {
			// the remote already holds a port for us
			log.Warn("cannot complete accepted attach, withdrawing", "error", err)
			return nil, []outbound{r.hello(sender, state.RejectNeighbor)}
		}
		log.Info("attach request was accepted", "port", port)
		return nil, nil
	}
	answer := pkt.Neighbor == sender.Addr || pkt.Neighbor == state.RejectNeighbor
	if answer && p.TakeCancelled(sender.Addr, r.env.RequestTimeout) {
		if pkt.Neighbor == state.RejectNeighbor {
			log.Debug("cancelled attach was rejected")
			return nil, nil
		}
		log.Info("withdrawing late acceptance of a cancelled attach")
		return nil, []outbound{r.hello(sender, state.RejectNeighbor)}
	}
	if pkt.Neighbor == sender.Addr {
		return &AttachRequest{
			Peer:       sender,
			Endpoint:   pkt.SrcProcessAddr,
			ReceivedAt: time.Now(),
		}, nil
	}
	log.Debug("dropping hello from unattached router", "neighbor", pkt.Neighbor)
	return nil, nil
}

// statusHandshake moves an attached peer through NULL, INIT and TWO_WAY.
// A hello carrying the reject sentinel withdraws the link.
func (r *Router) statusHandshake(p *Ports, sender *state.Peer, pkt *state.Packet) []outbound {
	if pkt.Neighbor == state.RejectNeighbor {
		return r.withdrawLocked(p, sender)
	}
	selfAddressed := pkt.Neighbor == r.self.Addr
	switch sender.Status() {
	case state.StatusNull:
		if !selfAddressed {
			sender.SetStatus(state.StatusInit)
			r.env.Log.Info("set state to INIT", "peer", sender.Addr)
			return []outbound{r.statusHello(sender)}
		}
		out := []outbound{r.statusHello(r.twoWay(p, sender))}
		return append(out, r.floodLocked(p, "")...)
	case state.StatusInit:
		if selfAddressed {
			r.twoWay(p, sender)
			return r.floodLocked(p, "")
		}
		return []outbound{r.statusHello(sender)}
	default:
		r.env.Log.Debug("hello from established neighbor", "peer", sender.Addr)
		return nil
	}
}

// withdrawLocked frees the port of a neighbor that dropped the link, and the adjacency if it was advertised.
func (r *Router) withdrawLocked(p *Ports, peer *state.Peer) []outbound {
	port, ok := p.OutgoingPort(peer.Addr)
	if !ok {
		return nil
	}
	p.Vacate(port)
	r.env.Log.Info("neighbor dropped the link", "peer", peer.Addr, "port", port)
	if !r.lsd.Own().HasLink(peer.Addr) {
		return nil
	}
	r.lsd.RemoveLinks(peer.Addr)
	return r.floodLocked(p, "")
}

func (r *Router) twoWay(p *Ports, peer *state.Peer) *state.Peer {
	peer.SetStatus(state.StatusTwoWay)
	port, _ := p.OutgoingPort(peer.Addr)
	r.lsd.AddOwnLink(peer.Addr, port)
	r.env.Log.Info("set state to TWO_WAY", "peer", peer.Addr, "port", port)
	return peer
}

// floodLocked sends the whole database to every TWO_WAY neighbor except one.
func (r *Router) floodLocked(p *Ports, except state.Addr) []outbound {
	lsas := r.lsd.All()
	out := make([]outbound, 0)
	for _, port := range p.Occupied() {
		remote := p.Link(port).Remote
		if remote.Status() != state.StatusTwoWay || remote.Addr == except {
			continue
		}
		out = append(out, r.update(remote, lsas))
	}
	if len(out) > 0 {
		perf.Floods.Add(1)
	}
	return out
}

// updateAllLocked sends the whole database to every attached router regardless of status.
func (r *Router) updateAllLocked(p *Ports) []outbound {
	lsas := r.lsd.All()
	out := make([]outbound, 0)
	for _, port := range p.Occupied() {
		out = append(out, r.update(p.Link(port).Remote, lsas))
	}
	return out
}
