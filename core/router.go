package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/encodeous/sospf/state"
)

// Sender delivers a packet to the router listening on an endpoint.
type Sender interface {
	Send(ctx context.Context, to netip.AddrPort, pkt *state.Packet) error
}

var (
	ErrNotStarted    = errors.New("you cannot start the router before a successful attachment")
	ErrUnknownPacket = errors.New("unknown packet type")
	ErrQuit          = errors.New("router quit")
)

// RequestHook is told about every inbound attach request.
type RequestHook func(req *AttachRequest)

// Router is a single simulated OSPF router.
type Router struct {
	env      *state.Env
	self     *state.Peer
	peers    *Registry
	ports    *PortTable
	lsd      *LinkStateDatabase
	requests *RequestQueue
	tx       Sender
	hook     atomic.Pointer[RequestHook]
}

// outbound is a packet produced under the router lock, sent once the lock is released.
type outbound struct {
	to  netip.AddrPort
	pkt *state.Packet
}

func NewRouter(env *state.Env, tx Sender) *Router {
	env.ApplyDefaults()
	self := state.NewPeer(env.Endpoint(), env.Id)
	peers := NewRegistry(self)
	r := &Router{
		env:   env,
		self:  self,
		peers: peers,
		ports: NewPortTable(self, env.Ports, env.Log),
		lsd:   NewLinkStateDatabase(env.Id, peers, env.Log),
		tx:    tx,
	}
	r.requests = NewRequestQueue(env.RequestTimeout, r.expireRequest)
	return r
}

// Close releases the resources of the router. It does not notify neighbors, see Quit.
func (r *Router) Close() {
	r.requests.Close()
}

func (r *Router) Self() *state.Peer {
	return r.self
}

// OnAttachRequest sets the hook told about inbound attach requests.
func (r *Router) OnAttachRequest(hook RequestHook) {
	r.hook.Store(&hook)
}

// Handle processes one packet received from the network.
func (r *Router) Handle(ctx context.Context, pkt *state.Packet) error {
	if pkt.SrcAddr == "" {
		return fmt.Errorf("packet without source address: %s", pkt)
	}
	if pkt.SrcAddr == r.self.Addr {
		r.env.Log.Warn("dropping packet claiming to be from this router", "packet", pkt.String())
		return nil
	}
	switch pkt.Type {
	case state.PacketHello:
		r.handleHello(ctx, pkt)
	case state.PacketLSAUpdate:
		r.handleUpdate(ctx, pkt)
	default:
		return fmt.Errorf("%w %d from %s", ErrUnknownPacket, pkt.Type, pkt.SrcAddr)
	}
	return nil
}

// Attach sends an attach request to the router at endpoint. The result is delivered through the returned Pending.
func (r *Router) Attach(ctx context.Context, endpoint netip.AddrPort, addr state.Addr) (*Pending, error) {
	if addr == r.self.Addr {
		return nil, ErrSelfAttach
	}
	peer := r.peers.Resolve(endpoint, addr)
	pend, err := r.ports.Attach(peer)
	if err != nil {
		return nil, err
	}
	r.env.Log.Debug("sending attach request", "peer", addr, "endpoint", endpoint)
	err = r.send(ctx, r.hello(peer, r.self.Addr))
	if err != nil {
		_ = r.ports.Do(func(p *Ports) error {
			p.Cancel(pend)
			return nil
		})
		return nil, err
	}
	return pend, nil
}

// Connect attaches to a router, waits for its answer and starts the adjacency.
func (r *Router) Connect(ctx context.Context, endpoint netip.AddrPort, addr state.Addr) error {
	pend, err := r.Attach(ctx, endpoint, addr)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, r.env.AttachTimeout)
	defer cancel()
	err = pend.Wait(wctx)
	if err != nil && wctx.Err() != nil && errors.Is(err, wctx.Err()) {
		_ = r.ports.Do(func(p *Ports) error {
			p.Cancel(pend)
			return nil
		})
		// an answer may have raced the timeout
		err = pend.Wait(context.Background())
	}
	if err != nil {
		return err
	}
	return r.Start(ctx)
}

// Start sends a Hello on every occupied port.
func (r *Router) Start(ctx context.Context) error {
	var out []outbound
	err := r.ports.Do(func(p *Ports) error {
		occupied := p.Occupied()
		if len(occupied) == 0 {
			return ErrNotStarted
		}
		for _, port := range occupied {
			out = append(out, r.statusHello(p.Link(port).Remote))
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.flush(ctx, out)
	return nil
}

// Disconnect withdraws the adjacency with addr, tells every attached router and frees the port.
func (r *Router) Disconnect(ctx context.Context, addr state.Addr) error {
	var out []outbound
	err := r.ports.Do(func(p *Ports) error {
		port, ok := p.OutgoingPort(addr)
		if !ok {
			return fmt.Errorf("%w to %s", ErrNotAttached, addr)
		}
		r.lsd.RemoveLinks(addr)
		out = r.updateAllLocked(p)
		// a neighbor short of TWO_WAY learns nothing from the update
		out = append(out, r.hello(p.Link(port).Remote, state.RejectNeighbor))
		p.Vacate(port)
		return nil
	})
	if err != nil {
		return err
	}
	r.env.Log.Info("disconnected", "peer", addr)
	r.flush(ctx, out)
	return nil
}

// Quit disconnects from every attached router and cancels the router's context.
func (r *Router) Quit(ctx context.Context) error {
	var out []outbound
	_ = r.ports.Do(func(p *Ports) error {
		occupied := p.Occupied()
		for _, port := range occupied {
			r.lsd.RemoveLinks(p.Link(port).Remote.Addr)
		}
		out = r.updateAllLocked(p)
		for _, port := range occupied {
			out = append(out, r.hello(p.Link(port).Remote, state.RejectNeighbor))
			p.Vacate(port)
		}
		return nil
	})
	r.flush(ctx, out)
	r.env.Cancel(ErrQuit)
	return nil
}

// Detect returns the shortest path to dst, both ends included.
func (r *Router) Detect(dst state.Addr) ([]state.Addr, error) {
	return r.lsd.ShortestPath(dst)
}

// Neighbor is an adjacency advertised in the local LSA.
type Neighbor struct {
	Port int
	Peer *state.Peer
}

func (r *Router) Neighbors() []Neighbor {
	out := make([]Neighbor, 0)
	for _, peer := range r.lsd.ConnectedNeighbors() {
		port, ok := r.ports.OutgoingPort(peer.Addr)
		if !ok {
			port = state.NoPort
		}
		out = append(out, Neighbor{Port: port, Peer: peer})
	}
	return out
}

// Ports returns the occupied slots of the port table.
func (r *Router) Ports() []PortLink {
	return r.ports.Snapshot()
}

func (r *Router) LSAs() []state.LSA {
	return r.lsd.All()
}

func (r *Router) Routes() *ForwardingTable {
	return r.lsd.Routes()
}

// PendingRequests returns inbound attach requests awaiting an answer, oldest first.
func (r *Router) PendingRequests() []*AttachRequest {
	return r.requests.Pending()
}

// OldestRequest is the address of the inbound attach request that has waited longest.
func (r *Router) OldestRequest() (state.Addr, bool) {
	return r.requests.Oldest()
}

// Accept answers the inbound attach request from addr by occupying a port for it.
func (r *Router) Accept(ctx context.Context, addr state.Addr) error {
	req, err := r.requests.Take(addr)
	if err != nil {
		return err
	}
	var out []outbound
	err = r.ports.Do(func(p *Ports) error {
		_, err := p.Occupy(&state.Link{Local: r.self, Remote: req.Peer})
		if err != nil && !errors.Is(err, ErrAlreadyAttached) {
			out = append(out, r.reply(req, state.RejectNeighbor))
			return err
		}
		out = append(out, r.reply(req, r.self.Addr))
		return nil
	})
	r.flush(ctx, out)
	if err == nil {
		r.env.Log.Info("accepted attach request", "peer", addr)
	}
	return err
}

// Reject refuses the inbound attach request from addr.
func (r *Router) Reject(ctx context.Context, addr state.Addr) error {
	req, err := r.requests.Take(addr)
	if err != nil {
		return err
	}
	r.flush(ctx, []outbound{r.reply(req, state.RejectNeighbor)})
	r.env.Log.Info("rejected attach request", "peer", addr)
	return nil
}

func (r *Router) expireRequest(req *AttachRequest) {
	r.env.Log.Info("attach request expired, rejecting", "peer", req.Peer.Addr)
	r.flush(r.env.Context, []outbound{r.reply(req, state.RejectNeighbor)})
}

func (r *Router) packet(typ state.PacketType, to *state.Peer) *state.Packet {
	return &state.Packet{
		SrcProcessAddr: r.self.Endpoint(),
		SrcAddr:        r.self.Addr,
		DstAddr:        to.Addr,
		Type:           typ,
		RouterID:       r.self.Addr,
	}
}

func (r *Router) hello(to *state.Peer, neighbor state.Addr) outbound {
	pkt := r.packet(state.PacketHello, to)
	pkt.Neighbor = neighbor
	return outbound{to: to.Endpoint(), pkt: pkt}
}

// statusHello names the peer once this router has heard from it, otherwise this router.
func (r *Router) statusHello(to *state.Peer) outbound {
	neighbor := r.self.Addr
	if st := to.Status(); st == state.StatusInit || st == state.StatusTwoWay {
		neighbor = to.Addr
	}
	return r.hello(to, neighbor)
}

func (r *Router) reply(req *AttachRequest, neighbor state.Addr) outbound {
	pkt := r.packet(state.PacketHello, req.Peer)
	pkt.Neighbor = neighbor
	return outbound{to: req.Endpoint, pkt: pkt}
}

func (r *Router) update(to *state.Peer, lsas []state.LSA) outbound {
	pkt := r.packet(state.PacketLSAUpdate, to)
	pkt.LSAs = lsas
	return outbound{to: to.Endpoint(), pkt: pkt}
}

func (r *Router) send(ctx context.Context, o outbound) error {
	if !o.to.IsValid() {
		return fmt.Errorf("no known endpoint for %s", o.pkt.DstAddr)
	}
	return r.tx.Send(ctx, o.to, o.pkt)
}

// flush sends packets collected under the lock. Failures are logged and never reset an adjacency.
func (r *Router) flush(ctx context.Context, out []outbound) {
	for _, o := range out {
		err := r.send(ctx, o)
		if err != nil {
			r.env.Log.Warn("failed to send packet", "peer", o.pkt.DstAddr, "type", o.pkt.Type.String(), "error", err)
		}
	}
}
