package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/encodeous/sospf/state"
)

var (
	ErrSelfAttach      = errors.New("the destination IP matches the router's own IP")
	ErrAlreadyAttached = errors.New("already attached")
	ErrAttachPending   = errors.New("an attach request is already pending")
	ErrNoFreePort      = errors.New("no free port")
	ErrNotAttached     = errors.New("not attached")
	ErrRejected        = errors.New("the request has been rejected")
	ErrAttachTimeout   = errors.New("timed out waiting for the attach response")
)

// Pending is the outcome of an outbound attach request. It resolves exactly once.
type Pending struct {
	Peer *state.Peer
	done chan struct{}
	err  error
	once sync.Once
}

func newPending(peer *state.Peer) *Pending {
	return &Pending{Peer: peer, done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the remote answers or ctx ends. A nil error means the request was accepted.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Ports is the port table of a router. It must only be used through PortTable.Do.
type Ports struct {
	self      *state.Peer
	slots     []*state.Link
	pending   map[state.Addr]*Pending
	// cancelled remembers when an outbound attach was given up on, so a late acceptance can be withdrawn
	cancelled map[state.Addr]time.Time
	log       *slog.Logger
}

// Attach reserves an outbound attach handshake with peer. No slot is consumed until the remote accepts.
func (p *Ports) Attach(peer *state.Peer) (*Pending, error) {
	if peer.Addr == p.self.Addr {
		return nil, ErrSelfAttach
	}
	if _, ok := p.OutgoingPort(peer.Addr); ok {
		return nil, fmt.Errorf("%w to %s", ErrAlreadyAttached, peer.Addr)
	}
	if _, ok := p.pending[peer.Addr]; ok {
		return nil, fmt.Errorf("%w for %s", ErrAttachPending, peer.Addr)
	}
	if p.Free() == 0 {
		return nil, ErrNoFreePort
	}
	pend := newPending(peer)
	p.pending[peer.Addr] = pend
	delete(p.cancelled, peer.Addr)
	return pend, nil
}

// Pending returns the outbound attach in progress with addr, if any.
func (p *Ports) Pending(addr state.Addr) (*Pending, bool) {
	pend, ok := p.pending[addr]
	return pend, ok
}

// Take forgets the pending attach with addr without resolving it, releasing its reservation.
func (p *Ports) Take(addr state.Addr) (*Pending, bool) {
	pend, ok := p.pending[addr]
	if ok {
		delete(p.pending, addr)
	}
	return pend, ok
}

// Settle resolves and forgets the pending attach with addr.
func (p *Ports) Settle(addr state.Addr, err error) {
	if pend, ok := p.Take(addr); ok {
		pend.resolve(err)
	}
}

// Cancel forgets pend if it is still the pending attach with its peer.
func (p *Ports) Cancel(pend *Pending) {
	if cur, ok := p.pending[pend.Peer.Addr]; ok && cur == pend {
		delete(p.pending, pend.Peer.Addr)
		p.cancelled[pend.Peer.Addr] = time.Now()
		pend.resolve(ErrAttachTimeout)
	}
}

// TakeCancelled reports whether an attach with addr was cancelled within ttl, and forgets it.
func (p *Ports) TakeCancelled(addr state.Addr, ttl time.Duration) bool {
	at, ok := p.cancelled[addr]
	if !ok {
		return false
	}
	delete(p.cancelled, addr)
	return time.Since(at) <= ttl
}

// Occupy puts link in the first free slot. A pending attach with the same remote is resolved as accepted
// and gives up its reservation, other pending attaches keep theirs.
func (p *Ports) Occupy(link *state.Link) (int, error) {
	if _, ok := p.OutgoingPort(link.Remote.Addr); ok {
		return 0, fmt.Errorf("%w to %s", ErrAlreadyAttached, link.Remote.Addr)
	}
	if _, reserved := p.pending[link.Remote.Addr]; !reserved && p.Free() <= 0 {
		p.log.Warn("cannot occupy port, remaining ports are reserved", "peer", link.Remote.Addr, "pending", len(p.pending))
		return 0, ErrNoFreePort
	}
	for i, slot := range p.slots {
		if slot == nil {
			p.slots[i] = link
			p.log.Debug("port occupied", "port", i, "peer", link.Remote.Addr)
			p.Settle(link.Remote.Addr, nil)
			return i, nil
		}
	}
	p.log.Warn("cannot occupy port, all ports are in use", "peer", link.Remote.Addr)
	return 0, ErrNoFreePort
}

// Vacate clears a slot and resets the remote's status. Empty slots are ignored.
func (p *Ports) Vacate(port int) {
	if port < 0 || port >= len(p.slots) || p.slots[port] == nil {
		return
	}
	link := p.slots[port]
	link.Remote.SetStatus(state.StatusNull)
	p.slots[port] = nil
	p.log.Debug("port vacated", "port", port, "peer", link.Remote.Addr)
}

func (p *Ports) OutgoingPort(addr state.Addr) (int, bool) {
	for i, slot := range p.slots {
		if slot != nil && slot.Remote.Addr == addr {
			return i, true
		}
	}
	return 0, false
}

func (p *Ports) Link(port int) *state.Link {
	if port < 0 || port >= len(p.slots) {
		return nil
	}
	return p.slots[port]
}

// Occupied returns the indices of every occupied slot in order.
func (p *Ports) Occupied() []int {
	ports := make([]int, 0, len(p.slots))
	for i, slot := range p.slots {
		if slot != nil {
			ports = append(ports, i)
		}
	}
	return ports
}

// Free is the number of slots that can still be used. Pending attaches count as used.
func (p *Ports) Free() int {
	return len(p.slots) - len(p.Occupied()) - len(p.pending)
}

// PortTable guards a Ports with the router-wide lock.
type PortTable struct {
	mu sync.Mutex
	p  Ports
}

func NewPortTable(self *state.Peer, capacity int, log *slog.Logger) *PortTable {
	return &PortTable{
		p: Ports{
			self:      self,
			slots:     make([]*state.Link, capacity),
			pending:   make(map[state.Addr]*Pending),
			cancelled: make(map[state.Addr]time.Time),
			log:       log,
		},
	}
}

// Do runs fn with exclusive access to the port table.
func (t *PortTable) Do(fn func(p *Ports) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(&t.p)
}

func (t *PortTable) Attach(peer *state.Peer) (pend *Pending, err error) {
	_ = t.Do(func(p *Ports) error {
		pend, err = p.Attach(peer)
		return nil
	})
	return
}

func (t *PortTable) Occupy(link *state.Link) (port int, err error) {
	_ = t.Do(func(p *Ports) error {
		port, err = p.Occupy(link)
		return nil
	})
	return
}

func (t *PortTable) Vacate(port int) {
	_ = t.Do(func(p *Ports) error {
		p.Vacate(port)
		return nil
	})
}

func (t *PortTable) OutgoingPort(addr state.Addr) (port int, ok bool) {
	_ = t.Do(func(p *Ports) error {
		port, ok = p.OutgoingPort(addr)
		return nil
	})
	return
}

// PortLink is a copy of one occupied slot.
type PortLink struct {
	Port   int
	Remote *state.Peer
}

func (t *PortTable) Snapshot() []PortLink {
	var out []PortLink
	_ = t.Do(func(p *Ports) error {
		for _, i := range p.Occupied() {
			out = append(out, PortLink{Port: i, Remote: p.slots[i].Remote})
		}
		return nil
	})
	return out
}
