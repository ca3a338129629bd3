package state

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

// Addr is a simulated IP address. It is the identity of a router.
type Addr string

func (a Addr) String() string {
	return string(a)
}

// Prefix returns the host prefix covering a, or false if a is not an IP address.
func (a Addr) Prefix() (netip.Prefix, bool) {
	ip, err := netip.ParseAddr(string(a))
	if err != nil {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(ip, ip.BitLen()), true
}

type Status int32

const (
	StatusNull Status = iota
	StatusInit
	StatusTwoWay
)

func (s Status) String() string {
	switch s {
	case StatusNull:
		return "NULL"
	case StatusInit:
		return "INIT"
	case StatusTwoWay:
		return "TWO_WAY"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Peer is the one shared record of a router known by its simulated address.
// Every holder sees the same status.
type Peer struct {
	Addr     Addr
	mu       sync.RWMutex
	endpoint netip.AddrPort
	status   atomic.Int32
}

func NewPeer(endpoint netip.AddrPort, addr Addr) *Peer {
	return &Peer{
		Addr:     addr,
		endpoint: endpoint,
	}
}

// Endpoint is the process address the peer listens on. It may be invalid if the
// peer has only been learnt from an LSA.
func (p *Peer) Endpoint() netip.AddrPort {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoint
}

// SetEndpoint records ep if it is valid, returning true if the stored endpoint changed.
func (p *Peer) SetEndpoint(ep netip.AddrPort) bool {
	if !ep.IsValid() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpoint == ep {
		return false
	}
	p.endpoint = ep
	return true
}

func (p *Peer) Status() Status {
	return Status(p.status.Load())
}

// SetStatus stores s and returns the previous status.
func (p *Peer) SetStatus(s Status) Status {
	return Status(p.status.Swap(int32(s)))
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s(%s)[%s]", p.Addr, p.Endpoint(), p.Status())
}

// Link is an occupied port: the local router and the remote it is attached to.
type Link struct {
	Local  *Peer
	Remote *Peer
}
