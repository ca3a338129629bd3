package state

import (
	"fmt"
	"slices"
	"strings"
)

// LinkDescription is one adjacency advertised in an LSA.
type LinkDescription struct {
	LinkID Addr
	Port   int
}

func (l LinkDescription) String() string {
	return fmt.Sprintf("(%s,%d)", l.LinkID, l.Port)
}

// LSA is a link-state advertisement. Values stored in the database are never mutated; use Clone before changing one.
type LSA struct {
	Origin Addr
	Seqno  int32
	Links  []LinkDescription
}

// NewLSA returns the initial LSA of a router, holding only its self-loop.
func NewLSA(origin Addr) *LSA {
	return &LSA{
		Origin: origin,
		Seqno:  InitialSeqno,
		Links:  []LinkDescription{{LinkID: origin, Port: NoPort}},
	}
}

func (l *LSA) Clone() *LSA {
	return &LSA{
		Origin: l.Origin,
		Seqno:  l.Seqno,
		Links:  slices.Clone(l.Links),
	}
}

// Newer reports whether l should replace cur.
func (l *LSA) Newer(cur *LSA) bool {
	return cur == nil || l.Seqno > cur.Seqno
}

// HasLink reports whether l advertises an adjacency to addr.
func (l *LSA) HasLink(addr Addr) bool {
	return slices.ContainsFunc(l.Links, func(ld LinkDescription) bool {
		return ld.LinkID == addr
	})
}

// WithoutLink returns a copy of l with every link to addr removed and the seqno bumped.
func (l *LSA) WithoutLink(addr Addr) *LSA {
	next := l.Clone()
	next.Links = slices.DeleteFunc(next.Links, func(ld LinkDescription) bool {
		return ld.LinkID == addr
	})
	next.Seqno++
	return next
}

// WithLink returns a copy of l advertising addr on port, replacing any previous entry for addr.
func (l *LSA) WithLink(addr Addr, port int) *LSA {
	next := l.WithoutLink(addr)
	next.Links = append(next.Links, LinkDescription{LinkID: addr, Port: port})
	return next
}

func (l *LSA) String() string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%s:%d", l.Origin, l.Seqno))
	for _, ld := range l.Links {
		sb.WriteString(" ")
		sb.WriteString(ld.String())
	}
	return sb.String()
}
