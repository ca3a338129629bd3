package state

import (
	"fmt"
	"net/netip"
)

type PacketType int32

const (
	PacketHello PacketType = iota
	PacketLSAUpdate
)

func (t PacketType) String() string {
	switch t {
	case PacketHello:
		return "HELLO"
	case PacketLSAUpdate:
		return "LSAUPDATE"
	}
	return fmt.Sprintf("PacketType(%d)", int32(t))
}

// Packet is the single message exchanged between routers.
type Packet struct {
	SrcProcessAddr netip.AddrPort
	SrcAddr        Addr
	DstAddr        Addr
	Type           PacketType
	RouterID       Addr
	// Neighbor is only meaningful on a Hello
	Neighbor Addr
	LSAs     []LSA
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s %s(%s) -> %s neighbor=%s lsas=%d", p.Type, p.SrcAddr, p.SrcProcessAddr, p.DstAddr, p.Neighbor, len(p.LSAs))
}
