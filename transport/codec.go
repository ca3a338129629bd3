package transport

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/encodeous/sospf/state"
	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers of the wire messages

const (
	fieldSrcProcess protowire.Number = 1
	fieldSrcAddr    protowire.Number = 2
	fieldDstAddr    protowire.Number = 3
	fieldType       protowire.Number = 4
	fieldRouterID   protowire.Number = 5
	fieldNeighbor   protowire.Number = 6
	fieldLSA        protowire.Number = 7
)

const (
	fieldLSAOrigin protowire.Number = 1
	fieldLSASeqno  protowire.Number = 2
	fieldLSALink   protowire.Number = 3
)

const (
	fieldLinkID   protowire.Number = 1
	fieldLinkPort protowire.Number = 2
)

var (
	ErrMalformed = errors.New("malformed packet")
)

// Marshal encodes a packet as a protobuf message
func Marshal(pkt *state.Packet) []byte {
	var b []byte
	if pkt.SrcProcessAddr.IsValid() {
		b = protowire.AppendTag(b, fieldSrcProcess, protowire.BytesType)
		b = protowire.AppendString(b, pkt.SrcProcessAddr.String())
	}
	b = appendString(b, fieldSrcAddr, string(pkt.SrcAddr))
	b = appendString(b, fieldDstAddr, string(pkt.DstAddr))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pkt.Type))
	b = appendString(b, fieldRouterID, string(pkt.RouterID))
	b = appendString(b, fieldNeighbor, string(pkt.Neighbor))
	for i := range pkt.LSAs {
		b = protowire.AppendTag(b, fieldLSA, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalLSA(&pkt.LSAs[i]))
	}
	return b
}

func marshalLSA(lsa *state.LSA) []byte {
	var b []byte
	b = appendString(b, fieldLSAOrigin, string(lsa.Origin))
	b = protowire.AppendTag(b, fieldLSASeqno, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(lsa.Seqno)))
	for _, ld := range lsa.Links {
		var lb []byte
		lb = appendString(lb, fieldLinkID, string(ld.LinkID))
		lb = protowire.AppendTag(lb, fieldLinkPort, protowire.VarintType)
		lb = protowire.AppendVarint(lb, protowire.EncodeZigZag(int64(ld.Port)))

		b = protowire.AppendTag(b, fieldLSALink, protowire.BytesType)
		b = protowire.AppendBytes(b, lb)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a packet produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*state.Packet, error) {
	pkt := &state.Packet{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSrcProcess && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return n, nil
			}
			ap, err := netip.ParseAddrPort(v)
			if err != nil {
				return 0, fmt.Errorf("%w: source process %q: %w", ErrMalformed, v, err)
			}
			pkt.SrcProcessAddr = ap
			return n, nil
		case num == fieldSrcAddr && typ == protowire.BytesType:
			return consumeAddr(b, &pkt.SrcAddr)
		case num == fieldDstAddr && typ == protowire.BytesType:
			return consumeAddr(b, &pkt.DstAddr)
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			pkt.Type = state.PacketType(v)
			return n, nil
		case num == fieldRouterID && typ == protowire.BytesType:
			return consumeAddr(b, &pkt.RouterID)
		case num == fieldNeighbor && typ == protowire.BytesType:
			return consumeAddr(b, &pkt.Neighbor)
		case num == fieldLSA && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			lsa, err := unmarshalLSA(v)
			if err != nil {
				return 0, err
			}
			pkt.LSAs = append(pkt.LSAs, *lsa)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

func unmarshalLSA(b []byte) (*state.LSA, error) {
	lsa := &state.LSA{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldLSAOrigin && typ == protowire.BytesType:
			return consumeAddr(b, &lsa.Origin)
		case num == fieldLSASeqno && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			lsa.Seqno = int32(protowire.DecodeZigZag(v))
			return n, nil
		case num == fieldLSALink && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ld, err := unmarshalLink(v)
			if err != nil {
				return 0, err
			}
			lsa.Links = append(lsa.Links, ld)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	if lsa.Origin == "" {
		return nil, fmt.Errorf("%w: lsa without origin", ErrMalformed)
	}
	return lsa, nil
}

func unmarshalLink(b []byte) (state.LinkDescription, error) {
	var ld state.LinkDescription
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldLinkID && typ == protowire.BytesType:
			return consumeAddr(b, &ld.LinkID)
		case num == fieldLinkPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ld.Port = int(protowire.DecodeZigZag(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return ld, err
}

func consumeAddr(b []byte, dst *state.Addr) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = state.Addr(v)
	}
	return n, nil
}

// walk calls fn for every field of a message. fn returns how many bytes of the field value it consumed, or a negative protowire error code.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}
