package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/encodeous/sospf/state"
)

var (
	ErrPacketSize = errors.New("packet size is invalid")
)

// ReadPacket reads one length-prefixed packet
func ReadPacket(r io.Reader) (*state.Packet, error) {
	var length uint32

	err := binary.Read(r, binary.BigEndian, &length)
	if err != nil {
		return nil, err
	}

	if length == 0 || length > state.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketSize, length)
	}

	data := make([]byte, length)

	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, err
	}

	return Unmarshal(data)
}

// WritePacket writes one length-prefixed packet
func WritePacket(w io.Writer, pkt *state.Packet) error {
	out := Marshal(pkt)

	if len(out) == 0 || len(out) > state.MaxPacketSize {
		return fmt.Errorf("%w: %d bytes", ErrPacketSize, len(out))
	}

	buf := make([]byte, 4, 4+len(out))
	binary.BigEndian.PutUint32(buf, uint32(len(out)))
	_, err := w.Write(append(buf, out...))
	return err
}
