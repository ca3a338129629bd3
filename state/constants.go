package state

import (
	"math"
	"time"
)

const (
	// MaxPorts is the default number of port slots a router owns.
	MaxPorts = 4
	// NoPort marks the self-loop link description of a router's own LSA.
	NoPort = -1
	// RejectNeighbor is carried in the neighbor field of a Hello that refuses an attach request.
	RejectNeighbor Addr = "-1"
	// InitialSeqno is the first sequence number a router stamps on its own LSA.
	InitialSeqno int32 = math.MinInt32 + 1

	MaxPacketSize = 1 << 20
)

var (
	AttachTimeout  = 30 * time.Second
	RequestTimeout = 60 * time.Second
	SendTimeout    = 5 * time.Second

	// DefaultPort is the process port `init` writes when none is given
	DefaultPort uint16 = 57190
)
