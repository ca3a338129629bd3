package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/sospf/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message != msg || len(event.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(event.Args[i], arg) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

type delivery struct {
	to  netip.AddrPort
	pkt *state.Packet
}

var errUnreachable = errors.New("unreachable")

// Switchboard is an in-memory network. Sent packets are queued and only delivered by Pump, so tests control every step.
type Switchboard struct {
	mu      sync.Mutex
	routers map[netip.AddrPort]*Router
	queue   []delivery
	events  HarnessEvents
	closers []func()
	// Drop discards matching packets instead of queueing them
	Drop func(to netip.AddrPort, pkt *state.Packet) bool
}

func NewSwitchboard() *Switchboard {
	return &Switchboard{routers: make(map[netip.AddrPort]*Router)}
}

func (s *Switchboard) Send(ctx context.Context, to netip.AddrPort, pkt *state.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routers[to]; !ok {
		return fmt.Errorf("%w: %s", errUnreachable, to)
	}
	if s.Drop != nil && s.Drop(to, pkt) {
		return nil
	}
	s.queue = append(s.queue, delivery{to, pkt})
	return nil
}

// Pump delivers queued packets, including the ones sent while delivering, until the network is quiet.
// It returns how many packets were delivered.
func (s *Switchboard) Pump(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		d := s.queue[0]
		s.queue = s.queue[1:]
		r := s.routers[d.to]
		s.events = append(s.events, MakeEvent(d.pkt.Type.String(), d.pkt.SrcAddr, d.pkt.DstAddr, d.pkt.Neighbor))
		s.mu.Unlock()

		require.NoError(t, r.Handle(context.Background(), d.pkt))
		n++
		if n > 10000 {
			t.Fatal("network did not settle")
		}
	}
}

// Events returns and clears the packets delivered so far.
func (s *Switchboard) Events() HarnessEvents {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.events
	s.events = nil
	return ev
}

func (s *Switchboard) NewRouter(t *testing.T, addr state.Addr, port uint16, opts ...func(cfg *state.LocalCfg)) *Router {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	env := &state.Env{
		LocalCfg: state.LocalCfg{
			Id:             addr,
			Bind:           netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port),
			AttachTimeout:  time.Second,
			RequestTimeout: time.Minute,
		},
		Context: ctx,
		Cancel:  cancel,
		Log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&env.LocalCfg)
	}
	r := NewRouter(env, s)
	s.mu.Lock()
	s.routers[env.Endpoint()] = r
	s.mu.Unlock()
	s.closers = append(s.closers, func() {
		r.Close()
		cancel(nil)
	})
	return r
}

// Close stops every router created on the switchboard.
func (s *Switchboard) Close() {
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
}

// PumpUntil keeps delivering packets until cond holds. Other goroutines may be sending meanwhile.
func (s *Switchboard) PumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Pump(t)
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Attach runs the attach handshake from a to b with b accepting.
func (s *Switchboard) Attach(t *testing.T, a, b *Router) {
	t.Helper()
	ctx := context.Background()
	pend, err := a.Attach(ctx, b.Self().Endpoint(), b.Self().Addr)
	require.NoError(t, err)
	s.Pump(t)
	require.NoError(t, b.Accept(ctx, a.Self().Addr))
	s.Pump(t)
	select {
	case <-pend.Done():
		require.NoError(t, pend.Wait(ctx))
	default:
		t.Fatal("attach did not resolve")
	}
}

// Link attaches a to b and starts the adjacency.
func (s *Switchboard) Link(t *testing.T, a, b *Router) {
	t.Helper()
	s.Attach(t, a, b)
	require.NoError(t, a.Start(context.Background()))
	s.Pump(t)
}

func netipPort(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}
