//go:build integration

package integration

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/encodeous/sospf/transport"
	"github.com/encodeous/tint"
)

type Signal chan bool

func NewSignal() Signal {
	return make(chan bool)
}
func (s Signal) Trigger() {
	select {
	case <-s:
	default:
		close(s)
	}
}
func (s Signal) Triggered() bool {
	select {
	case <-s:
		return true
	default:
		return false
	}
}
func (s Signal) Wait() {
	<-s
}

// Node is a router listening on a real loopback socket.
type Node struct {
	*core.Router
	Env      *state.Env
	Listener *transport.Listener
	Requests chan *core.AttachRequest
}

// LoopbackHarness runs routers in one process, talking over TCP on 127.0.0.1.
type LoopbackHarness struct {
	Nodes map[state.Addr]*Node
	// AutoAccept answers every inbound attach request with Y.
	AutoAccept bool
	wg         sync.WaitGroup
	errs       chan error
}

func NewLoopbackHarness() *LoopbackHarness {
	return &LoopbackHarness{
		Nodes:      make(map[state.Addr]*Node),
		AutoAccept: true,
		errs:       make(chan error, 16),
	}
}

func (h *LoopbackHarness) NewNode(t *testing.T, addr state.Addr) *Node {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:        slog.LevelDebug,
		CustomPrefix: string(addr),
	}))

	ln, err := transport.Listen(netip.MustParseAddrPort("127.0.0.1:0"), logger)
	if err != nil {
		cancel(err)
		t.Fatal(err)
	}
	env := &state.Env{
		LocalCfg: state.LocalCfg{
			Id:             addr,
			Bind:           ln.Addr(),
			AttachTimeout:  2 * time.Second,
			RequestTimeout: time.Minute,
		},
		Context: ctx,
		Cancel:  cancel,
		Log:     logger,
	}
	n := &Node{
		Router:   core.NewRouter(env, transport.NewDialer()),
		Env:      env,
		Listener: ln,
		Requests: make(chan *core.AttachRequest, 16),
	}
	n.OnAttachRequest(func(req *core.AttachRequest) {
		if !h.AutoAccept {
			n.Requests <- req
			return
		}
		// the hook runs on the receive path, answer off of it
		go func() {
			_ = n.Accept(ctx, req.Peer.Addr)
		}()
	})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := ln.Serve(ctx, n.Handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.errs <- err
		}
	}()
	h.Nodes[addr] = n
	return n
}

// Connect attaches a to b and starts the adjacency from a.
func (h *LoopbackHarness) Connect(t *testing.T, a, b *Node) {
	t.Helper()
	err := a.Connect(a.Env.Context, b.Env.Endpoint(), b.Env.Id)
	if err != nil {
		t.Fatalf("connect %s -> %s: %v", a.Env.Id, b.Env.Id, err)
	}
}

// Eventually polls cond until it holds or the deadline passes.
func (h *LoopbackHarness) Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		select {
		case err := <-h.errs:
			t.Fatal(err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Stop cancels every node and waits for its listener to drain.
func (h *LoopbackHarness) Stop() {
	for _, n := range h.Nodes {
		n.Env.Cancel(context.Canceled)
	}
	h.wg.Wait()
	for _, n := range h.Nodes {
		n.Close()
	}
}
