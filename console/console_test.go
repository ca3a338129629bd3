package console

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// directNet hands packets straight to the receiving router.
type directNet struct {
	mu      sync.Mutex
	routers map[netip.AddrPort]*core.Router
}

func (n *directNet) Send(ctx context.Context, to netip.AddrPort, pkt *state.Packet) error {
	n.mu.Lock()
	r, ok := n.routers[to]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("unreachable %s", to)
	}
	return r.Handle(ctx, pkt)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type node struct {
	r   *core.Router
	c   *Console
	out *syncBuffer
	ctx context.Context
}

func newNode(t *testing.T, n *directNet, addr state.Addr, port uint16) *node {
	ctx, cancel := context.WithCancelCause(context.Background())
	env := &state.Env{
		LocalCfg: state.LocalCfg{
			Id:   addr,
			Bind: netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port),
		},
		Context: ctx,
		Cancel:  cancel,
		Log:     slog.New(slog.DiscardHandler),
	}
	r := core.NewRouter(env, n)
	n.mu.Lock()
	if n.routers == nil {
		n.routers = make(map[netip.AddrPort]*core.Router)
	}
	n.routers[env.Endpoint()] = r
	n.mu.Unlock()
	out := &syncBuffer{}
	return &node{r: r, c: New(strings.NewReader(""), out), out: out, ctx: ctx}
}

func (n *node) exec(t *testing.T, line string) {
	t.Helper()
	quit, err := n.c.Execute(n.ctx, n.r, line)
	require.NoError(t, err, line)
	assert.False(t, quit)
}

func TestConsoleSession(t *testing.T) {
	defer goleak.VerifyNone(t)
	net := &directNet{}
	a := newNode(t, net, "10.0.0.1", 1001)
	b := newNode(t, net, "10.0.0.2", 1002)
	defer a.r.Close()
	defer b.r.Close()

	var asked sync.WaitGroup
	asked.Add(1)
	b.r.OnAttachRequest(func(req *core.AttachRequest) {
		asked.Done()
	})

	a.exec(t, "attach 127.0.0.1 1002 10.0.0.2")
	asked.Wait()
	b.exec(t, "Y")
	assert.Contains(t, b.out.String(), "The request has been accepted.")
	require.Eventually(t, func() bool {
		return strings.Contains(a.out.String(), "The request has been accepted.")
	}, 2*time.Second, 10*time.Millisecond)

	a.exec(t, "start")
	a.exec(t, "neighbors")
	assert.Contains(t, a.out.String(), "10.0.0.2")
	assert.Contains(t, a.out.String(), "127.0.0.1:1002")

	a.exec(t, "detect 10.0.0.2")
	assert.Contains(t, a.out.String(), "10.0.0.1 -> 10.0.0.2")

	b.exec(t, "lsd")
	assert.Contains(t, b.out.String(), "(10.0.0.1,-1) (10.0.0.2,0)")

	a.exec(t, "routes")
	assert.Contains(t, a.out.String(), "Next hop")

	a.exec(t, "disconnect 10.0.0.2")
	assert.Empty(t, a.r.Ports())
	assert.Empty(t, b.r.Ports())
}

func TestConsoleErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	net := &directNet{}
	a := newNode(t, net, "10.0.0.1", 1001)
	defer a.r.Close()

	cases := map[string]error{
		"attach 127.0.0.1 1002":           ErrUsage,
		"connect 127.0.0.1 1002 10.0.0.1": core.ErrSelfAttach,
		"start":                           core.ErrNotStarted,
		"detect 10.0.0.9":                 core.ErrNoPath,
		"detect 10.0.0.1":                 core.ErrSelfAttach,
		"disconnect 10.0.0.9":             core.ErrNotAttached,
		"y":                               core.ErrNoRequest,
		"frobnicate":                      ErrUnknown,
	}
	for line, want := range cases {
		_, err := a.c.Execute(a.ctx, a.r, line)
		assert.ErrorIs(t, err, want, line)
	}

	_, err := a.c.Execute(a.ctx, a.r, "attach 127.0.0.1 99999 10.0.0.2")
	assert.Error(t, err)
	_, err = a.c.Execute(a.ctx, a.r, "detect not-an-ip")
	assert.Error(t, err)

	assert.Equal(t, "No path found", describe(core.ErrNoPath))
	assert.Equal(t, "You cannot start the router before a successful attachment!", describe(core.ErrNotStarted))
}

func TestConsoleRunQuit(t *testing.T) {
	defer goleak.VerifyNone(t)
	net := &directNet{}
	a := newNode(t, net, "10.0.0.1", 1001)
	defer a.r.Close()
	out := &syncBuffer{}
	c := New(strings.NewReader("help\n\nbogus\nquit\n"), out)

	require.NoError(t, c.Run(a.ctx, a.r))
	assert.Contains(t, out.String(), "connect <ip> <port> <simIP>")
	assert.Contains(t, out.String(), `unknown command "bogus"`)
	assert.ErrorIs(t, context.Cause(a.ctx), core.ErrQuit)
}

func TestConsoleRunEOFQuits(t *testing.T) {
	defer goleak.VerifyNone(t)
	net := &directNet{}
	a := newNode(t, net, "10.0.0.1", 1001)
	defer a.r.Close()

	require.NoError(t, New(strings.NewReader("neighbors\n"), &syncBuffer{}).Run(a.ctx, a.r))
	assert.ErrorIs(t, context.Cause(a.ctx), core.ErrQuit)
}
