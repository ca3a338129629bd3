//go:build integration

package integration

import (
	"slices"
	"testing"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func addrs(path []state.Addr) []string {
	out := make([]string, 0, len(path))
	for _, a := range path {
		out = append(out, string(a))
	}
	return out
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := NewLoopbackHarness()
	h.NewNode(t, "10.0.0.1")
	h.NewNode(t, "10.0.0.2")
	h.Stop()
}

func TestChainOverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := NewLoopbackHarness()
	defer h.Stop()

	a := h.NewNode(t, "10.0.0.1")
	b := h.NewNode(t, "10.0.0.2")
	c := h.NewNode(t, "10.0.0.3")

	h.Connect(t, a, b)
	h.Connect(t, b, c)

	h.Eventually(t, func() bool {
		path, err := a.Detect("10.0.0.3")
		return err == nil && len(path) == 3
	})
	path, err := a.Detect("10.0.0.3")
	assert.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, addrs(path))

	route, ok := a.Routes().Lookup("10.0.0.3")
	assert.True(t, ok)
	assert.Equal(t, state.Addr("10.0.0.2"), route.NextHop)
	assert.Equal(t, 2, route.Hops)

	err = b.Disconnect(b.Env.Context, "10.0.0.3")
	assert.NoError(t, err)
	h.Eventually(t, func() bool {
		_, err := a.Detect("10.0.0.3")
		return err != nil
	})
	_, err = a.Detect("10.0.0.3")
	assert.ErrorIs(t, err, core.ErrNoPath)
}

func TestManualRejectOverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := NewLoopbackHarness()
	h.AutoAccept = false
	defer h.Stop()

	a := h.NewNode(t, "10.0.0.1")
	b := h.NewNode(t, "10.0.0.2")

	pend, err := a.Attach(a.Env.Context, b.Env.Endpoint(), b.Env.Id)
	assert.NoError(t, err)

	req := <-b.Requests
	assert.Equal(t, state.Addr("10.0.0.1"), req.Peer.Addr)
	assert.NoError(t, b.Reject(b.Env.Context, req.Peer.Addr))

	assert.ErrorIs(t, pend.Wait(a.Env.Context), core.ErrRejected)
	assert.Empty(t, a.Ports())
	assert.Empty(t, b.Ports())
}

func TestRingReroutesOverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := NewLoopbackHarness()
	defer h.Stop()

	nodes := make([]*Node, 0, 4)
	for _, addr := range []state.Addr{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		nodes = append(nodes, h.NewNode(t, addr))
	}
	for i := range nodes {
		h.Connect(t, nodes[i], nodes[(i+1)%len(nodes)])
	}

	a := nodes[0]
	h.Eventually(t, func() bool {
		return len(a.LSAs()) == 4 && len(a.Routes().Routes()) == 3
	})
	route, ok := a.Routes().Lookup("10.0.0.2")
	assert.True(t, ok)
	assert.Equal(t, 1, route.Hops)

	err := a.Disconnect(a.Env.Context, "10.0.0.2")
	assert.NoError(t, err)
	h.Eventually(t, func() bool {
		path, err := a.Detect("10.0.0.2")
		return err == nil && len(path) == 4
	})
	path, _ := a.Detect("10.0.0.2")
	assert.True(t, slices.Equal([]string{"10.0.0.1", "10.0.0.4", "10.0.0.3", "10.0.0.2"}, addrs(path)))
}
