package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/encodeous/sospf/perf"
	"github.com/encodeous/sospf/state"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler processes one received packet. Returning an error ends the connection it arrived on.
type Handler func(ctx context.Context, pkt *state.Packet) error

// Listener accepts connections from other routers. Every connection is served on its own goroutine.
type Listener struct {
	ln  net.Listener
	log *slog.Logger

	mu     sync.Mutex
	conns  map[uuid.UUID]net.Conn
	closed bool
}

func Listen(bind netip.AddrPort, log *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", bind.String())
	if err != nil {
		return nil, err
	}
	return &Listener{
		ln:    ln,
		log:   log,
		conns: make(map[uuid.UUID]net.Conn),
	}, nil
}

// Addr is the bound endpoint, useful when listening on port 0.
func (l *Listener) Addr() netip.AddrPort {
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.AddrPort()
	}
	return netip.MustParseAddrPort(l.ln.Addr().String())
}

// Serve accepts until ctx is cancelled, then closes the listener and every live connection and waits for them to finish.
func (l *Listener) Serve(ctx context.Context, h Handler) error {
	var g errgroup.Group
	stop := context.AfterFunc(ctx, l.shutdown)
	defer stop()

	var err error
	for {
		conn, aerr := l.ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil || errors.Is(aerr, net.ErrClosed) {
				break
			}
			l.log.Warn("accept failed", "error", aerr)
			err = aerr
			break
		}
		id := uuid.New()
		if !l.track(id, conn) {
			_ = conn.Close()
			break
		}
		g.Go(func() error {
			defer l.untrack(id)
			l.serveConn(ctx, id, conn, h)
			return nil
		})
	}
	l.shutdown()
	_ = g.Wait()
	return err
}

func (l *Listener) serveConn(ctx context.Context, id uuid.UUID, conn net.Conn, h Handler) {
	defer conn.Close()
	log := l.log.With("conn", id.String(), "remote", conn.RemoteAddr().String())
	for ctx.Err() == nil {
		pkt, err := ReadPacket(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Warn("failed to receive packet", "error", err)
			}
			return
		}
		perf.PacketsReceived.Add(1)
		start := time.Now()
		err = h(ctx, pkt)
		perf.HandleLatency.Add(float64(time.Since(start).Microseconds()))
		if err != nil {
			log.Warn("closing connection", "error", err)
			return
		}
	}
}

func (l *Listener) track(id uuid.UUID, conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[id] = conn
	return true
}

func (l *Listener) untrack(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, id)
}

func (l *Listener) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	_ = l.ln.Close()
	for _, conn := range l.conns {
		_ = conn.Close()
	}
}

// Dialer sends every packet over a fresh connection.
type Dialer struct {
	Timeout time.Duration
	d       net.Dialer
}

func NewDialer() *Dialer {
	return &Dialer{Timeout: state.SendTimeout}
}

func (d *Dialer) Send(ctx context.Context, to netip.AddrPort, pkt *state.Packet) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	conn, err := d.d.DialContext(ctx, "tcp", to.String())
	if err != nil {
		perf.SendFailures.Add(1)
		return fmt.Errorf("dial %s: %w", to, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	err = WritePacket(conn, pkt)
	if err != nil {
		perf.SendFailures.Add(1)
		return fmt.Errorf("send to %s: %w", to, err)
	}
	perf.PacketsSent.Add(1)
	return nil
}

// Close stops the listener without waiting for Serve.
func (l *Listener) Close() {
	l.shutdown()
}
