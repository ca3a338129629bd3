package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/encodeous/sospf/core"
	"github.com/encodeous/sospf/state"
	"github.com/olekukonko/tablewriter"
)

var (
	ErrUsage   = errors.New("usage")
	ErrUnknown = errors.New("unknown command")
)

const usage = `commands:
  attach <ip> <port> <simIP>    send an attach request
  connect <ip> <port> <simIP>   attach, wait for the answer and start
  start                         exchange hellos with attached routers
  disconnect <simIP>            remove the link to a router
  detect <simIP>                print the shortest path to a router
  neighbors                     print routers with an established adjacency
  ports                         print the port table
  lsd                           print the link state database
  routes                        print the forwarding table
  Y / N                         accept or reject the oldest attach request
  quit                          leave the network and exit`

// Console maps operator lines to router operations.
type Console struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Run reads commands until quit, end of input, or ctx ends. End of input leaves the network like quit.
func (c *Console) Run(ctx context.Context, r *core.Router) error {
	r.OnAttachRequest(func(req *core.AttachRequest) {
		c.printf("\nreceived HELLO from %s;\nDo you accept this request?(Y/N)\n>> ", req.Peer.Addr)
	})

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.printf(">> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return r.Quit(ctx)
			}
			quit, err := c.Execute(ctx, r, line)
			if err != nil {
				c.printf("%s\n", describe(err))
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line. quit is true once the router has left the network.
func (c *Console) Execute(ctx context.Context, r *core.Router, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "attach":
		ep, addr, err := parseTarget(args)
		if err != nil {
			return false, err
		}
		pend, err := r.Attach(ctx, ep, addr)
		if err != nil {
			return false, err
		}
		c.printf("attach request sent to %s\n", addr)
		go c.await(ctx, pend)
	case "connect":
		ep, addr, err := parseTarget(args)
		if err != nil {
			return false, err
		}
		err = r.Connect(ctx, ep, addr)
		if err != nil {
			return false, err
		}
		c.printf("The request has been accepted.\n")
	case "start":
		return false, r.Start(ctx)
	case "disconnect":
		addr, err := parseAddr(args, "disconnect <simIP>")
		if err != nil {
			return false, err
		}
		return false, r.Disconnect(ctx, addr)
	case "detect":
		addr, err := parseAddr(args, "detect <simIP>")
		if err != nil {
			return false, err
		}
		if addr == r.Self().Addr {
			return false, core.ErrSelfAttach
		}
		path, err := r.Detect(addr)
		if err != nil {
			return false, err
		}
		parts := make([]string, 0, len(path))
		for _, p := range path {
			parts = append(parts, string(p))
		}
		c.printf("%s\n", strings.Join(parts, " -> "))
	case "neighbors":
		rows := make([][]string, 0)
		for _, n := range r.Neighbors() {
			rows = append(rows, []string{strconv.Itoa(n.Port), n.Peer.Endpoint().String(), string(n.Peer.Addr)})
		}
		c.table([]string{"Port", "Process", "IP address"}, rows)
	case "ports":
		rows := make([][]string, 0)
		for _, pl := range r.Ports() {
			rows = append(rows, []string{strconv.Itoa(pl.Port), string(pl.Remote.Addr), pl.Remote.Endpoint().String(), pl.Remote.Status().String()})
		}
		c.table([]string{"Port", "IP address", "Process", "Status"}, rows)
	case "lsd":
		rows := make([][]string, 0)
		for _, lsa := range r.LSAs() {
			links := make([]string, 0, len(lsa.Links))
			for _, ld := range lsa.Links {
				links = append(links, ld.String())
			}
			rows = append(rows, []string{string(lsa.Origin), strconv.FormatInt(int64(lsa.Seqno), 10), strings.Join(links, " ")})
		}
		c.table([]string{"Origin", "Seqno", "Links"}, rows)
	case "routes":
		rows := make([][]string, 0)
		for _, rt := range r.Routes().Routes() {
			rows = append(rows, []string{string(rt.Dest), string(rt.NextHop), strconv.Itoa(rt.Port), strconv.Itoa(rt.Hops)})
		}
		c.table([]string{"Destination", "Next hop", "Port", "Hops"}, rows)
	case "y", "n":
		addr, ok := r.OldestRequest()
		if !ok {
			return false, core.ErrNoRequest
		}
		if strings.EqualFold(fields[0], "y") {
			err = r.Accept(ctx, addr)
			if err == nil {
				c.printf("The request has been accepted.\n")
			}
			return false, err
		}
		err = r.Reject(ctx, addr)
		if err == nil {
			c.printf("The request has been rejected.\n")
		}
		return false, err
	case "quit":
		return true, r.Quit(ctx)
	case "help", "?":
		c.printf("%s\n", usage)
	default:
		return false, fmt.Errorf("%w %q, try help", ErrUnknown, fields[0])
	}
	return false, nil
}

// await reports the answer to an attach request sent without waiting.
func (c *Console) await(ctx context.Context, pend *core.Pending) {
	select {
	case <-pend.Done():
	case <-ctx.Done():
		return
	}
	err := pend.Wait(ctx)
	if err != nil {
		c.printf("\n%s\n>> ", describe(err))
		return
	}
	c.printf("\nThe request has been accepted.\n>> ")
}

func (c *Console) table(header []string, rows [][]string) {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
	c.printf("%s", buf.String())
}

// describe turns errors into the messages operators know.
func describe(err error) string {
	switch {
	case errors.Is(err, core.ErrNoPath):
		return "No path found"
	case errors.Is(err, core.ErrSelfAttach):
		return "The destination IP matches the router's own IP."
	case errors.Is(err, core.ErrNotStarted):
		return "You cannot start the router before a successful attachment!"
	case errors.Is(err, core.ErrRejected):
		return "The request has been rejected."
	}
	return err.Error()
}

func parseTarget(args []string) (netip.AddrPort, state.Addr, error) {
	if len(args) != 3 {
		return netip.AddrPort{}, "", fmt.Errorf("%w: <ip> <port> <simIP>", ErrUsage)
	}
	host := args[0]
	if strings.EqualFold(host, "localhost") {
		host = "127.0.0.1"
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, "", fmt.Errorf("invalid process ip: %w", err)
	}
	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return netip.AddrPort{}, "", fmt.Errorf("invalid process port: %w", err)
	}
	addr, err := parseAddr(args[2:], "<simIP>")
	if err != nil {
		return netip.AddrPort{}, "", err
	}
	return netip.AddrPortFrom(ip, uint16(port)), addr, nil
}

func parseAddr(args []string, form string) (state.Addr, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s", ErrUsage, form)
	}
	if err := state.AddrValidator(args[0]); err != nil {
		return "", err
	}
	return state.Addr(args[0]), nil
}
