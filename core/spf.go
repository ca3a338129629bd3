package core

import (
	"container/heap"
	"errors"
	"slices"
	"strings"

	"github.com/encodeous/sospf/state"
	"github.com/gaissmai/bart"
)

var (
	ErrNoPath = errors.New("no path found")
)

type spfItem struct {
	addr  state.Addr
	dist  int
	order int
}

type spfQueue []spfItem

func (q spfQueue) Len() int { return len(q) }
func (q spfQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].order < q[j].order
}
func (q spfQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *spfQueue) Push(x any)   { *q = append(*q, x.(spfItem)) }
func (q *spfQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// spfTree is a shortest path tree rooted at the local router.
type spfTree struct {
	source state.Addr
	dist   map[state.Addr]int
	prev   map[state.Addr]state.Addr
}

// computeSPF runs Dijkstra over the adjacencies advertised in lsas. Every link costs 1 and
// among equal-cost paths the one discovered first wins.
func computeSPF(source state.Addr, lsas map[state.Addr]*state.LSA) spfTree {
	t := spfTree{
		source: source,
		dist:   map[state.Addr]int{source: 0},
		prev:   make(map[state.Addr]state.Addr),
	}
	done := make(map[state.Addr]bool)
	order := 0
	q := &spfQueue{{addr: source}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(spfItem)
		if done[cur.addr] {
			continue
		}
		done[cur.addr] = true
		lsa, ok := lsas[cur.addr]
		if !ok {
			// known only from other LSAs, nothing to expand
			continue
		}
		for _, ld := range lsa.Links {
			if ld.LinkID == cur.addr || done[ld.LinkID] {
				continue
			}
			nd := cur.dist + 1
			if d, ok := t.dist[ld.LinkID]; ok && d <= nd {
				continue
			}
			order++
			t.dist[ld.LinkID] = nd
			t.prev[ld.LinkID] = cur.addr
			heap.Push(q, spfItem{addr: ld.LinkID, dist: nd, order: order})
		}
	}
	return t
}

func (t spfTree) path(dst state.Addr) ([]state.Addr, error) {
	if _, ok := t.dist[dst]; !ok {
		return nil, ErrNoPath
	}
	path := []state.Addr{dst}
	for cur := dst; cur != t.source; {
		cur = t.prev[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path, nil
}

// ShortestPath returns the routers on the shortest path from the local router to dst, both included.
func (d *LinkStateDatabase) ShortestPath(dst state.Addr) ([]state.Addr, error) {
	return computeSPF(d.self, d.snapshot()).path(dst)
}

// Route is the forwarding decision for one destination.
type Route struct {
	Dest    state.Addr
	NextHop state.Addr
	Port    int
	Hops    int
}

// ForwardingTable maps destination addresses to the neighbor packets should be handed to.
type ForwardingTable struct {
	tbl    bart.Table[Route]
	routes []Route
}

// Lookup finds the route covering addr.
func (f *ForwardingTable) Lookup(addr state.Addr) (Route, bool) {
	pfx, ok := addr.Prefix()
	if !ok {
		return Route{}, false
	}
	return f.tbl.Lookup(pfx.Addr())
}

// Routes returns every route sorted by destination.
func (f *ForwardingTable) Routes() []Route {
	return slices.Clone(f.routes)
}

// Routes computes the forwarding table from the current database.
func (d *LinkStateDatabase) Routes() *ForwardingTable {
	lsas := d.snapshot()
	tree := computeSPF(d.self, lsas)
	own := lsas[d.self]
	f := &ForwardingTable{}
	for dst, hops := range tree.dist {
		if dst == d.self {
			continue
		}
		path, err := tree.path(dst)
		if err != nil {
			continue
		}
		r := Route{Dest: dst, NextHop: path[1], Port: state.NoPort, Hops: hops}
		if idx := slices.IndexFunc(own.Links, func(ld state.LinkDescription) bool {
			return ld.LinkID == r.NextHop
		}); idx != -1 {
			r.Port = own.Links[idx].Port
		}
		pfx, ok := dst.Prefix()
		if !ok {
			d.log.Debug("skipping route to non-ip address", "dest", dst)
			continue
		}
		f.tbl.Insert(pfx, r)
		f.routes = append(f.routes, r)
	}
	slices.SortFunc(f.routes, func(a, b Route) int {
		return strings.Compare(string(a.Dest), string(b.Dest))
	})
	return f
}
