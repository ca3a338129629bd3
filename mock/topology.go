package mock

import (
	"github.com/encodeous/sospf/state"
)

// LSAs builds the converged database of a network described by topology lines, see state.ParseTopology.
// Each router's links are numbered in the order they appear.
func LSAs(nodes []state.Addr, graph []string) ([]state.LSA, error) {
	pairs, err := state.ParseTopology(graph, nodes)
	if err != nil {
		return nil, err
	}
	lsas := make(map[state.Addr]*state.LSA, len(nodes))
	for _, node := range nodes {
		lsas[node] = state.NewLSA(node)
	}
	for _, pair := range pairs {
		a, b := lsas[pair.V1], lsas[pair.V2]
		lsas[pair.V1] = a.WithLink(pair.V2, len(a.Links)-1)
		lsas[pair.V2] = b.WithLink(pair.V1, len(b.Links)-1)
	}
	out := make([]state.LSA, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, *lsas[node])
	}
	return out, nil
}

// Addrs converts names to addresses.
func Addrs(names ...string) []state.Addr {
	out := make([]state.Addr, 0, len(names))
	for _, n := range names {
		out = append(out, state.Addr(n))
	}
	return out
}
