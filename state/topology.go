package state

import (
	"fmt"
	"slices"
	"strings"
)

// ParseTopology reads link lines of the form "a, b, c". Every router on a line is linked to every other router on that line.
// All names must appear in nodes.
func ParseTopology(graph []string, nodes []Addr) ([]Pair[Addr, Addr], error) {
	pairings := make([]Pair[Addr, Addr], 0)
	for _, line := range graph {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names := make([]Addr, 0)
		for _, field := range strings.Split(line, ",") {
			name := Addr(strings.TrimSpace(field))
			if name == "" {
				continue
			}
			if !slices.Contains(nodes, name) {
				return nil, fmt.Errorf("unknown router %q in %q", name, line)
			}
			names = append(names, name)
		}
		if len(names) < 2 {
			return nil, fmt.Errorf("invalid pairing, %v", names)
		}
		for i, a := range names {
			for _, b := range names[i+1:] {
				if a != b {
					pairings = append(pairings, MakeSortedPair(a, b))
				}
			}
		}
	}
	SortPairs(pairings)
	return slices.Compact(pairings), nil
}
