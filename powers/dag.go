// Package powers implements the PowersDag (spec.md §3, §4.E step 1): a
// deterministic DAG describing how every power of x in [1, maxPower] is
// derived from the receiver's explicitly transmitted source powers via
// ciphertext-ciphertext multiplication.
package powers

import (
	"fmt"
	"sort"

	"github.com/markkurossi/apsi/apsierr"
)

// Node is one vertex of the DAG. Source nodes have ParentA == ParentB == 0.
type Node struct {
	Power   int
	ParentA int
	ParentB int
	Depth   int
}

// IsSource reports whether this node is one of the receiver's transmitted
// source powers.
func (n Node) IsSource() bool {
	return n.ParentA == 0 && n.ParentB == 0
}

// Dag holds every power in [1, MaxPower] reachable from SourcePowers.
type Dag struct {
	MaxPower     int
	SourcePowers []int
	nodes        map[int]Node
}

// New builds the DAG deterministically from sourcePowers and maxPower.
// sourcePowers must include 1 (spec.md §3 PSIParams invariant) or no
// power beyond the sources themselves could ever be reached, since every
// non-source node's two parents must sum to it and must already be
// reachable.
func New(sourcePowers []int, maxPower int) (*Dag, error) {
	if maxPower < 1 {
		return nil, fmt.Errorf("%w: powers dag bound must be >= 1, got %d",
			apsierr.ErrConfigInvalid, maxPower)
	}

	sources := append([]int(nil), sourcePowers...)
	sort.Ints(sources)

	hasOne := false
	nodes := make(map[int]Node, maxPower)
	for _, p := range sources {
		if p < 1 || p > maxPower {
			return nil, fmt.Errorf("%w: source power %d out of range [1,%d]",
				apsierr.ErrConfigInvalid, p, maxPower)
		}
		if p == 1 {
			hasOne = true
		}
		if _, exists := nodes[p]; !exists {
			nodes[p] = Node{Power: p, Depth: 0}
		}
	}
	if !hasOne {
		return nil, fmt.Errorf("%w: query_powers must contain 1", apsierr.ErrConfigInvalid)
	}

	for p := 2; p <= maxPower; p++ {
		if _, ok := nodes[p]; ok {
			continue
		}

		bestA, bestB, bestDepth := 0, 0, -1
		for a := 1; a <= p/2; a++ {
			b := p - a
			na, aok := nodes[a]
			nb, bok := nodes[b]
			if !aok || !bok {
				continue
			}
			depth := na.Depth
			if nb.Depth > depth {
				depth = nb.Depth
			}
			depth++
			if bestDepth == -1 || depth < bestDepth {
				bestA, bestB, bestDepth = a, b, depth
			}
		}
		if bestDepth == -1 {
			return nil, fmt.Errorf("%w: power %d is unreachable from the configured source powers",
				apsierr.ErrConfigInvalid, p)
		}
		nodes[p] = Node{Power: p, ParentA: bestA, ParentB: bestB, Depth: bestDepth}
	}

	return &Dag{MaxPower: maxPower, SourcePowers: sources, nodes: nodes}, nil
}

// Node returns the node for a given power and whether it exists.
func (d *Dag) Node(power int) (Node, bool) {
	n, ok := d.nodes[power]
	return n, ok
}

// TopologicalLayers groups non-source nodes into layers such that every
// node's parents appear in a strictly earlier layer, enabling the query
// engine to compute independent nodes within a layer in parallel
// (spec.md §4.E: "independent nodes may run in parallel").
func (d *Dag) TopologicalLayers() [][]int {
	byDepth := make(map[int][]int)
	maxDepth := 0
	for p := 1; p <= d.MaxPower; p++ {
		n := d.nodes[p]
		if n.IsSource() {
			continue
		}
		byDepth[n.Depth] = append(byDepth[n.Depth], p)
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}

	var layers [][]int
	for depth := 1; depth <= maxDepth; depth++ {
		powersAtDepth := byDepth[depth]
		sort.Ints(powersAtDepth)
		if len(powersAtDepth) > 0 {
			layers = append(layers, powersAtDepth)
		}
	}
	return layers
}

// MaxDepth returns the deepest non-source node's depth.
func (d *Dag) MaxDepth() int {
	max := 0
	for _, n := range d.nodes {
		if n.Depth > max {
			max = n.Depth
		}
	}
	return max
}
