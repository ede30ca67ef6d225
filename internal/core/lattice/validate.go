package lattice

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Validate checks the graph against the subset order. Every edge must point
// to a strict superset with no node strictly between, every node but the root
// must have a parent, and every superset of a node must be reachable from it.
// Cost is quadratic in the node count; meant for tests and debug builds.
func (l *Lattice[T]) Validate() error {
	var nodes []*Node[T]
	l.Walk(func(n *Node[T]) bool {
		nodes = append(nodes, n)
		return true
	})

	if len(l.root.parents) != 0 {
		return eris.New("lattice: root has parents")
	}

	for _, n := range nodes {
		if n != l.root && len(n.parents) == 0 {
			return eris.Errorf("lattice: node %s is detached", n)
		}
		for _, c := range n.children {
			if c.arch.Len() <= n.arch.Len() || !c.arch.IsSupersetOf(n.arch) {
				return eris.Errorf("lattice: child %s is not a strict superset of %s", c, n)
			}
			if !slices.Contains(c.parents, n) {
				return eris.Errorf("lattice: edge %s -> %s missing back link", n, c)
			}
			for _, z := range nodes {
				if z == n || z == c {
					continue
				}
				if z.arch.IsSupersetOf(n.arch) && z.arch.IsSubsetOf(c.arch) {
					return eris.Errorf("lattice: edge %s -> %s skips %s", n, c, z)
				}
			}
		}
	}

	for _, n := range nodes {
		reach := l.reachable(n)
		for _, m := range nodes {
			if m == n || !m.arch.IsSupersetOf(n.arch) {
				continue
			}
			if _, ok := reach[m]; !ok {
				return eris.Errorf("lattice: superset %s unreachable from %s", m, n)
			}
		}
	}
	return nil
}

func (l *Lattice[T]) reachable(from *Node[T]) map[*Node[T]]struct{} {
	seen := make(map[*Node[T]]struct{})
	stack := append([]*Node[T](nil), from.children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		stack = append(stack, n.children...)
	}
	return seen
}

// NodeInfo is a serialisable view of one node.
type NodeInfo struct {
	Archetype []string   `json:"archetype"`
	Entities  int        `json:"entities"`
	Pinned    bool       `json:"pinned"`
	Children  [][]string `json:"children,omitempty"`
}

// Snapshot describes every node, root first.
func (l *Lattice[T]) Snapshot() []NodeInfo {
	out := make([]NodeInfo, 0, l.nodes.Len())
	l.Walk(func(n *Node[T]) bool {
		info := NodeInfo{
			Archetype: n.arch.Names(),
			Entities:  n.entities.Len(),
			Pinned:    n.Pinned(),
		}
		for _, c := range n.children {
			info.Children = append(info.Children, c.arch.Names())
		}
		slices.SortFunc(info.Children, func(a, b []string) int { return slices.Compare(a, b) })
		out = append(out, info)
		return true
	})
	return out
}
