// Package lattice routes archetype queries.
//
// Nodes wrap one archetype and the arena of values (entities) whose exact
// archetype equals it. Edges follow the subset order: a child's archetype is
// a strict superset of its parent's, and the graph is kept as the cover
// relation of that order over all nodes plus the empty root. Every superset of
// a node is therefore reachable from it, so "all entities with at least {A,B}"
// is a walk below the {A,B} node.
package lattice

import (
	"github.com/l1jgo/infinity/internal/core/arena"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/assert"
)

// Node is one archetype in the lattice.
type Node[T any] struct {
	arch     archetype.Archetype
	handle   arena.Handle
	entities *arena.Arena[T]
	parents  []*Node[T]
	children []*Node[T]
	pins     int
}

func (n *Node[T]) Archetype() archetype.Archetype { return n.arch }

// Entities is the arena holding everything whose exact archetype is this node's.
func (n *Node[T]) Entities() *arena.Arena[T] { return n.entities }

func (n *Node[T]) Parents() []*Node[T]  { return n.parents }
func (n *Node[T]) Children() []*Node[T] { return n.children }

func (n *Node[T]) IsRoot() bool { return n.arch.IsEmpty() }

// Pin marks the node as in use by a query, independent of its population.
func (n *Node[T]) Pin() { n.pins++ }

func (n *Node[T]) Unpin() {
	assert.That(n.pins > 0, "lattice: unpin of unpinned node %s", n.arch)
	n.pins--
}

func (n *Node[T]) Pinned() bool { return n.pins > 0 }

func (n *Node[T]) String() string { return n.arch.String() }

// Lattice is the archetype graph. Mutation is single-threaded; concurrent
// Query/Find calls are safe while no mutation runs.
type Lattice[T any] struct {
	nodes      *arena.Arena[Node[T]]
	root       *Node[T]
	index      map[archetype.ID][]*Node[T]
	bucketSize int
	version    uint64
}

// New creates a lattice holding only the root. bucketSize sizes each node's
// entity arena.
func New[T any](bucketSize int) *Lattice[T] {
	l := &Lattice[T]{
		nodes:      arena.New[Node[T]](64),
		index:      make(map[archetype.ID][]*Node[T], 64),
		bucketSize: bucketSize,
	}
	l.root = l.newNode(archetype.Empty())
	return l
}

func (l *Lattice[T]) newNode(a archetype.Archetype) *Node[T] {
	h, n := l.nodes.Emplace()
	*n = Node[T]{
		arch:     a,
		handle:   h,
		entities: arena.New[T](l.bucketSize),
	}
	l.index[a.ID()] = append(l.index[a.ID()], n)
	return n
}

func (l *Lattice[T]) Root() *Node[T] { return l.root }

// Len is the number of nodes, root excluded.
func (l *Lattice[T]) Len() int { return l.nodes.Len() - 1 }

// Version changes whenever a node is inserted or removed.
func (l *Lattice[T]) Version() uint64 { return l.version }

// Find returns the node for exactly a, or nil.
func (l *Lattice[T]) Find(a archetype.Archetype) *Node[T] {
	for _, n := range l.index[a.ID()] {
		if n.arch.Equal(a) {
			return n
		}
	}
	return nil
}

// Insert adds a node for a and returns it. Inserting an archetype that is
// already present returns the existing node.
func (l *Lattice[T]) Insert(a archetype.Archetype) *Node[T] {
	if n := l.Find(a); n != nil {
		return n
	}

	parents := l.maximalSubsets(a)
	children := l.minimalSupersets(a, bestMatch(a, parents))

	n := l.newNode(a)
	for _, p := range parents {
		for _, c := range children {
			unlink(p, c)
		}
		link(p, n)
	}
	for _, c := range children {
		link(n, c)
	}
	l.version++
	return n
}

// Remove splices the node for a out of the graph, reconnecting each former
// child to each former parent it now covers. The root cannot be removed and
// the node must hold no entities. Returns false if a is not present.
func (l *Lattice[T]) Remove(a archetype.Archetype) bool {
	n := l.Find(a)
	if n == nil {
		return false
	}
	assert.That(n != l.root, "lattice: cannot remove the root")
	assert.That(n.entities.Len() == 0, "lattice: removing %s with %d entities", a, n.entities.Len())

	parents := append([]*Node[T](nil), n.parents...)
	children := append([]*Node[T](nil), n.children...)
	for _, p := range parents {
		unlink(p, n)
	}
	for _, c := range children {
		unlink(n, c)
	}

	for _, p := range parents {
		for _, c := range children {
			if !coveredVia(p, c, children) {
				link(p, c)
			}
		}
	}

	bucket := l.index[a.ID()]
	for i, other := range bucket {
		if other == n {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(l.index, a.ID())
	} else {
		l.index[a.ID()] = bucket
	}

	l.nodes.Remove(n.handle)
	l.version++
	return true
}

// coveredVia reports whether some node sits strictly between p and c, looking
// at p's current children and the siblings being reattached.
func coveredVia[T any](p, c *Node[T], siblings []*Node[T]) bool {
	for _, m := range p.children {
		if m != c && m.arch.IsSubsetOf(c.arch) {
			return true
		}
	}
	for _, m := range siblings {
		if m != c && p.arch.IsSubsetOf(m.arch) && m.arch.IsSubsetOf(c.arch) && !m.arch.Equal(c.arch) {
			return true
		}
	}
	return false
}

// Query returns every node whose archetype is a superset of q.
//
// When q itself is a node the walk starts there and every descendant matches.
// Otherwise it starts at the root, which is never pruned, and keeps the
// supersets it reaches.
func (l *Lattice[T]) Query(q archetype.Archetype) []*Node[T] {
	if start := l.Find(q); start != nil {
		return l.collect(start, q, true)
	}
	return l.collect(l.root, q, false)
}

func (l *Lattice[T]) collect(start *Node[T], q archetype.Archetype, prune bool) []*Node[T] {
	out := make([]*Node[T], 0, 8)
	seen := make(map[*Node[T]]struct{}, 16)
	stack := []*Node[T]{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}

		match := n.arch.IsSupersetOf(q)
		if match {
			out = append(out, n)
		} else if prune && n != l.root {
			continue
		}
		stack = append(stack, n.children...)
	}
	return out
}

// Walk visits every node, root included, until fn returns false.
func (l *Lattice[T]) Walk(fn func(*Node[T]) bool) {
	l.nodes.ForEach(func(_ arena.Handle, n *Node[T]) bool {
		return fn(n)
	})
}

// maximalSubsets returns the nodes that are subsets of a with no other subset
// of a below them. Subsets of a are closed towards the root, so the search
// never leaves them.
func (l *Lattice[T]) maximalSubsets(a archetype.Archetype) []*Node[T] {
	var out []*Node[T]
	seen := make(map[*Node[T]]struct{}, 16)
	stack := []*Node[T]{l.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}

		maximal := true
		for _, c := range n.children {
			if c.arch.IsSubsetOf(a) {
				maximal = false
				stack = append(stack, c)
			}
		}
		if maximal {
			out = append(out, n)
		}
	}
	return out
}

// bestMatch picks the candidate sharing the most types with a.
func bestMatch[T any](a archetype.Archetype, candidates []*Node[T]) *Node[T] {
	var best *Node[T]
	bestSize := -1
	for _, n := range candidates {
		if size := n.arch.SubsetIntersectionSize(a); size > bestSize {
			best, bestSize = n, size
		}
	}
	return best
}

// minimalSupersets returns the nodes that are strict supersets of a with no
// other superset of a above them. Every superset of a is a descendant of
// from, a subset of a.
func (l *Lattice[T]) minimalSupersets(a archetype.Archetype, from *Node[T]) []*Node[T] {
	var found []*Node[T]
	seen := make(map[*Node[T]]struct{}, 16)
	stack := append([]*Node[T](nil), from.children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}

		if n.arch.IsSupersetOf(a) {
			found = append(found, n)
			continue
		}
		stack = append(stack, n.children...)
	}

	out := found[:0:0]
	for _, y := range found {
		minimal := true
		for _, z := range found {
			if z != y && z.arch.IsSubsetOf(y.arch) {
				minimal = false
				break
			}
		}
		if minimal {
			out = append(out, y)
		}
	}
	return out
}

func link[T any](p, c *Node[T]) {
	p.children = append(p.children, c)
	c.parents = append(c.parents, p)
}

func unlink[T any](p, c *Node[T]) {
	p.children = without(p.children, c)
	c.parents = without(c.parents, p)
}

func without[T any](list []*Node[T], n *Node[T]) []*Node[T] {
	for i, v := range list {
		if v == n {
			last := len(list) - 1
			list[i] = list[last]
			list[last] = nil
			return list[:last]
		}
	}
	return list
}
