package ecs

import (
	"github.com/l1jgo/infinity/internal/core/arena"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/lattice"
)

// EntityList is the storage of one lattice node: the entity records whose
// exact archetype is the node's, and one column per member type.
type EntityList struct {
	node    *lattice.Node[Entity]
	columns []column // by archetype slot
}

// columnsFor builds empty storage for every member of a.
func columnsFor(a archetype.Archetype, reg *Registry, bucketSize int) ([]column, error) {
	cols := make([]column, a.Len())
	for slot, t := range a.Types() {
		f, err := reg.factory(t)
		if err != nil {
			return nil, err
		}
		cols[slot] = f(bucketSize)
	}
	return cols, nil
}

func (l *EntityList) Archetype() archetype.Archetype { return l.node.Archetype() }

func (l *EntityList) Len() int { return l.node.Entities().Len() }

// ForEach visits entities until fn returns false. fn must not make
// structural changes; queue them on Commands instead.
func (l *EntityList) ForEach(fn func(*Entity) bool) {
	l.node.Entities().ForEach(func(_ arena.Handle, e *Entity) bool {
		return fn(e)
	})
}

// Each iterates every entity in lists.
func Each(lists []*EntityList, fn func(*Entity)) {
	for _, l := range lists {
		l.ForEach(func(e *Entity) bool {
			fn(e)
			return true
		})
	}
}

// Each1 iterates entities with component A across lists.
func Each1[A any](lists []*EntityList, ca Component[A], fn func(*Entity, *A)) {
	for _, l := range lists {
		if !l.Archetype().Has(ca.typ) {
			continue
		}
		sa := l.Archetype().ComponentIndex(ca.typ)
		colA := l.columns[sa].(*typedColumn[A])
		l.ForEach(func(e *Entity) bool {
			fn(e, colA.data.Get(e.comps[sa]))
			return true
		})
	}
}

// Each2 iterates entities that have both component A and B. Column lookups
// happen once per list, not per entity.
func Each2[A, B any](lists []*EntityList, ca Component[A], cb Component[B], fn func(*Entity, *A, *B)) {
	for _, l := range lists {
		a := l.Archetype()
		if !a.Has(ca.typ) || !a.Has(cb.typ) {
			continue
		}
		sa, sb := a.ComponentIndex(ca.typ), a.ComponentIndex(cb.typ)
		colA := l.columns[sa].(*typedColumn[A])
		colB := l.columns[sb].(*typedColumn[B])
		l.ForEach(func(e *Entity) bool {
			fn(e, colA.data.Get(e.comps[sa]), colB.data.Get(e.comps[sb]))
			return true
		})
	}
}

// Each3 iterates entities that have components A, B, and C.
func Each3[A, B, C any](lists []*EntityList, ca Component[A], cb Component[B], cc Component[C], fn func(*Entity, *A, *B, *C)) {
	for _, l := range lists {
		a := l.Archetype()
		if !a.Has(ca.typ) || !a.Has(cb.typ) || !a.Has(cc.typ) {
			continue
		}
		sa, sb, sc := a.ComponentIndex(ca.typ), a.ComponentIndex(cb.typ), a.ComponentIndex(cc.typ)
		colA := l.columns[sa].(*typedColumn[A])
		colB := l.columns[sb].(*typedColumn[B])
		colC := l.columns[sc].(*typedColumn[C])
		l.ForEach(func(e *Entity) bool {
			fn(e, colA.data.Get(e.comps[sa]), colB.data.Get(e.comps[sb]), colC.data.Get(e.comps[sc]))
			return true
		})
	}
}
