package ecs

import (
	"fmt"

	"github.com/l1jgo/infinity/internal/core/arena"
	"github.com/l1jgo/infinity/internal/core/archetype"
)

// MaxComponents is the most component types one entity can carry.
const MaxComponents = 16

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Generations start at 1, so the zero ID is never alive.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%d@%d", id.Index(), id.Generation())
}

// Entity is the record stored in a lattice node: an identity plus one
// component handle per archetype slot. Pointers to an Entity stay valid until
// the next structural change to it.
type Entity struct {
	id    EntityID
	list  *EntityList
	self  arena.Handle
	comps [MaxComponents]arena.Handle
}

func (e *Entity) ID() EntityID { return e.id }

// Archetype is the entity's current archetype. Slot indices must come from it.
func (e *Entity) Archetype() archetype.Archetype { return e.list.node.Archetype() }

func (e *Entity) Has(t *archetype.Type) bool { return e.Archetype().Has(t) }

// Pointer returns the component of type t as a *T boxed in an any.
func (e *Entity) Pointer(t *archetype.Type) (any, bool) {
	a := e.Archetype()
	if !a.Has(t) {
		return nil, false
	}
	slot := a.ComponentIndex(t)
	return e.list.columns[slot].pointer(e.comps[slot]), true
}

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

func (p *EntityPool) Create() EntityID {
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 1)
	}
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if id.IsZero() || idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy retires id. Stale IDs are ignored and reported as false.
func (p *EntityPool) Destroy(id EntityID) bool {
	if !p.Alive(id) {
		return false
	}
	idx := id.Index()
	p.generations[idx]++
	if p.generations[idx] == 0 {
		p.generations[idx] = 1
	}
	p.freeList = append(p.freeList, idx)
	return true
}

// Len is the number of live IDs.
func (p *EntityPool) Len() int {
	return int(p.nextIndex) - len(p.freeList)
}
