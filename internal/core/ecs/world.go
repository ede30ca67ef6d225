package ecs

import (
	"slices"

	"github.com/l1jgo/infinity/internal/core/arena"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/assert"
	"github.com/l1jgo/infinity/internal/core/lattice"
	"github.com/rotisserie/eris"
)

// Listener receives entity lifecycle hooks for entities whose archetype is a
// superset of Archetype().
type Listener interface {
	Archetype() archetype.Archetype
	EntityCreated(e *Entity)
	EntityDestroyed(e *Entity)
}

// World is the top-level ECS container. It owns the entity pool, the archetype
// lattice with its per-node storage, and the deferred command buffer flushed
// at the tick barrier.
//
// Structural operations (create, destroy, add, remove, flush) are single
// threaded. Systems running in parallel may read and write component contents
// through query results and enqueue structural changes on Commands.
type World struct {
	reg        *Registry
	pool       *EntityPool
	graph      *lattice.Lattice[Entity]
	lists      map[*lattice.Node[Entity]]*EntityList
	records    []*Entity // by EntityID.Index
	bucketSize int
	listeners  []Listener
	commands   *Commands
	added      []archetype.Archetype
}

type WorldOption func(*World)

// WithBucketSize sets the arena bucket size used for entity and component storage.
func WithBucketSize(n int) WorldOption {
	return func(w *World) {
		if n > 0 {
			w.bucketSize = n
		}
	}
}

func NewWorld(reg *Registry, opts ...WorldOption) *World {
	w := &World{
		reg:        reg,
		pool:       NewEntityPool(),
		lists:      make(map[*lattice.Node[Entity]]*EntityList, 64),
		records:    make([]*Entity, 0, 1024),
		bucketSize: arena.DefaultBucketSize,
		commands:   &Commands{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.graph = lattice.New[Entity](w.bucketSize)
	w.lists[w.graph.Root()] = &EntityList{node: w.graph.Root()}
	return w
}

func (w *World) Registry() *Registry               { return w.reg }
func (w *World) Commands() *Commands               { return w.commands }
func (w *World) Lattice() *lattice.Lattice[Entity] { return w.graph }

// Version changes whenever an archetype node is added or removed.
func (w *World) Version() uint64 { return w.graph.Version() }

// Len is the number of live entities.
func (w *World) Len() int { return w.pool.Len() }

// Archetypes is the number of archetype nodes in use, root excluded.
func (w *World) Archetypes() int { return w.graph.Len() }

func (w *World) Alive(id EntityID) bool {
	_, ok := w.Entity(id)
	return ok
}

// Entity resolves a live ID to its current record.
func (w *World) Entity(id EntityID) (*Entity, bool) {
	if !w.pool.Alive(id) {
		return nil, false
	}
	e := w.records[id.Index()]
	return e, e != nil
}

// Subscribe registers lifecycle hooks.
func (w *World) Subscribe(l Listener) {
	w.listeners = append(w.listeners, l)
}

// Unsubscribe removes l and reports whether it was subscribed.
func (w *World) Unsubscribe(l Listener) bool {
	i := slices.Index(w.listeners, l)
	if i < 0 {
		return false
	}
	w.listeners = slices.Delete(w.listeners, i, i+1)
	return true
}

// CreateEntity allocates an entity with archetype a, constructing each
// component with its registered default.
func (w *World) CreateEntity(a archetype.Archetype) (*Entity, error) {
	return w.createEntity(a, nil)
}

// CreateEntityWith is CreateEntity with init run on the new components before
// any created hook sees them. If init fails the entity is freed without
// running hooks and the error is returned.
func (w *World) CreateEntityWith(a archetype.Archetype, init func(*Entity) error) (*Entity, error) {
	return w.createEntity(a, init)
}

func (w *World) createEntity(a archetype.Archetype, init func(*Entity) error) (*Entity, error) {
	l, err := w.list(a)
	if err != nil {
		return nil, err
	}

	e := w.place(l, w.pool.Create())
	for slot, col := range l.columns {
		e.comps[slot] = col.add()
	}
	if init != nil {
		if err := init(e); err != nil {
			id := e.ID()
			w.release(e)
			w.records[id.Index()] = nil
			w.pool.Destroy(id)
			return nil, err
		}
	}
	for _, ln := range w.listeners {
		if e.Archetype().IsSupersetOf(ln.Archetype()) {
			ln.EntityCreated(e)
		}
	}
	return e, nil
}

// AddComponent migrates the entity to its archetype plus t and returns the
// relocated record. Adding a component the entity already has is a caller error.
func (w *World) AddComponent(id EntityID, t *archetype.Type) (*Entity, error) {
	e, ok := w.Entity(id)
	if !ok {
		return nil, eris.Wrapf(ErrEntityNotFound, "add %s to %s", t.Name(), id)
	}
	assert.That(!e.Has(t), "ecs: entity %s already has %s", id, t)
	return w.migrate(e, e.Archetype().With(t))
}

// RemoveComponent migrates the entity to its archetype minus t and returns the
// relocated record. Removing a component the entity lacks is a caller error.
func (w *World) RemoveComponent(id EntityID, t *archetype.Type) (*Entity, error) {
	e, ok := w.Entity(id)
	if !ok {
		return nil, eris.Wrapf(ErrEntityNotFound, "remove %s from %s", t.Name(), id)
	}
	assert.That(e.Has(t), "ecs: entity %s has no %s", id, t)
	return w.migrate(e, e.Archetype().Without(t))
}

// DestroyEntity runs destroyed hooks, then frees the entity and its components.
func (w *World) DestroyEntity(id EntityID) error {
	e, ok := w.Entity(id)
	if !ok {
		return eris.Wrapf(ErrEntityNotFound, "destroy %s", id)
	}
	for _, ln := range w.listeners {
		if e.Archetype().IsSupersetOf(ln.Archetype()) {
			ln.EntityDestroyed(e)
		}
	}
	w.release(e)
	w.records[id.Index()] = nil
	w.pool.Destroy(id)
	return nil
}

// Query returns the storage of every archetype that is a superset of a.
func (w *World) Query(a archetype.Archetype) []*EntityList {
	nodes := w.graph.Query(a)
	out := make([]*EntityList, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, w.lists[n])
	}
	return out
}

// Anchor pins a's node so it survives while empty, making queries for a start
// at an exact node.
func (w *World) Anchor(a archetype.Archetype) error {
	l, err := w.list(a)
	if err != nil {
		return err
	}
	l.node.Pin()
	return nil
}

// Release undoes one Anchor.
func (w *World) Release(a archetype.Archetype) {
	if n := w.graph.Find(a); n != nil {
		n.Unpin()
	}
}

// Prune removes empty, unpinned archetype nodes and returns their archetypes.
func (w *World) Prune() []archetype.Archetype {
	var victims []*lattice.Node[Entity]
	w.graph.Walk(func(n *lattice.Node[Entity]) bool {
		if !n.IsRoot() && !n.Pinned() && n.Entities().Len() == 0 {
			victims = append(victims, n)
		}
		return true
	})

	out := make([]archetype.Archetype, 0, len(victims))
	for _, n := range victims {
		a := n.Archetype()
		delete(w.lists, n)
		w.graph.Remove(a)
		out = append(out, a)
	}
	return out
}

// list returns the storage for exactly a, inserting a lattice node if needed.
func (w *World) list(a archetype.Archetype) (*EntityList, error) {
	if n := w.graph.Find(a); n != nil {
		return w.lists[n], nil
	}
	if a.Len() > MaxComponents {
		return nil, eris.Errorf("archetype %s exceeds %d components", a, MaxComponents)
	}
	cols, err := columnsFor(a, w.reg, w.bucketSize)
	if err != nil {
		return nil, err
	}

	n := w.graph.Insert(a)
	l := &EntityList{node: n, columns: cols}
	w.lists[n] = l
	w.added = append(w.added, a)
	return l, nil
}

func (w *World) place(l *EntityList, id EntityID) *Entity {
	h, e := l.node.Entities().Emplace()
	e.id = id
	e.list = l
	e.self = h

	idx := int(id.Index())
	for idx >= len(w.records) {
		w.records = append(w.records, nil)
	}
	w.records[idx] = e
	return e
}

// migrate moves e into the node for to, duplicating the components both
// archetypes share and constructing the new ones.
func (w *World) migrate(e *Entity, to archetype.Archetype) (*Entity, error) {
	dst, err := w.list(to)
	if err != nil {
		return nil, err
	}
	src := e.list
	from := src.Archetype()

	ne := w.place(dst, e.id)
	for slot, t := range to.Types() {
		if from.Has(t) {
			old := from.ComponentIndex(t)
			ne.comps[slot] = dst.columns[slot].duplicate(src.columns[old], e.comps[old])
		} else {
			ne.comps[slot] = dst.columns[slot].add()
		}
	}
	w.release(e)
	return ne, nil
}

// release frees e's components and record slot without touching its ID.
func (w *World) release(e *Entity) {
	l := e.list
	for slot, col := range l.columns {
		col.remove(e.comps[slot])
	}
	l.node.Entities().Remove(e.self)
}

func (w *World) takeAdded() []archetype.Archetype {
	out := w.added
	w.added = nil
	return out
}
