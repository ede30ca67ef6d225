// Package event carries deferred signals between systems.
//
// An Event routes records into one lock-free queue per archetype matching its
// component set, so producers in one phase never touch storage that consumers
// are iterating. The consumer drains with ProcessEvents, which re-validates
// every referenced entity because it may have died or changed shape since the
// record was queued.
package event

import (
	"sync/atomic"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/assert"
	"github.com/l1jgo/infinity/internal/core/ecs"
)

// Record is one queued fact about an entity.
type Record[A any] struct {
	Entity    ecs.EntityID
	Archetype archetype.Archetype
	Args      A
}

type routes[A any] map[archetype.ID]*Queue[Record[A]]

// Refresher is implemented by events that track the lattice.
type Refresher interface {
	Refresh(w *ecs.World)
}

// Event is a typed signal for entities having at least the archetype query.
type Event[A any] struct {
	name    string
	query   archetype.Archetype
	routes  atomic.Pointer[routes[A]]
	orphans *Queue[Record[A]]
	version uint64
	fresh   bool
}

func New[A any](name string, query archetype.Archetype) *Event[A] {
	ev := &Event[A]{
		name:    name,
		query:   query,
		orphans: NewQueue[Record[A]](),
	}
	empty := routes[A]{}
	ev.routes.Store(&empty)
	return ev
}

func (ev *Event[A]) Name() string               { return ev.name }
func (ev *Event[A]) Query() archetype.Archetype { return ev.query }
func (ev *Event[A]) Sender() Sender[A]          { return Sender[A]{ev: ev} }

// Refresh rebuilds the per-archetype routes after the lattice changed. Records
// queued for archetypes that no longer match move to the orphan queue. Must
// not run concurrently with producers.
func (ev *Event[A]) Refresh(w *ecs.World) {
	if ev.fresh && ev.version == w.Version() {
		return
	}
	old := *ev.routes.Load()
	next := make(routes[A], len(old)+1)
	for _, l := range w.Query(ev.query) {
		id := l.Archetype().ID()
		if q, ok := old[id]; ok {
			next[id] = q
		} else {
			next[id] = NewQueue[Record[A]]()
		}
	}
	for id, q := range old {
		if _, ok := next[id]; ok {
			continue
		}
		for {
			rec, ok := q.Pop()
			if !ok {
				break
			}
			ev.orphans.Push(rec)
		}
	}
	ev.routes.Store(&next)
	ev.version = w.Version()
	ev.fresh = true
}

func (ev *Event[A]) push(e *ecs.Entity, args A) bool {
	a := e.Archetype()
	if !a.IsSupersetOf(ev.query) {
		return false
	}
	rec := Record[A]{Entity: e.ID(), Archetype: a, Args: args}
	if q, ok := (*ev.routes.Load())[a.ID()]; ok {
		q.Push(rec)
	} else {
		ev.orphans.Push(rec)
	}
	return true
}

// Len is the number of queued records. Approximate while producers run.
func (ev *Event[A]) Len() int {
	n := ev.orphans.Len()
	for _, q := range *ev.routes.Load() {
		n += q.Len()
	}
	return n
}

// Routes is the number of archetype queues.
func (ev *Event[A]) Routes() int { return len(*ev.routes.Load()) }

// ProcessEvents drains every queue, calling fn for records whose entity is
// still alive, has the same identity, and still matches the query. Others
// are discarded.
func (ev *Event[A]) ProcessEvents(w *ecs.World, fn func(e *ecs.Entity, args A)) (processed, discarded int) {
	drain := func(q *Queue[Record[A]]) {
		for {
			rec, ok := q.Pop()
			if !ok {
				return
			}
			e, alive := w.Entity(rec.Entity)
			if !alive || e.ID() != rec.Entity || !e.Archetype().IsSupersetOf(ev.query) {
				discarded++
				continue
			}
			fn(e, rec.Args)
			processed++
		}
	}
	for _, q := range *ev.routes.Load() {
		drain(q)
	}
	drain(ev.orphans)
	return processed, discarded
}

// Sender is the producer capability of an Event. Systems that only raise the
// event get a Sender, never the Event itself.
type Sender[A any] struct {
	ev *Event[A]
}

func (s Sender[A]) Valid() bool  { return s.ev != nil }
func (s Sender[A]) Name() string { return s.ev.name }

// Add queues a record for e. e must match the event's query.
func (s Sender[A]) Add(e *ecs.Entity, args A) {
	ok := s.ev.push(e, args)
	assert.That(ok, "event %s: entity %s with %s does not match %s", s.ev.name, e.ID(), e.Archetype(), s.ev.query)
}

// TryAdd queues a record if e matches the event's query.
func (s Sender[A]) TryAdd(e *ecs.Entity, args A) bool {
	return s.ev.push(e, args)
}
