package ecs

import (
	"errors"
	"sync"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/rotisserie/eris"
)

type commandKind uint8

const (
	cmdCreate commandKind = iota
	cmdDestroy
	cmdAdd
	cmdRemove
	cmdDefer
)

type command struct {
	kind commandKind
	id   EntityID
	arch archetype.Archetype
	typ  *archetype.Type
	init func(*Entity)
	fn   func(*World) error
}

// Commands is the deferred structural-change buffer. Systems enqueue from any
// goroutine; World.Flush applies everything at the tick barrier.
type Commands struct {
	mu      sync.Mutex
	pending []command
}

func (c *Commands) push(cmd command) {
	c.mu.Lock()
	c.pending = append(c.pending, cmd)
	c.mu.Unlock()
}

// CreateEntityAsync queues creation of an entity with archetype a. init, if
// set, runs on the new entity before created hooks fire.
func (c *Commands) CreateEntityAsync(a archetype.Archetype, init func(*Entity)) {
	c.push(command{kind: cmdCreate, arch: a, init: init})
}

func (c *Commands) DestroyEntityAsync(id EntityID) {
	c.push(command{kind: cmdDestroy, id: id})
}

// AddComponentAsync queues adding t to id. init runs on the relocated entity.
func (c *Commands) AddComponentAsync(id EntityID, t *archetype.Type, init func(*Entity)) {
	c.push(command{kind: cmdAdd, id: id, typ: t, init: init})
}

func (c *Commands) RemoveComponentAsync(id EntityID, t *archetype.Type) {
	c.push(command{kind: cmdRemove, id: id, typ: t})
}

// Defer queues an arbitrary structural function.
func (c *Commands) Defer(fn func(*World) error) {
	c.push(command{kind: cmdDefer, fn: fn})
}

// Len is the number of queued commands.
func (c *Commands) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Commands) take() []command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// FlushResult summarises one barrier.
type FlushResult struct {
	Applied int
	Skipped int // commands naming an entity that died or already changed
	Added   []archetype.Archetype
	Removed []archetype.Archetype
}

// Flush applies queued commands in the order they were enqueued, including
// any enqueued while flushing, then prunes empty archetype nodes. Commands
// that fail are reported in the joined error; the rest still apply.
func (w *World) Flush() (FlushResult, error) {
	var (
		res  FlushResult
		errs []error
	)
	for {
		batch := w.commands.take()
		if len(batch) == 0 {
			break
		}
		for _, cmd := range batch {
			applied, err := w.apply(cmd)
			switch {
			case err != nil:
				errs = append(errs, err)
			case applied:
				res.Applied++
			default:
				res.Skipped++
			}
		}
	}

	removed := w.Prune()
	added := w.takeAdded()
	for _, a := range added {
		if w.graph.Find(a) != nil {
			res.Added = append(res.Added, a)
		}
	}
	for _, a := range removed {
		if !containsArchetype(added, a) {
			res.Removed = append(res.Removed, a)
		}
	}
	return res, errors.Join(errs...)
}

func (w *World) apply(cmd command) (bool, error) {
	switch cmd.kind {
	case cmdCreate:
		var init func(*Entity) error
		if cmd.init != nil {
			init = func(e *Entity) error { cmd.init(e); return nil }
		}
		if _, err := w.createEntity(cmd.arch, init); err != nil {
			return false, eris.Wrapf(err, "create %s", cmd.arch)
		}
		return true, nil

	case cmdDestroy:
		if !w.Alive(cmd.id) {
			return false, nil
		}
		return true, w.DestroyEntity(cmd.id)

	case cmdAdd:
		e, ok := w.Entity(cmd.id)
		if !ok || e.Has(cmd.typ) {
			return false, nil
		}
		ne, err := w.migrate(e, e.Archetype().With(cmd.typ))
		if err != nil {
			return false, eris.Wrapf(err, "add %s to %s", cmd.typ, cmd.id)
		}
		if cmd.init != nil {
			cmd.init(ne)
		}
		return true, nil

	case cmdRemove:
		e, ok := w.Entity(cmd.id)
		if !ok || !e.Has(cmd.typ) {
			return false, nil
		}
		if _, err := w.migrate(e, e.Archetype().Without(cmd.typ)); err != nil {
			return false, eris.Wrapf(err, "remove %s from %s", cmd.typ, cmd.id)
		}
		return true, nil

	case cmdDefer:
		if err := cmd.fn(w); err != nil {
			return false, eris.Wrap(err, "deferred command")
		}
		return true, nil
	}
	return false, eris.Errorf("unknown command kind %d", cmd.kind)
}

func containsArchetype(list []archetype.Archetype, a archetype.Archetype) bool {
	for _, b := range list {
		if b.Equal(a) {
			return true
		}
	}
	return false
}
