package ecs

import (
	"sync"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/rotisserie/eris"
)

// Registry tracks component types and how to build storage for each of them.
type Registry struct {
	types *archetype.Registry

	mu        sync.RWMutex
	factories []columnFactory // by Type.Index
}

func NewRegistry() *Registry {
	return &Registry{
		types:     archetype.NewRegistry(),
		factories: make([]columnFactory, 0, 16),
	}
}

// Types is the underlying type registry.
func (r *Registry) Types() *archetype.Registry { return r.types }

func (r *Registry) setFactory(t *archetype.Type, f columnFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for int(t.Index()) >= len(r.factories) {
		r.factories = append(r.factories, nil)
	}
	if r.factories[t.Index()] == nil {
		r.factories[t.Index()] = f
	}
}

func (r *Registry) factory(t *archetype.Type) (columnFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(t.Index()) < len(r.factories) && r.factories[t.Index()] != nil {
		if known := r.types.ByIndex(t.Index()); known == t {
			return r.factories[t.Index()], nil
		}
	}
	return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", t.Name())
}

// Lookup finds a registered type by name.
func (r *Registry) Lookup(name string) (*archetype.Type, error) {
	t, ok := r.types.Lookup(name)
	if !ok {
		return nil, eris.Wrapf(ErrComponentNotRegistered, "component %s", name)
	}
	return t, nil
}

// Archetype builds an archetype from registered component names.
func (r *Registry) Archetype(names ...string) (archetype.Archetype, error) {
	types := make([]*archetype.Type, 0, len(names))
	for _, name := range names {
		t, err := r.Lookup(name)
		if err != nil {
			return archetype.Archetype{}, err
		}
		types = append(types, t)
	}
	return archetype.Create(types...), nil
}
