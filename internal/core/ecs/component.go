package ecs

import (
	"reflect"
	"unsafe"

	"github.com/l1jgo/infinity/internal/core/arena"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/assert"
)

// column stores the components of one type for one lattice node.
type column interface {
	add() arena.Handle
	// duplicate copies the component at h in src (same type) into this column.
	duplicate(src column, h arena.Handle) arena.Handle
	remove(h arena.Handle)
	pointer(h arena.Handle) any
	len() int
}

// columnFactory builds an empty column with the given bucket size.
type columnFactory func(bucketSize int) column

type typedColumn[T any] struct {
	data *arena.Arena[T]
	init func(*T)
}

var _ column = &typedColumn[struct{}]{}

func newColumnFactory[T any](init func(*T)) columnFactory {
	return func(bucketSize int) column {
		return &typedColumn[T]{data: arena.New[T](bucketSize), init: init}
	}
}

func (c *typedColumn[T]) add() arena.Handle {
	h, p := c.data.Emplace()
	if c.init != nil {
		c.init(p)
	}
	return h
}

func (c *typedColumn[T]) duplicate(src column, h arena.Handle) arena.Handle {
	other, ok := src.(*typedColumn[T])
	assert.That(ok, "ecs: duplicate across component types")
	nh, _ := c.data.Add(*other.data.Get(h))
	return nh
}

func (c *typedColumn[T]) remove(h arena.Handle)      { c.data.Remove(h) }
func (c *typedColumn[T]) pointer(h arena.Handle) any { return c.data.Get(h) }
func (c *typedColumn[T]) len() int                   { return c.data.Len() }

// Component is the typed accessor for one registered component kind.
type Component[T any] struct {
	typ *archetype.Type
}

// Option configures a component at registration.
type Option[T any] func(*componentOptions[T])

type componentOptions[T any] struct {
	name string
	init func(*T)
}

// WithName overrides the registered name, which defaults to the Go type name.
func WithName[T any](name string) Option[T] {
	return func(o *componentOptions[T]) { o.name = name }
}

// WithDefault sets the constructor applied to every new component of this kind.
func WithDefault[T any](init func(*T)) Option[T] {
	return func(o *componentOptions[T]) { o.init = init }
}

// Register adds T to reg and returns its accessor. Registering the same type
// twice returns an accessor for the existing registration.
func Register[T any](reg *Registry, opts ...Option[T]) (Component[T], error) {
	rt := reflect.TypeFor[T]()
	o := componentOptions[T]{name: rt.Name()}
	for _, opt := range opts {
		opt(&o)
	}

	t, err := reg.types.Register(o.name, rt)
	if err != nil {
		return Component[T]{}, err
	}
	reg.setFactory(t, newColumnFactory[T](o.init))
	return Component[T]{typ: t}, nil
}

// MustRegister is Register for package-level setup where failure is a bug.
func MustRegister[T any](reg *Registry, opts ...Option[T]) Component[T] {
	c, err := Register[T](reg, opts...)
	assert.That(err == nil, "ecs: register %s: %v", reflect.TypeFor[T](), err)
	return c
}

func (c Component[T]) Type() *archetype.Type { return c.typ }
func (c Component[T]) Name() string          { return c.typ.Name() }

// Get returns the entity's component. The entity must have it: check its
// current archetype first.
func (c Component[T]) Get(e *Entity) *T {
	slot := e.Archetype().ComponentIndex(c.typ)
	col, ok := e.list.columns[slot].(*typedColumn[T])
	assert.That(ok, "ecs: slot %d of %s is not %s", slot, e.Archetype(), c.typ)
	return col.data.Get(e.comps[slot])
}

func (c Component[T]) TryGet(e *Entity) (*T, bool) {
	if !c.Has(e) {
		return nil, false
	}
	return c.Get(e), true
}

func (c Component[T]) Has(e *Entity) bool { return e.Archetype().Has(c.typ) }

// DataBytes copies the data tail of the entity's component, skipping leading
// fields tagged `ecs:"meta"`.
func (c Component[T]) DataBytes(e *Entity) []byte {
	p := c.Get(e)
	n := int(c.typ.DataSize())
	out := make([]byte, n)
	if n > 0 {
		src := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(p), c.typ.DataOffset())), n)
		copy(out, src)
	}
	return out
}
