package archetype

import (
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"
)

// TypeID is the stable identity of a component kind: a hash of its qualified name.
type TypeID uint64

// maxTypes bounds registrations so that slot tables stay small.
const maxTypes = 1024

// Type describes one component kind. Types are created once by a Registry and
// never change afterwards.
type Type struct {
	id         TypeID
	index      uint32 // registration order, bit position in member sets
	name       string
	rtype      reflect.Type
	size       uintptr
	align      uintptr
	dataOffset uintptr
}

func (t *Type) ID() TypeID            { return t.id }
func (t *Type) Index() uint32         { return t.index }
func (t *Type) Name() string          { return t.name }
func (t *Type) Reflect() reflect.Type { return t.rtype }
func (t *Type) Size() uintptr         { return t.size }
func (t *Type) Align() uintptr        { return t.align }

// DataOffset is where the copyable data tail starts. Leading struct fields
// tagged `ecs:"meta"` are bookkeeping and sit before it.
func (t *Type) DataOffset() uintptr { return t.dataOffset }

// DataSize is the byte length of the data tail.
func (t *Type) DataSize() uintptr { return t.size - t.dataOffset }

func (t *Type) String() string { return t.name }

// Registry owns the set of known component types. Registration is expected at
// startup; lookups are safe from any goroutine.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Type
	byID   map[TypeID]*Type
	types  []*Type
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Type, 32),
		byID:   make(map[TypeID]*Type, 32),
		types:  make([]*Type, 0, 32),
	}
}

// Register adds a component type under name. Registering the same name with
// the same Go type returns the existing Type.
func (r *Registry) Register(name string, rt reflect.Type) (*Type, error) {
	if name == "" {
		return nil, eris.New("component name cannot be empty")
	}
	if rt == nil {
		return nil, eris.Errorf("component %s has no type", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byName[name]; ok {
		if t.rtype != rt {
			return nil, eris.Errorf("component %s already registered as %s", name, t.rtype)
		}
		return t, nil
	}
	if len(r.types) >= maxTypes {
		return nil, eris.Errorf("cannot register %s: limit of %d component types reached", name, maxTypes)
	}

	id := TypeID(xxhash.Sum64String(name))
	if other, ok := r.byID[id]; ok {
		return nil, eris.Errorf("component %s collides with %s", name, other.name)
	}

	t := &Type{
		id:         id,
		index:      uint32(len(r.types)),
		name:       name,
		rtype:      rt,
		size:       rt.Size(),
		align:      uintptr(rt.Align()),
		dataOffset: dataOffset(rt),
	}
	r.types = append(r.types, t)
	r.byName[name] = t
	r.byID[id] = t
	return t, nil
}

func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) ByID(id TypeID) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

func (r *Registry) ByIndex(i uint32) *Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(i) >= len(r.types) {
		return nil
	}
	return r.types[i]
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// dataOffset skips leading fields tagged `ecs:"meta"`.
func dataOffset(rt reflect.Type) uintptr {
	if rt.Kind() != reflect.Struct {
		return 0
	}
	for i := range rt.NumField() {
		f := rt.Field(i)
		if f.Tag.Get("ecs") != "meta" {
			return f.Offset
		}
	}
	return rt.Size()
}
