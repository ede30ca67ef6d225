package archetype

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transform struct{ X, Y, Z float32 }
type mesh struct{ ID int }

type tracked struct {
	owner   uint64 `ecs:"meta"`
	version uint32 `ecs:"meta"`
	HP      int32
	Max     int32
}

func newTypes(t *testing.T, n int) (*Registry, []*Type) {
	t.Helper()
	reg := NewRegistry()
	out := make([]*Type, n)
	for i := range n {
		typ, err := reg.Register(fmt.Sprintf("C%02d", i), reflect.TypeFor[mesh]())
		require.NoError(t, err)
		out[i] = typ
	}
	return reg, out
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	tr, err := reg.Register("Transform", reflect.TypeFor[transform]())
	require.NoError(t, err)
	me, err := reg.Register("Mesh", reflect.TypeFor[mesh]())
	require.NoError(t, err)

	again, err := reg.Register("Transform", reflect.TypeFor[transform]())
	require.NoError(t, err)
	assert.Same(t, tr, again)

	_, err = reg.Register("Transform", reflect.TypeFor[mesh]())
	require.Error(t, err)
	_, err = reg.Register("", reflect.TypeFor[mesh]())
	require.Error(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, uint32(0), tr.Index())
	assert.Equal(t, uint32(1), me.Index())
	assert.NotEqual(t, tr.ID(), me.ID())
	assert.Equal(t, uintptr(12), tr.Size())

	got, ok := reg.Lookup("Mesh")
	require.True(t, ok)
	assert.Same(t, me, got)
	byID, ok := reg.ByID(me.ID())
	require.True(t, ok)
	assert.Same(t, me, byID)
	assert.Same(t, tr, reg.ByIndex(0))
	assert.Nil(t, reg.ByIndex(5))
}

func TestType_DataOffsetSkipsMetaFields(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	typ, err := reg.Register("Tracked", reflect.TypeFor[tracked]())
	require.NoError(t, err)

	field, _ := reflect.TypeFor[tracked]().FieldByName("HP")
	assert.Equal(t, field.Offset, typ.DataOffset())
	assert.Equal(t, typ.Size()-field.Offset, typ.DataSize())

	plain, err := reg.Register("Transform", reflect.TypeFor[transform]())
	require.NoError(t, err)
	assert.Equal(t, uintptr(0), plain.DataOffset())
}

func TestArchetype_OrderIndependentIdentity(t *testing.T) {
	t.Parallel()

	_, ty := newTypes(t, 4)
	a := Create(ty[0], ty[2], ty[3])
	b := Create(ty[3], ty[0], ty[2], ty[0])

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.ID(), Create(ty[0], ty[2]).ID())
}

func TestArchetype_ComponentIndex(t *testing.T) {
	t.Parallel()

	_, ty := newTypes(t, 5)
	a := Create(ty[4], ty[1], ty[3])

	assert.Equal(t, 0, a.ComponentIndex(ty[1]))
	assert.Equal(t, 1, a.ComponentIndex(ty[3]))
	assert.Equal(t, 2, a.ComponentIndex(ty[4]))
	assert.False(t, a.Has(ty[0]))
	assert.Panics(t, func() { a.ComponentIndex(ty[0]) })
	assert.Panics(t, func() { a.ComponentIndex(ty[2]) })
	assert.Equal(t, []string{"C01", "C03", "C04"}, a.Names())
}

func TestArchetype_EmptyAndZeroValue(t *testing.T) {
	t.Parallel()

	_, ty := newTypes(t, 2)
	var zero Archetype
	empty := Empty()
	a := Create(ty[0], ty[1])

	assert.True(t, zero.Equal(empty))
	assert.True(t, zero.IsEmpty())
	assert.Equal(t, "{}", empty.String())
	assert.True(t, empty.IsSubsetOf(a))
	assert.True(t, a.Difference(a).Equal(empty))
	assert.True(t, zero.Union(a).Equal(a))
	assert.Equal(t, 0, empty.SubsetIntersectionSize(a))
}

func TestArchetype_SetOperations(t *testing.T) {
	t.Parallel()

	_, ty := newTypes(t, 4)
	a := Create(ty[0], ty[1], ty[2])
	b := Create(ty[1], ty[2], ty[3])

	assert.True(t, a.Union(b).Equal(Create(ty[0], ty[1], ty[2], ty[3])))
	assert.True(t, a.Intersection(b).Equal(Create(ty[1], ty[2])))
	assert.True(t, a.Difference(b).Equal(Create(ty[0])))
	assert.True(t, b.Difference(a).Equal(Create(ty[3])))
	assert.Equal(t, 2, a.SubsetIntersectionSize(b))
	assert.True(t, a.With(ty[3]).Equal(a.Union(b)))
	assert.True(t, a.Without(ty[0]).Equal(a.Intersection(b)))

	assert.True(t, Create(ty[1]).IsSubsetOf(a))
	assert.False(t, a.IsSubsetOf(b))
	assert.True(t, a.IsSupersetOf(Create(ty[0], ty[2])))
	assert.True(t, a.IsSubsetOf(a))
}

func TestArchetype_AlgebraLaws(t *testing.T) {
	t.Parallel()

	_, ty := newTypes(t, 12)
	rng := rand.New(rand.NewPCG(7, 11))
	random := func() Archetype {
		var picked []*Type
		for _, typ := range ty {
			if rng.IntN(2) == 0 {
				picked = append(picked, typ)
			}
		}
		return Create(picked...)
	}

	for range 500 {
		a, b := random(), random()
		u := a.Union(b)
		i := a.Intersection(b)

		require.True(t, u.IsSupersetOf(a))
		require.True(t, u.IsSupersetOf(b))
		require.True(t, a.Difference(a).IsEmpty())
		require.True(t, i.IsSubsetOf(a))
		require.True(t, i.IsSubsetOf(b))
		require.Equal(t, i.Len(), a.SubsetIntersectionSize(b))
		require.Equal(t, a.Len()+b.Len()-i.Len(), u.Len())
		require.True(t, a.Difference(b).Union(i).Equal(a))
		require.True(t, u.Equal(b.Union(a)))

		for slot, typ := range u.Types() {
			require.Equal(t, slot, u.ComponentIndex(typ))
		}
	}
}
