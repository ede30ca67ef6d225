// Package archetype models the set of component types an entity has.
//
// An Archetype is an immutable value. Two archetypes are equal iff their type
// sets are equal, and the ID is a combination hash that does not depend on the
// order types were supplied in. Each archetype caches a type -> slot table so
// that "the N-th component of an entity with this archetype" is O(1).
package archetype

import (
	"encoding/binary"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/kelindar/bitmap"
	"github.com/l1jgo/infinity/internal/core/assert"
)

// ID identifies an archetype by its member set.
type ID uint64

var emptyID = ID(xxhash.Sum64(nil))

// Archetype is a set of component types with a stable slot index per member.
// The zero value is the empty archetype.
type Archetype struct {
	id    ID
	mask  bitmap.Bitmap // member Type.Index bits
	types []*Type       // members in slot order (ascending Type.Index)
	slots []int16       // Type.Index -> slot, -1 if absent
}

// Empty returns the archetype with no members.
func Empty() Archetype {
	return Archetype{id: emptyID}
}

// Create builds an archetype from the given types. Duplicates are ignored.
func Create(types ...*Type) Archetype {
	var mask bitmap.Bitmap
	members := make([]*Type, 0, len(types))
	for _, t := range types {
		assert.That(t != nil, "archetype: nil component type")
		if mask.Contains(t.index) {
			continue
		}
		mask.Set(t.index)
		members = append(members, t)
	}
	slices.SortFunc(members, func(a, b *Type) int { return int(a.index) - int(b.index) })
	return build(mask, members)
}

func build(mask bitmap.Bitmap, members []*Type) Archetype {
	if len(members) == 0 {
		return Empty()
	}

	slots := make([]int16, members[len(members)-1].index+1)
	for i := range slots {
		slots[i] = -1
	}
	for i, t := range members {
		slots[t.index] = int16(i)
	}

	return Archetype{
		id:    combine(members),
		mask:  mask,
		types: members,
		slots: slots,
	}
}

// combine hashes member type IDs in numeric order so that the result only
// depends on set membership.
func combine(members []*Type) ID {
	ids := make([]uint64, len(members))
	for i, t := range members {
		ids[i] = uint64(t.id)
	}
	slices.Sort(ids)

	d := xxhash.New()
	var buf [8]byte
	for _, v := range ids {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	return ID(d.Sum64())
}

func (a Archetype) ID() ID {
	if len(a.types) == 0 {
		return emptyID
	}
	return a.id
}

// Len is the number of member types.
func (a Archetype) Len() int { return len(a.types) }

func (a Archetype) IsEmpty() bool { return len(a.types) == 0 }

// Types returns the members in slot order. The slice must not be modified.
func (a Archetype) Types() []*Type { return a.types }

// Has reports whether t is a member.
func (a Archetype) Has(t *Type) bool {
	return int(t.index) < len(a.slots) && a.slots[t.index] >= 0
}

// ComponentIndex returns the slot of member t. Asking for a type that is not
// a member is a caller error: test membership on the entity's current
// archetype first.
func (a Archetype) ComponentIndex(t *Type) int {
	assert.That(a.Has(t), "archetype %s has no component %s", a, t.name)
	return int(a.slots[t.index])
}

// Union returns a ∪ b.
func (a Archetype) Union(b Archetype) Archetype {
	mask := a.mask.Clone(nil)
	mask.Or(b.mask)
	return a.derive(mask, b)
}

// Intersection returns a ∩ b.
func (a Archetype) Intersection(b Archetype) Archetype {
	mask := a.mask.Clone(nil)
	mask.And(b.mask)
	return a.derive(mask, b)
}

// Difference returns a \ b.
func (a Archetype) Difference(b Archetype) Archetype {
	mask := a.mask.Clone(nil)
	mask.AndNot(b.mask)
	return a.derive(mask, b)
}

// With returns a with t added.
func (a Archetype) With(t *Type) Archetype { return a.Union(Create(t)) }

// Without returns a with t removed.
func (a Archetype) Without(t *Type) Archetype { return a.Difference(Create(t)) }

// derive collects the members of a and b that are present in mask, keeping
// ascending index order.
func (a Archetype) derive(mask bitmap.Bitmap, b Archetype) Archetype {
	members := make([]*Type, 0, mask.Count())
	i, j := 0, 0
	for i < len(a.types) || j < len(b.types) {
		var t *Type
		switch {
		case j >= len(b.types) || (i < len(a.types) && a.types[i].index < b.types[j].index):
			t = a.types[i]
			i++
		case i >= len(a.types) || b.types[j].index < a.types[i].index:
			t = b.types[j]
			j++
		default:
			t = a.types[i]
			i++
			j++
		}
		if mask.Contains(t.index) {
			members = append(members, t)
		}
	}
	return build(mask, members)
}

// SubsetIntersectionSize counts the member types shared with b.
func (a Archetype) SubsetIntersectionSize(b Archetype) int {
	if len(a.types) == 0 || len(b.types) == 0 {
		return 0
	}
	mask := a.mask.Clone(nil)
	mask.And(b.mask)
	return mask.Count()
}

// IsSubsetOf reports a ⊆ b.
func (a Archetype) IsSubsetOf(b Archetype) bool {
	if len(a.types) > len(b.types) {
		return false
	}
	return a.SubsetIntersectionSize(b) == len(a.types)
}

// IsSupersetOf reports a ⊇ b.
func (a Archetype) IsSupersetOf(b Archetype) bool { return b.IsSubsetOf(a) }

// Equal reports whether a and b have the same members.
func (a Archetype) Equal(b Archetype) bool {
	return len(a.types) == len(b.types) && a.ID() == b.ID() && a.IsSubsetOf(b)
}

// String renders members in slot order, e.g. {Transform,Mesh}.
func (a Archetype) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, t := range a.types {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(t.name)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Names returns member names in slot order.
func (a Archetype) Names() []string {
	out := make([]string, len(a.types))
	for i, t := range a.types {
		out[i] = t.name
	}
	return out
}
