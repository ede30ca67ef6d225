// Package arena implements a segmented, pointer-stable pool ("bucket array").
//
// Elements live in fixed-capacity buckets that are never reallocated, so a
// pointer returned for a slot stays valid until that slot is removed. Callers
// hold opaque generational handles rather than raw pointers; a handle whose
// slot has been recycled no longer resolves.
package arena

import (
	"fmt"

	"github.com/l1jgo/infinity/internal/core/assert"
)

// DefaultBucketSize is the number of slots per bucket when none is given.
const DefaultBucketSize = 100

// Handle addresses one slot. The zero Handle is never valid.
type Handle struct {
	bucket int32
	slot   int32
	gen    uint32
}

func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d@%d", h.bucket, h.slot, h.gen)
}

type bucket[T any] struct {
	items     []T
	gens      []uint32 // current generation per slot, odd while occupied
	free      []int32  // free-list stack of slot indices
	live      int
	available bool // listed in Arena.available
}

func newBucket[T any](size int) *bucket[T] {
	b := &bucket[T]{
		items: make([]T, size),
		gens:  make([]uint32, size),
		free:  make([]int32, size),
	}
	// Pop order hands out slot 0 first.
	for i := range b.free {
		b.free[i] = int32(size - 1 - i)
	}
	return b
}

func (b *bucket[T]) full() bool { return len(b.free) == 0 }

// Arena is a pool of T split into buckets. Not safe for concurrent mutation;
// concurrent Get/Lookup/ForEach with no writer is fine.
type Arena[T any] struct {
	bucketSize int
	buckets    []*bucket[T]
	available  []int32 // buckets with at least one free slot
	len        int
}

// New creates an empty arena. bucketSize <= 0 selects DefaultBucketSize.
func New[T any](bucketSize int) *Arena[T] {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &Arena[T]{
		bucketSize: bucketSize,
		buckets:    make([]*bucket[T], 0, 4),
		available:  make([]int32, 0, 4),
	}
}

// Emplace reserves a zeroed slot and returns its handle and a stable pointer.
func (a *Arena[T]) Emplace() (Handle, *T) {
	bi := a.pickBucket()
	b := a.buckets[bi]

	slot := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]
	b.gens[slot]++
	assert.That(b.gens[slot]%2 == 1, "arena: slot %d:%d handed out while occupied", bi, slot)
	b.live++
	a.len++

	if b.full() {
		a.dropAvailable(bi)
	}
	return Handle{bucket: bi, slot: slot, gen: b.gens[slot]}, &b.items[slot]
}

// Add stores v and returns its handle and a stable pointer to the stored copy.
func (a *Arena[T]) Add(v T) (Handle, *T) {
	h, p := a.Emplace()
	*p = v
	return h, p
}

// Remove destructs the element in place and recycles its slot. Removing a
// handle that is not live is a caller error.
func (a *Arena[T]) Remove(h Handle) {
	b := a.resolve(h)
	assert.That(b != nil, "arena: remove of stale or foreign handle %s", h)

	var zero T
	b.items[h.slot] = zero
	b.gens[h.slot]++
	b.free = append(b.free, h.slot)
	b.live--
	a.len--

	if !b.available {
		b.available = true
		a.available = append(a.available, h.bucket)
	}
}

// Get returns the element for a live handle. A stale handle is a caller error.
func (a *Arena[T]) Get(h Handle) *T {
	b := a.resolve(h)
	assert.That(b != nil, "arena: get of stale or foreign handle %s", h)
	return &b.items[h.slot]
}

// Lookup returns the element and true if h is live.
func (a *Arena[T]) Lookup(h Handle) (*T, bool) {
	b := a.resolve(h)
	if b == nil {
		return nil, false
	}
	return &b.items[h.slot], true
}

// Valid reports whether h addresses a live element of this arena.
func (a *Arena[T]) Valid(h Handle) bool {
	return a.resolve(h) != nil
}

// ForEach visits live elements bucket by bucket in slot order. Returning false
// stops the walk. fn may remove the element it is visiting but must not add.
func (a *Arena[T]) ForEach(fn func(Handle, *T) bool) {
	for bi, b := range a.buckets {
		if b.live == 0 {
			continue
		}
		for si := range b.items {
			if b.gens[si]%2 == 0 {
				continue
			}
			h := Handle{bucket: int32(bi), slot: int32(si), gen: b.gens[si]}
			if !fn(h, &b.items[si]) {
				return
			}
		}
	}
}

// Handles returns the handles of all live elements, in ForEach order.
func (a *Arena[T]) Handles() []Handle {
	out := make([]Handle, 0, a.len)
	a.ForEach(func(h Handle, _ *T) bool {
		out = append(out, h)
		return true
	})
	return out
}

func (a *Arena[T]) Len() int { return a.len }

// Cap is the total number of slots across all buckets.
func (a *Arena[T]) Cap() int { return len(a.buckets) * a.bucketSize }

func (a *Arena[T]) Buckets() int { return len(a.buckets) }

func (a *Arena[T]) BucketSize() int { return a.bucketSize }

// Clear removes every element. Outstanding handles become stale.
func (a *Arena[T]) Clear() {
	a.ForEach(func(h Handle, _ *T) bool {
		a.Remove(h)
		return true
	})
}

func (a *Arena[T]) resolve(h Handle) *bucket[T] {
	if h.gen == 0 || h.bucket < 0 || int(h.bucket) >= len(a.buckets) {
		return nil
	}
	b := a.buckets[h.bucket]
	if h.slot < 0 || int(h.slot) >= len(b.items) || b.gens[h.slot] != h.gen {
		return nil
	}
	return b
}

func (a *Arena[T]) pickBucket() int32 {
	if n := len(a.available); n > 0 {
		return a.available[n-1]
	}
	a.buckets = append(a.buckets, newBucket[T](a.bucketSize))
	bi := int32(len(a.buckets) - 1)
	a.buckets[bi].available = true
	a.available = append(a.available, bi)
	return bi
}

func (a *Arena[T]) dropAvailable(bi int32) {
	for i, v := range a.available {
		if v == bi {
			last := len(a.available) - 1
			a.available[i] = a.available[last]
			a.available = a.available[:last]
			break
		}
	}
	a.buckets[bi].available = false
}
