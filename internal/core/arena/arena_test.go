package arena

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID    int
	Value float64
}

func TestArena_AddGetRemove(t *testing.T) {
	t.Parallel()

	a := New[payload](4)
	h1, p1 := a.Add(payload{ID: 1})
	h2, p2 := a.Add(payload{ID: 2})

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, a.Get(h1).ID)
	assert.Equal(t, 2, a.Get(h2).ID)
	assert.Same(t, p1, a.Get(h1))
	assert.Same(t, p2, a.Get(h2))

	a.Remove(h1)
	assert.Equal(t, 1, a.Len())
	assert.False(t, a.Valid(h1))
	_, ok := a.Lookup(h1)
	assert.False(t, ok)
	assert.True(t, a.Valid(h2))
}

func TestArena_ZeroHandleIsInvalid(t *testing.T) {
	t.Parallel()

	a := New[payload](0)
	assert.Equal(t, DefaultBucketSize, a.BucketSize())
	assert.True(t, Handle{}.IsZero())
	assert.False(t, a.Valid(Handle{}))
	assert.Panics(t, func() { a.Get(Handle{}) })
}

func TestArena_RemoveStaleHandlePanics(t *testing.T) {
	t.Parallel()

	a := New[payload](2)
	h, _ := a.Add(payload{ID: 7})
	a.Remove(h)
	assert.Panics(t, func() { a.Remove(h) }, "double remove must trap")

	// The slot is reused under a new generation; the old handle stays dead.
	h2, _ := a.Add(payload{ID: 8})
	assert.NotEqual(t, h, h2)
	assert.False(t, a.Valid(h))
	assert.Panics(t, func() { a.Get(h) })
}

func TestArena_GrowsByBucketsWithoutMovingElements(t *testing.T) {
	t.Parallel()

	a := New[payload](3)
	ptrs := make([]*payload, 0, 10)
	handles := make([]Handle, 0, 10)
	for i := range 10 {
		h, p := a.Add(payload{ID: i})
		ptrs = append(ptrs, p)
		handles = append(handles, h)
	}

	assert.Equal(t, 4, a.Buckets())
	assert.Equal(t, 12, a.Cap())
	for i, h := range handles {
		assert.Same(t, ptrs[i], a.Get(h))
		assert.Equal(t, i, a.Get(h).ID)
	}
}

func TestArena_FullBucketBecomesAvailableAfterRemove(t *testing.T) {
	t.Parallel()

	a := New[payload](2)
	h0, _ := a.Add(payload{ID: 0})
	a.Add(payload{ID: 1})
	a.Add(payload{ID: 2}) // opens a second bucket
	require.Equal(t, 2, a.Buckets())

	a.Remove(h0)
	a.Add(payload{ID: 3})
	a.Add(payload{ID: 4})

	assert.Equal(t, 4, a.Len())
	assert.Equal(t, 2, a.Buckets(), "freed slot in the first bucket must be reused")
}

func TestArena_ForEachSkipsRemovedAndStopsEarly(t *testing.T) {
	t.Parallel()

	a := New[payload](4)
	var handles []Handle
	for i := range 8 {
		h, _ := a.Add(payload{ID: i})
		handles = append(handles, h)
	}
	a.Remove(handles[1])
	a.Remove(handles[6])

	var seen []int
	a.ForEach(func(_ Handle, p *payload) bool {
		seen = append(seen, p.ID)
		return true
	})
	assert.Equal(t, []int{0, 2, 3, 4, 5, 7}, seen)

	seen = seen[:0]
	a.ForEach(func(_ Handle, p *payload) bool {
		seen = append(seen, p.ID)
		return len(seen) < 3
	})
	assert.Equal(t, []int{0, 2, 3}, seen)

	// Aborting the walk must leave bookkeeping intact.
	h, _ := a.Add(payload{ID: 100})
	assert.Equal(t, 7, a.Len())
	assert.Equal(t, 100, a.Get(h).ID)
}

func TestArena_ClearInvalidatesEverything(t *testing.T) {
	t.Parallel()

	a := New[payload](3)
	var handles []Handle
	for i := range 5 {
		h, _ := a.Add(payload{ID: i})
		handles = append(handles, h)
	}
	a.Clear()
	assert.Equal(t, 0, a.Len())
	for _, h := range handles {
		assert.False(t, a.Valid(h))
	}
	assert.Empty(t, a.Handles())
}

// Randomised Add/Remove sequences: a pointer obtained from Add keeps its
// address and contents until its own Remove.
func TestArena_PointerStabilityProperty(t *testing.T) {
	t.Parallel()

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))
		a := New[payload](1 + rng.IntN(16))

		type live struct {
			h   Handle
			p   *payload
			val int
		}
		var alive []live
		next := 0

		for range 2000 {
			if len(alive) == 0 || rng.IntN(3) != 0 {
				h, p := a.Add(payload{ID: next})
				alive = append(alive, live{h: h, p: p, val: next})
				next++
			} else {
				i := rng.IntN(len(alive))
				a.Remove(alive[i].h)
				alive[i] = alive[len(alive)-1]
				alive = alive[:len(alive)-1]
			}

			if rng.IntN(50) == 0 {
				for _, l := range alive {
					got := a.Get(l.h)
					require.Same(t, l.p, got, "seed %d: element moved", seed)
					require.Equal(t, l.val, got.ID, "seed %d: element changed", seed)
				}
			}
		}
		require.Equal(t, len(alive), a.Len())
		require.Len(t, a.Handles(), len(alive))
	}
}
