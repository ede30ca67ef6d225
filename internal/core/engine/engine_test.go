package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/event"
	"github.com/l1jgo/infinity/internal/core/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type position struct{ X float64 }
type velocity struct{ DX float64 }
type health struct{ HP int }

type hit struct{ Amount int }

type fixture struct {
	engine *Engine
	pos    ecs.Component[position]
	vel    ecs.Component[velocity]
	hp     ecs.Component[health]
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := ecs.NewRegistry()
	f := fixture{
		pos: ecs.MustRegister[position](reg),
		vel: ecs.MustRegister[velocity](reg),
		hp:  ecs.MustRegister[health](reg, ecs.WithDefault(func(h *health) { h.HP = 10 })),
	}
	w := ecs.NewWorld(reg, ecs.WithBucketSize(8))
	f.engine = New(w, WithLogger(zaptest.NewLogger(t)), WithWorkers(4), WithValidation(true))
	t.Cleanup(f.engine.Close)
	return f
}

func TestEngine_TickMovesAndAppliesCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.engine.World()
	moving := archetype.Create(f.pos.Type(), f.vel.Type())
	for range 3 {
		e, err := w.CreateEntity(moving)
		require.NoError(t, err)
		f.vel.Get(e).DX = 2
	}

	require.NoError(t, f.engine.Register(system.Func("movement",
		system.Access{Reads: []*archetype.Type{f.vel.Type()}, Writes: []*archetype.Type{f.pos.Type()}},
		func(ctx *system.Context) error {
			ecs.Each2(ctx.Lists, f.pos, f.vel, func(_ *ecs.Entity, p *position, v *velocity) {
				p.X += v.DX * ctx.DT.Seconds()
			})
			return nil
		})))
	require.NoError(t, f.engine.Register(system.Func("spawner", system.Access{}, func(ctx *system.Context) error {
		if ctx.Tick == 1 {
			ctx.Commands.CreateEntityAsync(archetype.Create(f.hp.Type()), nil)
		}
		return nil
	}), system.WithPhase(system.PhaseCleanup)))

	var added []event.ArchetypeAdded
	event.Subscribe(f.engine.Bus(), func(ev event.ArchetypeAdded) { added = append(added, ev) })

	stats, err := f.engine.Tick(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Tick)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 4, stats.Entities)
	assert.Equal(t, 2, stats.Added, "the spawned {position,velocity} and the queued {health}")
	assert.Empty(t, added, "delivered on the next tick")

	stats, err = f.engine.Tick(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Applied)
	require.Len(t, added, 2)
	assert.True(t, added[1].Archetype.Equal(archetype.Create(f.hp.Type())))
	assert.Equal(t, 2, stats.Notifications)

	ecs.Each1(w.Query(moving), f.pos, func(_ *ecs.Entity, p *position) {
		assert.InDelta(t, 4.0, p.X, 1e-9)
	})
	assert.Equal(t, uint64(2), f.engine.Ticks())
}

func TestEngine_EventsFlowFromProducerToConsumer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	w := f.engine.World()
	target, err := w.CreateEntity(archetype.Create(f.hp.Type(), f.pos.Type()))
	require.NoError(t, err)
	id := target.ID()

	hits := event.New[hit]("hit", archetype.Create(f.hp.Type()))
	f.engine.RegisterEvent(hits)
	send := hits.Sender()

	require.NoError(t, f.engine.Register(system.Func("hazard",
		system.Access{Reads: []*archetype.Type{f.pos.Type(), f.hp.Type()}},
		func(ctx *system.Context) error {
			ecs.Each(ctx.Lists, func(e *ecs.Entity) { send.Add(e, hit{Amount: 4}) })
			return nil
		})))
	require.NoError(t, f.engine.Register(system.Func("damage",
		system.Access{Writes: []*archetype.Type{f.hp.Type()}},
		func(ctx *system.Context) error {
			hits.ProcessEvents(ctx.World, func(e *ecs.Entity, h hit) {
				hp := f.hp.Get(e)
				hp.HP -= h.Amount
				if hp.HP <= 0 {
					ctx.Commands.DestroyEntityAsync(e.ID())
				}
			})
			return nil
		}), system.WithPhase(system.PhasePostUpdate)))

	_, err = f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	e, ok := w.Entity(id)
	require.True(t, ok)
	assert.Equal(t, 6, f.hp.Get(e).HP)

	_, err = f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	_, err = f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.False(t, w.Alive(id))
	assert.Equal(t, 0, hits.Len())
}

func TestEngine_FailedTickIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fail := true
	require.NoError(t, f.engine.Register(system.Func("flaky", system.Access{}, func(ctx *system.Context) error {
		ctx.Commands.CreateEntityAsync(archetype.Create(f.pos.Type()), nil)
		if fail {
			return errors.New("flaky failed")
		}
		return nil
	})))

	var failures []event.TickFailed
	event.Subscribe(f.engine.Bus(), func(ev event.TickFailed) { failures = append(failures, ev) })

	stats, err := f.engine.Tick(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.ErrorContains(t, err, "flaky failed")
	assert.Equal(t, 1, stats.Applied, "queued commands still reach the barrier")

	fail = false
	_, err = f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, uint64(1), failures[0].Tick)
}

type census struct {
	system.System
	created, destroyed int
}

func (c *census) EntityCreated(*ecs.Entity)   { c.created++ }
func (c *census) EntityDestroyed(*ecs.Entity) { c.destroyed++ }

func TestEngine_SystemHooksSeeBarrierCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	hpOnly := archetype.Create(f.hp.Type())
	c := &census{System: system.Func("census", system.Access{Reads: []*archetype.Type{f.hp.Type()}}, func(ctx *system.Context) error {
		if ctx.Tick == 1 {
			for range 3 {
				ctx.Commands.CreateEntityAsync(hpOnly, nil)
			}
			ctx.Commands.CreateEntityAsync(archetype.Create(f.pos.Type()), nil)
		}
		if ctx.Tick == 2 {
			ecs.Each(ctx.Lists, func(e *ecs.Entity) { ctx.Commands.DestroyEntityAsync(e.ID()) })
		}
		return nil
	})}
	require.NoError(t, f.engine.Register(c))

	_, err := f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, c.created, "only entities matching the query")
	assert.Equal(t, 0, c.destroyed)

	_, err = f.engine.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, c.destroyed)
	assert.Equal(t, 1, f.engine.World().Len())
}
