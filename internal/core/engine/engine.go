// Package engine drives the frame tick.
//
// One Tick delivers last tick's notifications and runs every system through
// the scheduler. At the barrier it applies the command buffer, re-routes
// event queues for the new lattice and emits notifications for the next tick.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/event"
	"github.com/l1jgo/infinity/internal/core/system"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TickStats summarises one tick.
type TickStats struct {
	Tick          uint64
	Duration      time.Duration
	Systems       time.Duration // time spent in the scheduler
	Entities      int
	Archetypes    int
	Applied       int // structural commands applied at the barrier
	Skipped       int
	Added         int // archetypes created this tick
	Removed       int
	Notifications int // bus notifications delivered at tick start
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithWorkers bounds scheduler parallelism.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithValidation checks lattice invariants after every barrier.
func WithValidation(on bool) Option {
	return func(e *Engine) { e.validate = on }
}

type Engine struct {
	world    *ecs.World
	runner   *system.Runner
	bus      *event.Bus
	log      *zap.Logger
	events   []event.Refresher
	workers  int
	validate bool
	tick     uint64
}

func New(world *ecs.World, opts ...Option) *Engine {
	e := &Engine{
		world: world,
		bus:   event.NewBus(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.runner = system.NewRunner(world, system.WithWorkers(e.workers), system.WithLogger(e.log))
	return e
}

func (e *Engine) World() *ecs.World      { return e.world }
func (e *Engine) Bus() *event.Bus        { return e.bus }
func (e *Engine) Runner() *system.Runner { return e.runner }
func (e *Engine) Ticks() uint64          { return e.tick }

func (e *Engine) Register(s system.System, opts ...system.Option) error {
	return e.runner.Register(s, opts...)
}

// RegisterEvent keeps an event's routes in step with the lattice.
func (e *Engine) RegisterEvent(r event.Refresher) {
	r.Refresh(e.world)
	e.events = append(e.events, r)
}

// Tick advances the world by dt. A failing system fails the tick; commands
// queued before the failure are still applied at the barrier so the world
// stays consistent, and a TickFailed notification is delivered next tick.
func (e *Engine) Tick(ctx context.Context, dt time.Duration) (TickStats, error) {
	e.tick++
	started := time.Now()
	stats := TickStats{Tick: e.tick}

	e.bus.SwapBuffers()
	stats.Notifications = e.bus.DispatchAll()

	sysStart := time.Now()
	runErr := e.runner.Tick(ctx, dt)
	stats.Systems = time.Since(sysStart)

	res, flushErr := e.world.Flush()
	stats.Applied = res.Applied
	stats.Skipped = res.Skipped
	stats.Added = len(res.Added)
	stats.Removed = len(res.Removed)

	for _, r := range e.events {
		r.Refresh(e.world)
	}

	for _, a := range res.Added {
		e.log.Debug("archetype added", zap.Uint64("tick", e.tick), zap.Stringer("archetype", a))
		event.Emit(e.bus, event.ArchetypeAdded{Tick: e.tick, Archetype: a})
	}
	for _, a := range res.Removed {
		e.log.Debug("archetype removed", zap.Uint64("tick", e.tick), zap.Stringer("archetype", a))
		event.Emit(e.bus, event.ArchetypeRemoved{Tick: e.tick, Archetype: a})
	}

	var validateErr error
	if e.validate {
		validateErr = e.world.Lattice().Validate()
	}

	stats.Entities = e.world.Len()
	stats.Archetypes = e.world.Archetypes()
	stats.Duration = time.Since(started)

	if err := errors.Join(runErr, flushErr, validateErr); err != nil {
		e.log.Error("tick failed", zap.Uint64("tick", e.tick), zap.Error(err))
		event.Emit(e.bus, event.TickFailed{Tick: e.tick, Err: err})
		return stats, eris.Wrapf(err, "tick %d", e.tick)
	}
	return stats, nil
}

// Close stops scheduling and releases the systems' query anchors.
func (e *Engine) Close() {
	e.runner.Close()
}
