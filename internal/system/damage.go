package system

import (
	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/event"
	coresys "github.com/l1jgo/infinity/internal/core/system"
	"github.com/l1jgo/infinity/internal/spatial"
	"go.uber.org/zap"
)

// Damage is one hit queued against an entity with Health.
type Damage struct {
	Amount int
	Source ecs.EntityID
}

// NewDamageEvent creates the damage event routed over every archetype with Health.
func NewDamageEvent(c component.Set) *event.Event[Damage] {
	return event.New[Damage]("damage", archetype.Create(c.Health.Type()))
}

// HazardSystem raises Damage for every Health entity within a hazard's radius.
// It only holds the event's Sender. Phase 2 (Update), after movement.
type HazardSystem struct {
	c       component.Set
	send    event.Sender[Damage]
	targets archetype.Archetype
	grid    *spatial.Grid
}

// hazardCell is the grid cell size; hazards rarely reach further than this.
const hazardCell = 4

func NewHazardSystem(c component.Set, send event.Sender[Damage]) *HazardSystem {
	return &HazardSystem{
		c:       c,
		send:    send,
		targets: archetype.Create(c.Transform.Type(), c.Health.Type()),
		grid:    spatial.NewGrid(hazardCell),
	}
}

func (s *HazardSystem) Name() string { return "hazard" }

func (s *HazardSystem) Access() coresys.Access {
	return coresys.Access{Reads: []*archetype.Type{s.c.Transform.Type(), s.c.Hazard.Type()}}
}

func (s *HazardSystem) Update(ctx *coresys.Context) error {
	s.grid.Reset()
	ecs.Each1(ctx.World.Query(s.targets), s.c.Transform, func(e *ecs.Entity, t *component.Transform) {
		s.grid.Add(e, t.X, t.Y)
	})
	if s.grid.Len() == 0 {
		return nil
	}
	ecs.Each2(ctx.Lists, s.c.Transform, s.c.Hazard, func(src *ecs.Entity, at *component.Transform, hz *component.Hazard) {
		r2 := hz.Radius * hz.Radius
		s.grid.Nearby(at.X, at.Y, hz.Radius, func(dst *ecs.Entity) bool {
			if dst.ID() == src.ID() {
				return true
			}
			t := s.c.Transform.Get(dst)
			dx, dy, dz := t.X-at.X, t.Y-at.Y, t.Z-at.Z
			if dx*dx+dy*dy+dz*dz <= r2 {
				s.send.Add(dst, Damage{Amount: hz.Damage, Source: src.ID()})
			}
			return true
		})
	})
	return nil
}

// DamageSystem drains the damage event into Health and queues destruction of
// entities that drop to zero. Phase 3 (PostUpdate).
type DamageSystem struct {
	c      component.Set
	events *event.Event[Damage]
	killed int
}

func NewDamageSystem(c component.Set, events *event.Event[Damage]) *DamageSystem {
	return &DamageSystem{c: c, events: events}
}

func (s *DamageSystem) Name() string { return "damage" }

func (s *DamageSystem) Access() coresys.Access {
	return coresys.Access{Writes: []*archetype.Type{s.c.Health.Type()}}
}

// Killed is the number of entities this system has destroyed so far.
func (s *DamageSystem) Killed() int { return s.killed }

func (s *DamageSystem) Update(ctx *coresys.Context) error {
	processed, discarded := s.events.ProcessEvents(ctx.World, func(e *ecs.Entity, d Damage) {
		h := s.c.Health.Get(e)
		if h.HP <= 0 {
			return // already dying this tick
		}
		h.HP = max(h.HP-d.Amount, 0)
		if h.HP == 0 {
			s.killed++
			ctx.Commands.DestroyEntityAsync(e.ID())
		}
	})
	if discarded > 0 {
		ctx.Log.Debug("stale damage discarded",
			zap.Uint64("tick", ctx.Tick),
			zap.Int("processed", processed),
			zap.Int("discarded", discarded))
	}
	return nil
}
