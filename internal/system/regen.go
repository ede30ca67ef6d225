package system

import (
	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// RegenSystem heals living entities by Amount every Interval ticks, capped at
// Max. Phase 3 (PostUpdate), after damage so a killing blow is never undone.
type RegenSystem struct {
	c         component.Set
	interval  uint64
	amount    int
	tickCount uint64
}

func NewRegenSystem(c component.Set, interval uint64, amount int) *RegenSystem {
	if interval == 0 {
		interval = 1
	}
	return &RegenSystem{c: c, interval: interval, amount: amount}
}

func (s *RegenSystem) Name() string { return "regen" }

func (s *RegenSystem) Access() coresys.Access {
	return coresys.Access{Writes: []*archetype.Type{s.c.Health.Type()}}
}

func (s *RegenSystem) Update(ctx *coresys.Context) error {
	s.tickCount++
	if s.tickCount%s.interval != 0 {
		return nil
	}
	ecs.Each1(ctx.Lists, s.c.Health, func(_ *ecs.Entity, h *component.Health) {
		if h.HP <= 0 || h.HP >= h.Max {
			return
		}
		h.HP = min(h.HP+s.amount, h.Max)
	})
	return nil
}
