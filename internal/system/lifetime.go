package system

import (
	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// LifetimeSystem counts Lifetime down and queues destruction of expired
// entities. Phase 2 (Update).
type LifetimeSystem struct {
	c component.Set
}

func NewLifetimeSystem(c component.Set) *LifetimeSystem {
	return &LifetimeSystem{c: c}
}

func (s *LifetimeSystem) Name() string { return "lifetime" }

func (s *LifetimeSystem) Access() coresys.Access {
	return coresys.Access{Writes: []*archetype.Type{s.c.Lifetime.Type()}}
}

func (s *LifetimeSystem) Update(ctx *coresys.Context) error {
	dt := ctx.DT.Seconds()
	ecs.Each1(ctx.Lists, s.c.Lifetime, func(e *ecs.Entity, l *component.Lifetime) {
		if l.Remaining <= 0 {
			return // already queued
		}
		l.Remaining -= dt
		if l.Remaining <= 0 {
			ctx.Commands.DestroyEntityAsync(e.ID())
		}
	})
	return nil
}
