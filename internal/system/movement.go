package system

import (
	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// MovementSystem integrates Velocity into Transform.
// Phase 2 (Update).
type MovementSystem struct {
	c component.Set
}

func NewMovementSystem(c component.Set) *MovementSystem {
	return &MovementSystem{c: c}
}

func (s *MovementSystem) Name() string { return "movement" }

func (s *MovementSystem) Access() coresys.Access {
	return coresys.Access{
		Reads:  []*archetype.Type{s.c.Velocity.Type()},
		Writes: []*archetype.Type{s.c.Transform.Type()},
	}
}

func (s *MovementSystem) Update(ctx *coresys.Context) error {
	dt := ctx.DT.Seconds()
	ecs.Each2(ctx.Lists, s.c.Transform, s.c.Velocity, func(_ *ecs.Entity, t *component.Transform, v *component.Velocity) {
		t.X += v.DX * dt
		t.Y += v.DY * dt
		t.Z += v.DZ * dt
	})
	return nil
}
