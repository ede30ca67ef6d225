package system

import (
	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// CleanupSystem queues destruction of entities that left the world bounds
// (a cube of half-width Limit around the origin). Phase 5 (Cleanup).
type CleanupSystem struct {
	c     component.Set
	limit float64
}

func NewCleanupSystem(c component.Set, limit float64) *CleanupSystem {
	return &CleanupSystem{c: c, limit: limit}
}

func (s *CleanupSystem) Name() string { return "cleanup" }

func (s *CleanupSystem) Access() coresys.Access {
	return coresys.Access{Reads: []*archetype.Type{s.c.Transform.Type()}}
}

func (s *CleanupSystem) Update(ctx *coresys.Context) error {
	if s.limit <= 0 {
		return nil
	}
	ecs.Each1(ctx.Lists, s.c.Transform, func(e *ecs.Entity, t *component.Transform) {
		if abs(t.X) > s.limit || abs(t.Y) > s.limit || abs(t.Z) > s.limit {
			ctx.Commands.DestroyEntityAsync(e.ID())
		}
	})
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
