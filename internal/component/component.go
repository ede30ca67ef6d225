// Package component holds the component kinds the daemon ships with.
package component

import (
	"fmt"

	"github.com/l1jgo/infinity/internal/core/ecs"
)

// DefaultHP is the hit points a new Health starts with.
const DefaultHP = 100

// Set is the registered accessor for every built-in component.
type Set struct {
	Transform ecs.Component[Transform]
	Velocity  ecs.Component[Velocity]
	Mesh      ecs.Component[Mesh]
	Light     ecs.Component[Light]
	Health    ecs.Component[Health]
	Lifetime  ecs.Component[Lifetime]
	Hazard    ecs.Component[Hazard]
}

// Register adds the built-in components to reg.
func Register(reg *ecs.Registry) (Set, error) {
	var (
		s   Set
		err error
	)
	if s.Transform, err = ecs.Register[Transform](reg); err != nil {
		return s, fmt.Errorf("register Transform: %w", err)
	}
	if s.Velocity, err = ecs.Register[Velocity](reg); err != nil {
		return s, fmt.Errorf("register Velocity: %w", err)
	}
	if s.Mesh, err = ecs.Register[Mesh](reg, ecs.WithDefault(func(m *Mesh) { m.Visible = true })); err != nil {
		return s, fmt.Errorf("register Mesh: %w", err)
	}
	if s.Light, err = ecs.Register[Light](reg, ecs.WithDefault(func(l *Light) {
		l.Base = 1
		l.Intensity = 1
		l.Rate = 1
	})); err != nil {
		return s, fmt.Errorf("register Light: %w", err)
	}
	if s.Health, err = ecs.Register[Health](reg, ecs.WithDefault(func(h *Health) {
		h.HP = DefaultHP
		h.Max = DefaultHP
	})); err != nil {
		return s, fmt.Errorf("register Health: %w", err)
	}
	if s.Lifetime, err = ecs.Register[Lifetime](reg); err != nil {
		return s, fmt.Errorf("register Lifetime: %w", err)
	}
	if s.Hazard, err = ecs.Register[Hazard](reg, ecs.WithDefault(func(h *Hazard) {
		h.Radius = 1
		h.Damage = 1
	})); err != nil {
		return s, fmt.Errorf("register Hazard: %w", err)
	}
	return s, nil
}
