package system

import (
	"fmt"

	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/engine"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// Options tunes the built-in systems.
type Options struct {
	Bounds        float64 // cleanup half-width; 0 disables
	RegenInterval uint64  // ticks between heals
	RegenAmount   int
}

// Builtin holds the registered built-in systems the daemon reports on.
type Builtin struct {
	Damage *DamageSystem
	Render *RenderStatsSystem
}

// Install registers the built-in systems and the damage event on eng.
func Install(eng *engine.Engine, c component.Set, opts Options) (Builtin, error) {
	damage := NewDamageEvent(c)
	eng.RegisterEvent(damage)

	b := Builtin{
		Damage: NewDamageSystem(c, damage),
		Render: NewRenderStatsSystem(c),
	}
	steps := []struct {
		sys  coresys.System
		opts []coresys.Option
	}{
		{NewMovementSystem(c), nil},
		{NewLifetimeSystem(c), nil},
		{NewFlickerSystem(c), nil},
		{NewHazardSystem(c, damage.Sender()), []coresys.Option{coresys.After("movement")}},
		{b.Damage, []coresys.Option{coresys.WithPhase(coresys.PhasePostUpdate)}},
		{NewRegenSystem(c, opts.RegenInterval, opts.RegenAmount), []coresys.Option{
			coresys.WithPhase(coresys.PhasePostUpdate), coresys.After("damage"),
		}},
		{b.Render, []coresys.Option{coresys.WithPhase(coresys.PhaseRender)}},
		{NewCleanupSystem(c, opts.Bounds), []coresys.Option{coresys.WithPhase(coresys.PhaseCleanup)}},
	}
	for _, st := range steps {
		if err := eng.Register(st.sys, st.opts...); err != nil {
			return b, fmt.Errorf("register %s: %w", st.sys.Name(), err)
		}
	}
	return b, nil
}
