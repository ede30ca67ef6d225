package system

import (
	"math"

	"github.com/l1jgo/infinity/internal/component"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
)

// FlickerSystem animates Light intensity. Phase 2 (Update).
type FlickerSystem struct {
	c component.Set
}

func NewFlickerSystem(c component.Set) *FlickerSystem {
	return &FlickerSystem{c: c}
}

func (s *FlickerSystem) Name() string { return "light_flicker" }

func (s *FlickerSystem) Access() coresys.Access {
	return coresys.Access{Writes: []*archetype.Type{s.c.Light.Type()}}
}

func (s *FlickerSystem) Update(ctx *coresys.Context) error {
	dt := ctx.DT.Seconds()
	ecs.Each1(ctx.Lists, s.c.Light, func(_ *ecs.Entity, l *component.Light) {
		l.Phase = math.Mod(l.Phase+2*math.Pi*l.Rate*dt, 2*math.Pi)
		l.Intensity = l.Base * (0.75 + 0.25*math.Sin(l.Phase))
	})
	return nil
}

// Frame is what the renderer would have submitted for one tick.
type Frame struct {
	Tick      uint64
	Meshes    int
	Visible   int
	Triangles int
	Lights    int
	Intensity float64 // summed intensity of lights that also carry a Transform
}

// RenderStatsSystem stands in for the renderer: it reads Transform, Mesh and
// Light and records a Frame. It never writes, so it runs alongside other
// readers. Phase 4 (Render).
type RenderStatsSystem struct {
	c     component.Set
	light archetype.Archetype
	last  Frame
}

func NewRenderStatsSystem(c component.Set) *RenderStatsSystem {
	return &RenderStatsSystem{
		c:     c,
		light: archetype.Create(c.Transform.Type(), c.Light.Type()),
	}
}

func (s *RenderStatsSystem) Name() string { return "render_stats" }

func (s *RenderStatsSystem) Access() coresys.Access {
	return coresys.Access{
		Reads:   []*archetype.Type{s.c.Transform.Type(), s.c.Mesh.Type()},
		Lookups: []*archetype.Type{s.c.Light.Type()},
	}
}

// Last returns the frame recorded by the most recent tick.
func (s *RenderStatsSystem) Last() Frame { return s.last }

func (s *RenderStatsSystem) Update(ctx *coresys.Context) error {
	f := Frame{Tick: ctx.Tick}
	ecs.Each1(ctx.Lists, s.c.Mesh, func(_ *ecs.Entity, m *component.Mesh) {
		f.Meshes++
		if m.Visible {
			f.Visible++
			f.Triangles += m.Triangles
		}
	})
	ecs.Each1(ctx.World.Query(s.light), s.c.Light, func(_ *ecs.Entity, l *component.Light) {
		f.Lights++
		f.Intensity += l.Intensity
	})
	s.last = f
	return nil
}
