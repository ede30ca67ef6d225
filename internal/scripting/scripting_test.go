package scripting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/engine"
	coresys "github.com/l1jgo/infinity/internal/core/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type transform struct{ X, Y float64 }
type velocity struct{ DX, DY float64 }
type health struct {
	Owner uint64 `ecs:"meta"`
	HP    int
	Name  string
	Alive bool
}

type fixture struct {
	reg *ecs.Registry
	w   *ecs.World
	eng *engine.Engine
	tr  ecs.Component[transform]
	vel ecs.Component[velocity]
	hp  ecs.Component[health]
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := ecs.NewRegistry()
	f := fixture{
		reg: reg,
		tr:  ecs.MustRegister[transform](reg, ecs.WithName[transform]("Transform")),
		vel: ecs.MustRegister[velocity](reg, ecs.WithName[velocity]("Velocity")),
		hp:  ecs.MustRegister[health](reg, ecs.WithName[health]("Health")),
	}
	f.w = ecs.NewWorld(reg)
	f.eng = engine.New(f.w, engine.WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(f.eng.Close)
	return f
}

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	return dir
}

const moveScript = `
system = {name = "move", reads = {"Velocity"}, writes = {"Transform"}}
function update(dt, entity)
  entity.Transform.X = entity.Transform.X + entity.Velocity.DX * dt
  entity.Velocity.DX = 999 -- read-only, never copied back
end
`

const reaperScript = `
system = {name = "reaper", phase = "cleanup", writes = {"Health"}}
function update(dt, entity)
  local h = entity.Health
  h.HP = h.HP - 10
  h.Name = "hit"
  h.Alive = h.HP > 0
  h.Owner = 7 -- bookkeeping is not exposed
  if not h.Alive then
    destroy(entity.id)
  end
end
`

func TestEngine_LoadsAndRunsScripts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := writeScripts(t, map[string]string{
		"a_move.lua":   moveScript,
		"b_reaper.lua": reaperScript,
		"notes.txt":    "not a script",
	})

	se, err := NewEngine(dir, f.reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(se.Close)
	require.Len(t, se.Systems(), 2)
	assert.Equal(t, "move", se.Systems()[0].Name())
	assert.Equal(t, coresys.PhaseUpdate, se.Systems()[0].Phase())
	assert.Equal(t, coresys.PhaseCleanup, se.Systems()[1].Phase())
	require.NoError(t, se.Install(f.eng))

	mover, err := f.w.CreateEntity(archetype.Create(f.tr.Type(), f.vel.Type()))
	require.NoError(t, err)
	f.vel.Get(mover).DX = 2

	victim, err := f.w.CreateEntity(archetype.Create(f.hp.Type()))
	require.NoError(t, err)
	*f.hp.Get(victim) = health{HP: 15, Alive: true}
	victimID := victim.ID()

	_, err = f.eng.Tick(context.Background(), 500*time.Millisecond)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, f.tr.Get(mover).X, 1e-9)
	assert.Equal(t, 2.0, f.vel.Get(mover).DX)
	h := f.hp.Get(victim)
	assert.Equal(t, health{HP: 5, Name: "hit", Alive: true}, *h)

	_, err = f.eng.Tick(context.Background(), 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, f.w.Alive(victimID))
}

func TestEngine_MissingDirectory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	se, err := NewEngine(filepath.Join(t.TempDir(), "nope"), f.reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Empty(t, se.Systems())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `system = {`, "load"},
		{"no declaration", `function update() end`, "global table 'system'"},
		{"no update", `system = {name = "x"}`, "function 'update'"},
		{"unknown component", `system = {reads = {"Nope"}} function update() end`, "reads"},
		{"bad phase", `system = {phase = "later"} function update() end`, "phase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			dir := writeScripts(t, map[string]string{"s.lua": tt.src})
			_, err := Load(filepath.Join(dir, "s.lua"), f.reg, zaptest.NewLogger(t))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSystem_DefaultNameAndOrdering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := writeScripts(t, map[string]string{
		"first.lua":  `system = {writes = {"Transform"}} function update() end`,
		"second.lua": `system = {phase = "PreUpdate", before = {"first"}} function update() end`,
	})
	se, err := NewEngine(dir, f.reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(se.Close)

	require.Len(t, se.Systems(), 2)
	assert.Equal(t, "first", se.Systems()[0].Name())
	assert.Equal(t, coresys.PhasePreUpdate, se.Systems()[1].Phase())
	require.NoError(t, se.Install(f.eng))
	assert.Equal(t, 2, f.eng.Runner().Len())
}

func TestSystem_RuntimeErrorFailsTick(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := writeScripts(t, map[string]string{
		"boom.lua": `system = {name = "boom", reads = {"Health"}} function update(dt, e) error("kaboom") end`,
	})
	se, err := NewEngine(dir, f.reg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(se.Close)
	require.NoError(t, se.Install(f.eng))

	_, err = f.w.CreateEntity(archetype.Create(f.hp.Type()))
	require.NoError(t, err)

	_, err = f.eng.Tick(context.Background(), time.Millisecond)
	require.Error(t, err)
	assert.ErrorContains(t, err, "kaboom")
	assert.ErrorContains(t, err, "script boom")
}

func TestSystem_LogWritesDebug(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	core, logs := observer.New(zapcore.DebugLevel)
	dir := writeScripts(t, map[string]string{
		"chatty.lua": `system = {reads = {"Health"}} function update(dt, e) log("saw " .. e.id) end`,
	})
	se, err := NewEngine(dir, f.reg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(se.Close)
	require.NoError(t, se.Install(f.eng))

	_, err = f.w.CreateEntity(archetype.Create(f.hp.Type()))
	require.NoError(t, err)
	_, err = f.eng.Tick(context.Background(), time.Millisecond)
	require.NoError(t, err)

	var entries []observer.LoggedEntry
	for _, e := range logs.All() {
		if strings.HasPrefix(e.Message, "saw ") {
			entries = append(entries, e)
		}
	}
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
}
