package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transform struct{ X, Y float64 }
type health struct {
	HP  int
	Max int
}

func writeScene(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newWorld() (*ecs.World, ecs.Component[transform], ecs.Component[health]) {
	reg := ecs.NewRegistry()
	tr := ecs.MustRegister[transform](reg, ecs.WithName[transform]("Transform"))
	hp := ecs.MustRegister[health](reg, ecs.WithName[health]("Health"), ecs.WithDefault(func(h *health) {
		h.HP, h.Max = 100, 100
	}))
	return ecs.NewWorld(reg), tr, hp
}

func TestLoadSceneAndSpawn(t *testing.T) {
	t.Parallel()

	path := writeScene(t, `
name: test
entities:
  - archetype: [Transform, Health]
    count: 3
    values:
      Transform: {x: 2, y: -1}
      Health: {hp: 40}
  - archetype: [Transform]
`)
	s, err := LoadScene(path)
	require.NoError(t, err)
	assert.Equal(t, "test", s.Name)
	assert.Equal(t, 4, s.Count(), "count defaults to one")

	w, tr, hp := newWorld()
	n, err := Spawn(w, s)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, w.Len())

	lists := w.Query(archetype.Create(tr.Type(), hp.Type()))
	var seen int
	ecs.Each2(lists, tr, hp, func(_ *ecs.Entity, p *transform, h *health) {
		seen++
		assert.Equal(t, transform{X: 2, Y: -1}, *p)
		assert.Equal(t, health{HP: 40, Max: 100}, *h, "unset fields keep their defaults")
	})
	assert.Equal(t, 3, seen)
}

func TestLoadScene_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadScene(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read scene")

	_, err = LoadScene(writeScene(t, "entities: [{count: 2}]"))
	assert.ErrorContains(t, err, "no archetype")

	_, err = LoadScene(writeScene(t, "entities: [{archetype: [Transform], count: -1}]"))
	assert.ErrorContains(t, err, "negative count")

	_, err = LoadScene(writeScene(t, "entities: {"))
	assert.ErrorContains(t, err, "parse scene")
}

func TestSpawn_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown archetype member", "entities: [{archetype: [Nope]}]", "group 0"},
		{"unknown value component", "entities: [{archetype: [Transform], values: {Nope: {}}}]", "group 0 values"},
		{"value outside archetype", "entities: [{archetype: [Transform], values: {Health: {hp: 1}}}]", "not in"},
		{"bad field type", "entities: [{archetype: [Health], values: {Health: {hp: lots}}}]", "decode Health"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := LoadScene(writeScene(t, tt.src))
			require.NoError(t, err)
			w, _, _ := newWorld()
			_, err = Spawn(w, s)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestSampleScene(t *testing.T) {
	t.Parallel()

	s, err := LoadScene(filepath.Join("..", "..", "config", "scene.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 279, s.Count())
}

type hpWatcher struct {
	arch archetype.Archetype
	hp   ecs.Component[health]
	seen []int
}

func (h *hpWatcher) Archetype() archetype.Archetype { return h.arch }
func (h *hpWatcher) EntityCreated(e *ecs.Entity)    { h.seen = append(h.seen, h.hp.Get(e).HP) }
func (h *hpWatcher) EntityDestroyed(*ecs.Entity)    {}

func TestSpawn_HooksSeeSceneValues(t *testing.T) {
	t.Parallel()

	w, _, hp := newWorld()
	watch := &hpWatcher{arch: archetype.Create(hp.Type()), hp: hp}
	w.Subscribe(watch)

	s, err := LoadScene(writeScene(t, "entities: [{archetype: [Health], count: 2, values: {Health: {hp: 7}}}]"))
	require.NoError(t, err)
	_, err = Spawn(w, s)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 7}, watch.seen)

	bad, err := LoadScene(writeScene(t, "entities: [{archetype: [Health], values: {Health: {hp: lots}}}]"))
	require.NoError(t, err)
	_, err = Spawn(w, bad)
	require.Error(t, err)
	assert.Len(t, watch.seen, 2, "a failed decode is never announced")
	assert.Equal(t, 2, w.Len())
}
