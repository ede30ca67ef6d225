// Package data loads the YAML files that seed a world.
package data

import (
	"fmt"
	"os"

	"github.com/l1jgo/infinity/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// SpawnGroup creates Count identical entities of one archetype. Values maps a
// component name to the fields it starts with; keys are lowercased Go field
// names (yaml.v3 defaults), so Transform's X is "x".
type SpawnGroup struct {
	Archetype []string             `yaml:"archetype"`
	Count     int                  `yaml:"count"`
	Values    map[string]yaml.Node `yaml:"values"`
}

// Scene is the initial population of a world.
type Scene struct {
	Name     string       `yaml:"name"`
	Entities []SpawnGroup `yaml:"entities"`
}

// LoadScene loads a scene YAML file.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	for i := range s.Entities {
		g := &s.Entities[i]
		switch {
		case len(g.Archetype) == 0:
			return nil, fmt.Errorf("scene %s: group %d has no archetype", path, i)
		case g.Count < 0:
			return nil, fmt.Errorf("scene %s: group %d has negative count %d", path, i, g.Count)
		case g.Count == 0:
			g.Count = 1
		}
	}
	return &s, nil
}

// Count returns the number of entities the scene spawns.
func (s *Scene) Count() int {
	n := 0
	for _, g := range s.Entities {
		n += g.Count
	}
	return n
}

// Spawn creates the scene's entities in w and returns how many were created.
// Component names are resolved against the world's registry; an unknown name,
// or a value for a component outside the group's archetype, is an error.
func Spawn(w *ecs.World, s *Scene) (int, error) {
	created := 0
	for i, g := range s.Entities {
		a, err := w.Registry().Archetype(g.Archetype...)
		if err != nil {
			return created, fmt.Errorf("group %d: %w", i, err)
		}
		for name := range g.Values {
			t, err := w.Registry().Lookup(name)
			if err != nil {
				return created, fmt.Errorf("group %d values: %w", i, err)
			}
			if !a.Has(t) {
				return created, fmt.Errorf("group %d: values for %s, which is not in %s", i, name, a)
			}
		}

		decode := func(e *ecs.Entity) error {
			for name, node := range g.Values {
				t, _ := w.Registry().Lookup(name)
				p, _ := e.Pointer(t)
				if err := node.Decode(p); err != nil {
					return fmt.Errorf("decode %s: %w", name, err)
				}
			}
			return nil
		}
		for range g.Count {
			if _, err := w.CreateEntityWith(a, decode); err != nil {
				return created, fmt.Errorf("group %d: %w", i, err)
			}
			created++
		}
	}
	return created, nil
}
