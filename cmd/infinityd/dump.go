package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/l1jgo/infinity/internal/core/lattice"
)

// latticeDump is the JSON written to [debug].dump_path at shutdown.
type latticeDump struct {
	Ticks    uint64             `json:"ticks"`
	Entities int                `json:"entities"`
	Nodes    []lattice.NodeInfo `json:"nodes"`
}

func dumpLattice(path string, w *ecs.World, ticks uint64) error {
	raw, err := json.MarshalIndent(latticeDump{
		Ticks:    ticks,
		Entities: w.Len(),
		Nodes:    w.Lattice().Snapshot(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lattice: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dump dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write lattice dump: %w", err)
	}
	return nil
}
