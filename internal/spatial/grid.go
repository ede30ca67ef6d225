// Package spatial buckets entities into a uniform 2D cell grid for range queries.
package spatial

import (
	"math"

	"github.com/l1jgo/infinity/internal/core/ecs"
)

// Grid is a cell-based neighbourhood index over the X/Y plane. It holds entity
// pointers, so it is only valid until the next structural change: systems
// rebuild it each tick. Accessed from one system at a time, no locks.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]entry
	n        int
}

type cellKey struct {
	cx int64
	cy int64
}

type entry struct {
	e    *ecs.Entity
	x, y float64
}

func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]entry),
	}
}

func (g *Grid) toCell(v float64) int64 {
	return int64(math.Floor(v / g.cellSize))
}

// Reset empties the grid, keeping cell storage for reuse.
func (g *Grid) Reset() {
	for k, cell := range g.cells {
		g.cells[k] = cell[:0]
	}
	g.n = 0
}

// Add places e at (x, y).
func (g *Grid) Add(e *ecs.Entity, x, y float64) {
	k := cellKey{cx: g.toCell(x), cy: g.toCell(y)}
	g.cells[k] = append(g.cells[k], entry{e: e, x: x, y: y})
	g.n++
}

func (g *Grid) Len() int { return g.n }

// Nearby calls fn for every entity within radius of (x, y) on the plane.
// Returning false from fn stops the scan.
func (g *Grid) Nearby(x, y, radius float64, fn func(e *ecs.Entity) bool) {
	r2 := radius * radius
	minX, maxX := g.toCell(x-radius), g.toCell(x+radius)
	minY, maxY := g.toCell(y-radius), g.toCell(y+radius)
	for cx := minX; cx <= maxX; cx++ {
		for cy := minY; cy <= maxY; cy++ {
			for _, en := range g.cells[cellKey{cx: cx, cy: cy}] {
				dx, dy := en.x-x, en.y-y
				if dx*dx+dy*dy > r2 {
					continue
				}
				if !fn(en.e) {
					return
				}
			}
		}
	}
}
