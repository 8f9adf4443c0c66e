package core

import (
	"errors"
	"fmt"
)

// MaxGridSize bounds the world dimension so a grid and its per-replication tally stay
// within a few hundred megabytes.
const MaxGridSize = 4096

// ErrGridSize is returned for a dimension outside [1, MaxGridSize].
var ErrGridSize = errors.New("grid size out of range")

// Cell holds the per-cell obstacle flag and accumulated trial statistics.
type Cell struct {
	Obstacle bool
	// TotalSteps sums the step counts of successful trials started here.
	TotalSteps int64
	// Successes counts trials started here that reached the center.
	Successes int64
}

// Grid is a square world of Size×Size cells stored row-major.
type Grid struct {
	Size  int
	cells []Cell
}

// NewGrid allocates a zeroed grid. The size is checked before anything is allocated.
func NewGrid(size int) (*Grid, error) {
	if size <= 0 || size > MaxGridSize {
		return nil, fmt.Errorf("%w: got %d, want 1..%d", ErrGridSize, size, MaxGridSize)
	}
	return &Grid{Size: size, cells: make([]Cell, size*size)}, nil
}

// Center returns the target cell.
func (g *Grid) Center() Position {
	return Position{X: g.Size / 2, Y: g.Size / 2}
}

// Contains reports whether p lies inside the grid.
func (g *Grid) Contains(p Position) bool {
	return p.X >= 0 && p.X < g.Size && p.Y >= 0 && p.Y < g.Size
}

// At returns a pointer to the cell at (x, y). Callers must stay in bounds.
func (g *Grid) At(x, y int) *Cell {
	return &g.cells[y*g.Size+x]
}

// IsObstacle reports whether (x, y) is blocked. Out-of-bounds cells are not obstacles.
func (g *Grid) IsObstacle(x, y int) bool {
	if x < 0 || x >= g.Size || y < 0 || y >= g.Size {
		return false
	}
	return g.cells[y*g.Size+x].Obstacle
}

// SetObstacle marks or clears a cell.
func (g *Grid) SetObstacle(x, y int, blocked bool) {
	g.cells[y*g.Size+x].Obstacle = blocked
}

// ClearCenter removes an obstacle from the center cell. It reports whether one was removed.
func (g *Grid) ClearCenter() bool {
	c := g.Center()
	cell := g.At(c.X, c.Y)
	if !cell.Obstacle {
		return false
	}
	cell.Obstacle = false
	return true
}

// Record adds one successful trial of the given length to (x, y).
func (g *Grid) Record(x, y int, steps int) {
	cell := g.At(x, y)
	cell.Successes++
	cell.TotalSteps += int64(steps)
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{Size: g.Size, cells: make([]Cell, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// Obstacles returns a copy of the obstacle flags, row-major.
func (g *Grid) Obstacles() []bool {
	out := make([]bool, len(g.cells))
	for i, c := range g.cells {
		out[i] = c.Obstacle
	}
	return out
}

// Equal reports whether two grids hold identical cells.
func (g *Grid) Equal(other *Grid) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.Size != other.Size {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}
