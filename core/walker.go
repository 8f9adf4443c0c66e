package core

// Position is a cell coordinate; X is the column and Y the row.
type Position struct {
	X, Y int
}

// Direction is one of the four step directions.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// Offset returns the (dx, dy) for a direction. Up decreases Y.
func (d Direction) Offset() (int, int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	default:
		return 1, 0
	}
}

// Sampler yields uniform samples in [0, 1).
type Sampler interface {
	Float64() float64
}

// Terrain is the read-only part of the world a walker needs to move.
// It is built once per run and shared by workers without locking.
type Terrain struct {
	size      int
	obstacles []bool
	bounded   bool
	t1        float64
	t2        float64
	t3        float64
}

// NewTerrain copies the obstacle layout of g. In bounded mode moves are blocked by
// edges and obstacles; otherwise the world wraps around.
func NewTerrain(g *Grid, probs Probabilities, bounded bool) *Terrain {
	t := &Terrain{
		size:      g.Size,
		obstacles: g.Obstacles(),
		bounded:   bounded,
	}
	t.t1, t.t2, t.t3 = probs.Thresholds()
	return t
}

// Size returns the world dimension.
func (t *Terrain) Size() int { return t.size }

// Bounded reports whether obstacle mode is on.
func (t *Terrain) Bounded() bool { return t.bounded }

// Center returns the target cell.
func (t *Terrain) Center() Position { return Position{X: t.size / 2, Y: t.size / 2} }

// Blocked reports whether (x, y) is an obstacle cell.
func (t *Terrain) Blocked(x, y int) bool {
	return t.obstacles[y*t.size+x]
}

// ChooseDirection maps a sample r to a direction using the cumulative thresholds.
func (t *Terrain) ChooseDirection(r float64) Direction {
	switch {
	case r < t.t1:
		return Up
	case r < t.t2:
		return Down
	case r < t.t3:
		return Left
	default:
		return Right
	}
}

// Move applies direction d to pos. Toroidal worlds wrap unconditionally; bounded worlds
// reject moves that leave the grid or land on an obstacle.
func (t *Terrain) Move(pos Position, d Direction) Position {
	dx, dy := d.Offset()
	nx, ny := pos.X+dx, pos.Y+dy
	if !t.bounded {
		return Position{X: (nx + t.size) % t.size, Y: (ny + t.size) % t.size}
	}
	if nx < 0 || nx >= t.size || ny < 0 || ny >= t.size || t.Blocked(nx, ny) {
		return pos
	}
	return Position{X: nx, Y: ny}
}

// Step draws one sample and moves the walker.
func (t *Terrain) Step(pos Position, rng Sampler) Position {
	return t.Move(pos, t.ChooseDirection(rng.Float64()))
}

// Trial walks from start for at most maxSteps steps. It returns the number of steps
// taken to reach the center and true, or (0, false) when the budget runs out.
// A start on the center succeeds with 0 steps.
func (t *Terrain) Trial(start Position, maxSteps int, rng Sampler) (int, bool) {
	center := t.Center()
	pos := start
	for s := 0; s <= maxSteps; s++ {
		if pos == center {
			return s, true
		}
		if s == maxSteps {
			break
		}
		pos = t.Step(pos, rng)
	}
	return 0, false
}
