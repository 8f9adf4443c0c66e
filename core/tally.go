package core

// Tally buffers the successful trials of one replication before they are merged into
// the shared grid in a single locked step.
type Tally struct {
	size  int
	steps []int64
	hits  []int64
}

// NewTally allocates a tally for a size×size world.
func NewTally(size int) *Tally {
	return &Tally{size: size, steps: make([]int64, size*size), hits: make([]int64, size*size)}
}

// Add records one success at (x, y).
func (t *Tally) Add(x, y, steps int) {
	i := y*t.size + x
	t.hits[i]++
	t.steps[i] += int64(steps)
}

// Reset zeroes the tally for reuse.
func (t *Tally) Reset() {
	clear(t.steps)
	clear(t.hits)
}

// Merge adds a tally into the grid. Sizes must match.
func (g *Grid) Merge(t *Tally) {
	for i := range g.cells {
		g.cells[i].Successes += t.hits[i]
		g.cells[i].TotalSteps += t.steps[i]
	}
}
