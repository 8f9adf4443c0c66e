package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/state"
)

// DefaultTickInterval is the cadence of the visual walker.
const DefaultTickInterval = 300 * time.Millisecond

// Ticker moves the visualization walker on a fixed wall-clock cadence.
type Ticker struct {
	coord    *state.Coordinator
	interval time.Duration
	budget   int
	rng      *rand.Rand
}

// NewTicker creates a ticker. A non-positive budget falls back to the coordinator's max
// steps, a non-positive interval to DefaultTickInterval.
func NewTicker(coord *state.Coordinator, interval time.Duration, budget int, seed uint64) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if budget <= 0 {
		budget = coord.MaxSteps()
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Ticker{
		coord:    coord,
		interval: interval,
		budget:   budget,
		rng:      rand.New(rand.NewPCG(seed, 0x7469636b)),
	}
}

// Run steps the walker until the budget is spent, the simulation finishes or ctx ends.
// It returns the number of steps applied.
func (t *Ticker) Run(ctx context.Context) int {
	terrain := t.coord.Terrain()
	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	steps := 0
	for steps < t.budget {
		select {
		case <-ctx.Done():
			return steps
		case <-t.coord.Done():
			return steps
		case <-tick.C:
		}
		pos, err := t.coord.StepWalker(terrain, t.rng)
		if errors.Is(err, state.ErrFinished) {
			return steps
		}
		steps++
		logging.GetLogger().Debugf("Walker at (%d,%d) after %d ticks", pos.X, pos.Y, steps)
	}
	return steps
}
