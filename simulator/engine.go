// Package simulator runs the statistical random-walk engine and the visual walker.
package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/state"
)

// EngineConfig tunes how trials are executed.
type EngineConfig struct {
	// Workers is the number of goroutines sharing one replication. Zero means GOMAXPROCS.
	Workers int
	// Seed makes runs reproducible. Zero draws a random seed.
	Seed uint64
	// Metrics is optional.
	Metrics *Metrics
}

// Engine simulates replications and commits each one to the coordinator as a unit.
type Engine struct {
	coord   *state.Coordinator
	workers int
	seed    uint64
	metrics *Metrics
}

// NewEngine binds an engine to the coordinator.
func NewEngine(coord *state.Coordinator, cfg EngineConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Engine{coord: coord, workers: workers, seed: seed, metrics: cfg.Metrics}
}

// Seed returns the seed in use.
func (e *Engine) Seed() uint64 { return e.seed }

// Run executes the remaining replications. It sets the finished flag when the budget is
// spent and returns early, without finishing, when ctx is cancelled or another party
// finishes the simulation. A replication interrupted midway is discarded.
func (e *Engine) Run(ctx context.Context) error {
	terrain := e.coord.Terrain()
	maxSteps := e.coord.MaxSteps()
	size := terrain.Size()

	workers := e.workers
	if workers > size {
		workers = size
	}
	rngs := make([]*rand.Rand, workers)
	for i := range rngs {
		rngs[i] = rand.New(rand.NewPCG(e.seed, uint64(i)+1))
	}
	tally := core.NewTally(size)

	done, total := e.coord.Progress()
	logging.GetLogger().Infof("Engine starting at replication %d/%d with %d workers", done, total, workers)

	for done < total {
		tally.Reset()
		if !e.replicate(ctx, terrain, maxSteps, rngs, tally) {
			logging.GetLogger().Debugf("Engine stopped during replication %d", done+1)
			return ctx.Err()
		}
		rep, err := e.coord.CommitReplication(tally)
		if errors.Is(err, state.ErrFinished) {
			return nil
		}
		if err != nil {
			return err
		}
		e.metrics.RecordReplication()
		done = rep
	}
	e.coord.Finish()
	logging.GetLogger().Infof("Engine completed %d replications", total)
	return nil
}

// replicate runs one trial from every open cell, rows split across workers. It reports
// false if it was interrupted.
func (e *Engine) replicate(ctx context.Context, terrain *core.Terrain, maxSteps int, rngs []*rand.Rand, tally *core.Tally) bool {
	size := terrain.Size()
	var stopped atomic.Bool
	var wg sync.WaitGroup
	for w := range rngs {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rng := rngs[w]
			trials := 0
			for y := w; y < size; y += len(rngs) {
				if e.cancelled(ctx) {
					stopped.Store(true)
					break
				}
				for x := 0; x < size; x++ {
					if terrain.Blocked(x, y) {
						continue
					}
					steps, ok := terrain.Trial(core.Position{X: x, Y: y}, maxSteps, rng)
					trials++
					if ok {
						tally.Add(x, y, steps)
					}
				}
			}
			e.metrics.RecordTrials(trials)
		}(w)
	}
	wg.Wait()
	return !stopped.Load()
}

func (e *Engine) cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-e.coord.Done():
		return true
	default:
		return false
	}
}
