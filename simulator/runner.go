package simulator

import (
	"context"
	"sync"
)

// Runner glues the engine and the visual ticker into one supervised unit.
type Runner struct {
	engine *Engine
	ticker *Ticker

	wg        sync.WaitGroup
	mu        sync.Mutex
	engineErr error
	ticks     int
}

// NewRunner creates a new Runner instance. Either part may be nil.
func NewRunner(engine *Engine, ticker *Ticker) *Runner {
	return &Runner{
		engine: engine,
		ticker: ticker,
	}
}

// Start launches the engine and ticker goroutines.
func (r *Runner) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if r.engine != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			err := r.engine.Run(ctx)
			r.mu.Lock()
			r.engineErr = err
			r.mu.Unlock()
		}()
	}
	if r.ticker != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			n := r.ticker.Run(ctx)
			r.mu.Lock()
			r.ticks = n
			r.mu.Unlock()
		}()
	}
}

// Wait joins both goroutines and returns the engine's error.
func (r *Runner) Wait() error {
	if r == nil {
		return nil
	}
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engineErr
}

// Ticks reports how many walker steps the ticker applied. Valid after Wait.
func (r *Runner) Ticks() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}
