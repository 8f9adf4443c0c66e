// Package state holds the single lock-protected aggregate of mutable simulation state.
package state

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/hooks"
	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/persist"
	"github.com/example/walker_sim/snapshot"
)

var (
	// ErrInvalidMode is returned for a view mode other than interactive or summary.
	ErrInvalidMode = errors.New("state: invalid mode")
	// ErrInvalidSummaryView is returned for a summary view other than average or probability.
	ErrInvalidSummaryView = errors.New("state: invalid summary view")
	// ErrFinished is returned when mutating a finished simulation.
	ErrFinished = errors.New("state: simulation finished")
)

// MaxReplications is the largest replication budget the snapshot counters can carry.
const MaxReplications = math.MaxInt32

// Publisher receives a snapshot on every meaningful transition. It is called with the
// coordinator lock held and must not block.
type Publisher interface {
	Publish(s *snapshot.Snapshot)
}

// PublisherFunc adapts a function into a Publisher.
type PublisherFunc func(s *snapshot.Snapshot)

// Publish calls the underlying function.
func (f PublisherFunc) Publish(s *snapshot.Snapshot) {
	if f != nil {
		f(s)
	}
}

// Config seeds a new coordinator.
type Config struct {
	// Grid is owned by the coordinator after New.
	Grid          *core.Grid
	Probabilities core.Probabilities
	// Bounded selects obstacle mode (no wraparound).
	Bounded bool
	// Replications is the total replication budget, including Completed.
	Replications int
	// Completed is the number of replications already folded into Grid (resume).
	Completed   int
	MaxSteps    int
	Mode        int32
	SummaryView int32
}

// Coordinator owns the grid, walker, counters and view selection. Every access goes
// through its mutex; there is exactly one per server process.
type Coordinator struct {
	mu sync.Mutex

	grid         *core.Grid
	probs        core.Probabilities
	bounded      bool
	walker       core.Position
	currentRep   int
	replications int
	maxSteps     int
	mode         int32
	summaryView  int32
	finished     bool

	done       chan struct{}
	publishers []Publisher
	broker     *hooks.PluginBroker
	scratch    snapshot.Snapshot
}

// New validates cfg and builds a coordinator with the walker at the center.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Grid == nil {
		return nil, fmt.Errorf("state: grid is required")
	}
	if cfg.Replications <= 0 || cfg.Replications > MaxReplications {
		return nil, fmt.Errorf("state: replications must be in 1..%d, got %d", MaxReplications, cfg.Replications)
	}
	if cfg.Completed < 0 || cfg.Completed > cfg.Replications {
		return nil, fmt.Errorf("state: completed replications %d outside [0,%d]", cfg.Completed, cfg.Replications)
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("state: max steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.Mode == 0 {
		cfg.Mode = snapshot.ModeSummary
	}
	if err := checkMode(cfg.Mode); err != nil {
		return nil, err
	}
	if err := checkSummaryView(cfg.SummaryView); err != nil {
		return nil, err
	}
	if cfg.Grid.ClearCenter() {
		logging.GetLogger().Warnf("Obstacle at center position removed")
	}
	return &Coordinator{
		grid:         cfg.Grid,
		probs:        cfg.Probabilities.Normalize(),
		bounded:      cfg.Bounded,
		walker:       cfg.Grid.Center(),
		currentRep:   cfg.Completed,
		replications: cfg.Replications,
		maxSteps:     cfg.MaxSteps,
		mode:         cfg.Mode,
		summaryView:  cfg.SummaryView,
		done:         make(chan struct{}),
	}, nil
}

// NewFromResults rebuilds a coordinator from saved results with additional
// replications to run on top of the restored statistics.
func NewFromResults(r *persist.Results, additional int) (*Coordinator, error) {
	if r == nil || r.Grid == nil {
		return nil, fmt.Errorf("state: no results to resume")
	}
	if additional <= 0 {
		return nil, fmt.Errorf("state: additional replications must be positive, got %d", additional)
	}
	if additional > MaxReplications-r.Replications {
		return nil, fmt.Errorf("state: %d saved plus %d additional replications exceed %d",
			r.Replications, additional, MaxReplications)
	}
	return New(Config{
		Grid:          r.Grid.Clone(),
		Probabilities: r.Probabilities,
		Bounded:       r.UseObstacles,
		Replications:  r.Replications + additional,
		Completed:     r.Replications,
		MaxSteps:      r.MaxSteps,
	})
}

func checkMode(m int32) error {
	if m != snapshot.ModeInteractive && m != snapshot.ModeSummary {
		return fmt.Errorf("%w: %d", ErrInvalidMode, m)
	}
	return nil
}

func checkSummaryView(v int32) error {
	if v != snapshot.SummaryAverageSteps && v != snapshot.SummaryProbability {
		return fmt.Errorf("%w: %d", ErrInvalidSummaryView, v)
	}
	return nil
}

// SetBroker attaches the hook broker notified after each publish.
func (c *Coordinator) SetBroker(b *hooks.PluginBroker) {
	c.mu.Lock()
	c.broker = b
	c.mu.Unlock()
}

// AddPublisher registers p and immediately publishes the current state to it.
func (c *Coordinator) AddPublisher(p Publisher) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishers = append(c.publishers, p)
	c.buildLocked(&c.scratch)
	p.Publish(&c.scratch)
}

// Done is closed when the finished flag is set.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Finished reports the finished flag.
func (c *Coordinator) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Finish sets the finished flag and publishes. It reports whether this call set it.
func (c *Coordinator) Finish() bool {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return false
	}
	c.finished = true
	close(c.done)
	ev := c.publishLocked(hooks.TransitionFinished)
	c.mu.Unlock()
	c.emit(ev)
	return true
}

// Terrain returns the immutable world view used to step walkers without the lock.
func (c *Coordinator) Terrain() *core.Terrain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.NewTerrain(c.grid, c.probs, c.bounded)
}

// Progress returns (completed replications, total replications).
func (c *Coordinator) Progress() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRep, c.replications
}

// MaxSteps returns the per-trial step budget.
func (c *Coordinator) MaxSteps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSteps
}

// Probabilities returns the normalized step weights.
func (c *Coordinator) Probabilities() core.Probabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probs
}

// Walker returns the visualized walker position.
func (c *Coordinator) Walker() core.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.walker
}

// View returns the current mode and summary sub-view.
func (c *Coordinator) View() (mode, summaryView int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.summaryView
}

// SetMode selects interactive or summary viewing.
func (c *Coordinator) SetMode(mode int32) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	c.mu.Lock()
	c.mode = mode
	ev := c.publishLocked(hooks.TransitionView)
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// SetSummaryView selects average-steps or probability display.
func (c *Coordinator) SetSummaryView(view int32) error {
	if err := checkSummaryView(view); err != nil {
		return err
	}
	c.mu.Lock()
	c.summaryView = view
	ev := c.publishLocked(hooks.TransitionView)
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// CommitReplication folds one complete replication into the statistics, advances the
// counter and publishes, all under one lock acquisition. It returns the new counter and
// ErrFinished if the simulation was stopped or the budget is already spent.
func (c *Coordinator) CommitReplication(t *core.Tally) (int, error) {
	c.mu.Lock()
	if c.finished || c.currentRep >= c.replications {
		rep := c.currentRep
		c.mu.Unlock()
		return rep, ErrFinished
	}
	c.grid.Merge(t)
	c.currentRep++
	rep := c.currentRep
	ev := c.publishLocked(hooks.TransitionReplication)
	c.mu.Unlock()
	c.emit(ev)
	return rep, nil
}

// StepWalker moves the visualized walker one step and publishes its position.
func (c *Coordinator) StepWalker(terrain *core.Terrain, rng core.Sampler) (core.Position, error) {
	c.mu.Lock()
	if c.finished {
		pos := c.walker
		c.mu.Unlock()
		return pos, ErrFinished
	}
	c.walker = terrain.Step(c.walker, rng)
	pos := c.walker
	ev := c.publishLocked(hooks.TransitionWalker)
	c.mu.Unlock()
	c.emit(ev)
	return pos, nil
}

// Snapshot returns a consistent copy of the viewer-visible state, taken under one lock.
func (c *Coordinator) Snapshot() snapshot.Snapshot {
	var s snapshot.Snapshot
	c.mu.Lock()
	c.buildLocked(&s)
	c.mu.Unlock()
	return s
}

// Results copies everything needed to save and later resume the run.
func (c *Coordinator) Results() *persist.Results {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &persist.Results{
		Replications:  c.currentRep,
		MaxSteps:      c.maxSteps,
		Probabilities: c.probs,
		UseObstacles:  c.bounded,
		Grid:          c.grid.Clone(),
	}
}

// buildLocked fills s from the coordinator, clamping to snapshot.MaxDim.
func (c *Coordinator) buildLocked(s *snapshot.Snapshot) {
	n := snapshot.Clamp(c.grid.Size)
	wx, wy := min(c.walker.X, n-1), min(c.walker.Y, n-1)
	s.WorldSize = int32(n)
	s.FullSize = int32(c.grid.Size)
	s.WalkerX = int32(wx)
	s.WalkerY = int32(wy)
	s.Mode = c.mode
	s.SummaryView = c.summaryView
	s.CurrentRep = int32(c.currentRep)
	s.Replications = int32(c.replications)
	s.Finished = 0
	if c.finished {
		s.Finished = 1
	}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			cell := c.grid.At(x, y)
			var o int32
			if cell.Obstacle {
				o = 1
			}
			s.Obstacles[y][x] = o
			s.TotalSteps[y][x] = cell.TotalSteps
			s.SuccessCount[y][x] = cell.Successes
		}
	}
}

// publishLocked pushes the current state to every publisher and returns the event to
// emit once the lock is released.
func (c *Coordinator) publishLocked(kind hooks.TransitionKind) *hooks.TransitionContext {
	if len(c.publishers) > 0 {
		c.buildLocked(&c.scratch)
		for _, p := range c.publishers {
			p.Publish(&c.scratch)
		}
	}
	if c.broker == nil {
		return nil
	}
	return &hooks.TransitionContext{
		Kind:         kind,
		CurrentRep:   c.currentRep,
		Replications: c.replications,
		Walker:       c.walker,
		Mode:         c.mode,
		SummaryView:  c.summaryView,
		Finished:     c.finished,
	}
}

func (c *Coordinator) emit(ev *hooks.TransitionContext) {
	if ev == nil {
		return
	}
	c.mu.Lock()
	b := c.broker
	c.mu.Unlock()
	if err := b.Emit(ev); err != nil {
		logging.GetLogger().Warnf("%s hook failed: %v", ev.Kind, err)
	}
}
