package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/hooks"
	"github.com/example/walker_sim/snapshot"
)

func newTestCoordinator(t *testing.T, size, reps int) *Coordinator {
	t.Helper()
	g, err := core.NewGrid(size)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	c, err := New(Config{Grid: g, Probabilities: core.Uniform(), Replications: reps, MaxSteps: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot
}

func (r *recordingPublisher) Publish(s *snapshot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, *s)
}

func (r *recordingPublisher) last() snapshot.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestNewValidatesConfig(t *testing.T) {
	g, _ := core.NewGrid(3)
	if _, err := New(Config{Grid: g, Replications: 0, MaxSteps: 1}); err == nil {
		t.Fatalf("expected error for zero replications")
	}
	if _, err := New(Config{Grid: g, Replications: 1, MaxSteps: 0}); err == nil {
		t.Fatalf("expected error for zero max steps")
	}
	if _, err := New(Config{Grid: g, Replications: 1, MaxSteps: 1, Mode: 7}); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestReplicationBudgetFitsSnapshotCounters(t *testing.T) {
	g, _ := core.NewGrid(3)
	if _, err := New(Config{Grid: g, Probabilities: core.Uniform(), Replications: 3_000_000_000, MaxSteps: 1}); err == nil {
		t.Fatalf("expected error for a budget above %d", MaxReplications)
	}

	c, err := New(Config{Grid: g, Probabilities: core.Uniform(), Replications: MaxReplications, MaxSteps: 1})
	if err != nil {
		t.Fatalf("New at the limit: %v", err)
	}
	if s := c.Snapshot(); s.Replications != MaxReplications || s.CurrentRep != 0 {
		t.Fatalf("published counters %d/%d", s.CurrentRep, s.Replications)
	}

	res := c.Results()
	res.Replications = MaxReplications - 1
	if _, err := NewFromResults(res, 2); err == nil {
		t.Fatalf("expected error when saved plus additional replications overflow")
	}
	if _, err := NewFromResults(res, 1); err != nil {
		t.Fatalf("resume up to the limit: %v", err)
	}
}

func TestNewClearsCenterObstacle(t *testing.T) {
	g, _ := core.NewGrid(5)
	g.SetObstacle(2, 2, true)
	c, err := New(Config{Grid: g, Probabilities: core.Uniform(), Bounded: true, Replications: 1, MaxSteps: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := c.Snapshot()
	if s.ObstacleAt(2, 2) {
		t.Fatalf("center obstacle survived")
	}
	if s.WalkerX != 2 || s.WalkerY != 2 {
		t.Fatalf("walker should start at center, got (%d,%d)", s.WalkerX, s.WalkerY)
	}
	if s.Mode != snapshot.ModeSummary {
		t.Fatalf("default mode should be summary, got %d", s.Mode)
	}
}

func TestCommitAdvancesAndPublishes(t *testing.T) {
	c := newTestCoordinator(t, 3, 2)
	pub := &recordingPublisher{}
	c.AddPublisher(pub)

	tally := core.NewTally(3)
	tally.Add(0, 0, 4)
	rep, err := c.CommitReplication(tally)
	if err != nil || rep != 1 {
		t.Fatalf("first commit: rep=%d err=%v", rep, err)
	}
	s := pub.last()
	if s.CurrentRep != 1 || s.Replications != 2 {
		t.Fatalf("unexpected progress %d/%d", s.CurrentRep, s.Replications)
	}
	if s.TotalSteps[0][0] != 4 || s.SuccessCount[0][0] != 1 {
		t.Fatalf("statistics not published with the counter: %d %d", s.TotalSteps[0][0], s.SuccessCount[0][0])
	}

	if _, err := c.CommitReplication(tally); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if _, err := c.CommitReplication(tally); !errors.Is(err, ErrFinished) {
		t.Fatalf("commit past the budget should fail, got %v", err)
	}
	if done, total := c.Progress(); done != 2 || total != 2 {
		t.Fatalf("progress = %d/%d", done, total)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t, 3, 5)
	var finished int
	b := hooks.NewPluginBroker()
	b.Register(hooks.TransitionFinished, func(ctx *hooks.TransitionContext) error {
		if !ctx.Finished {
			t.Errorf("finished hook saw unfinished context")
		}
		finished++
		return nil
	})
	c.SetBroker(b)

	if !c.Finish() {
		t.Fatalf("first Finish should set the flag")
	}
	if c.Finish() {
		t.Fatalf("second Finish should be a no-op")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed")
	}
	if finished != 1 {
		t.Fatalf("finished hook ran %d times", finished)
	}
	if s := c.Snapshot(); !s.IsFinished() {
		t.Fatalf("snapshot does not report finished")
	}
	if _, err := c.CommitReplication(core.NewTally(3)); !errors.Is(err, ErrFinished) {
		t.Fatalf("commit after finish should fail, got %v", err)
	}
}

func TestSetModeAndSummaryView(t *testing.T) {
	c := newTestCoordinator(t, 3, 1)
	if err := c.SetMode(snapshot.ModeInteractive); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := c.SetSummaryView(snapshot.SummaryProbability); err != nil {
		t.Fatalf("SetSummaryView: %v", err)
	}
	if err := c.SetMode(3); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if err := c.SetSummaryView(2); !errors.Is(err, ErrInvalidSummaryView) {
		t.Fatalf("expected ErrInvalidSummaryView, got %v", err)
	}
	mode, view := c.View()
	if mode != snapshot.ModeInteractive || view != snapshot.SummaryProbability {
		t.Fatalf("view = %d/%d", mode, view)
	}
}

func TestConcurrentViewChangesSettleOnLastApplied(t *testing.T) {
	c := newTestCoordinator(t, 4, 1)
	pub := &recordingPublisher{}
	c.AddPublisher(pub)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					c.SetMode(int32(1 + (i+j)%4/2))
				} else {
					c.SetSummaryView(int32((i + j) % 4 / 2))
				}
			}
		}(i)
	}
	wg.Wait()

	mode, view := c.View()
	last := pub.last()
	if last.Mode != mode || last.SummaryView != view {
		t.Fatalf("last publish %d/%d disagrees with coordinator %d/%d", last.Mode, last.SummaryView, mode, view)
	}
	for _, s := range pub.snaps {
		if s.WorldSize != 4 || s.WalkerX >= s.WorldSize || s.WalkerY >= s.WorldSize {
			t.Fatalf("inconsistent snapshot: size %d walker (%d,%d)", s.WorldSize, s.WalkerX, s.WalkerY)
		}
	}
}

func TestReplicationCounterMonotonic(t *testing.T) {
	c := newTestCoordinator(t, 3, 200)
	pub := &recordingPublisher{}
	c.AddPublisher(pub)
	terrain := c.Terrain()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tally := core.NewTally(3)
			for {
				if _, err := c.CommitReplication(tally); err != nil {
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		rng := fixedRand(0.9)
		for i := 0; i < 100; i++ {
			c.StepWalker(terrain, rng)
		}
	}()
	wg.Wait()

	prev := int32(-1)
	for _, s := range pub.snaps {
		if s.CurrentRep < prev {
			t.Fatalf("counter went backwards: %d after %d", s.CurrentRep, prev)
		}
		if s.CurrentRep > s.Replications {
			t.Fatalf("counter %d exceeds total %d", s.CurrentRep, s.Replications)
		}
		prev = s.CurrentRep
	}
	if prev != 200 {
		t.Fatalf("final counter = %d", prev)
	}
}

func TestTruncatedSnapshot(t *testing.T) {
	c := newTestCoordinator(t, snapshot.MaxDim+6, 1)
	s := c.Snapshot()
	if s.WorldSize != snapshot.MaxDim || s.FullSize != snapshot.MaxDim+6 || !s.Truncated() {
		t.Fatalf("unexpected sizes %d/%d", s.WorldSize, s.FullSize)
	}
	// Center (35,35) is inside the window.
	if s.WalkerX != 35 || s.WalkerY != 35 {
		t.Fatalf("walker = (%d,%d)", s.WalkerX, s.WalkerY)
	}
}

func TestTruncatedSnapshotClampsWalkerToWindow(t *testing.T) {
	size := 2*snapshot.MaxDim + 10
	g, _ := core.NewGrid(size)
	// (5,5) is where a wrapped center (69 mod 64) would land.
	g.SetObstacle(5, 5, true)
	c, err := New(Config{Grid: g, Probabilities: core.Uniform(), Bounded: true, Replications: 1, MaxSteps: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := c.Snapshot()
	edge := int32(snapshot.MaxDim - 1)
	if s.WalkerX != edge || s.WalkerY != edge {
		t.Fatalf("walker = (%d,%d), want clamped to (%d,%d)", s.WalkerX, s.WalkerY, edge, edge)
	}
	if s.ObstacleAt(int(s.WalkerX), int(s.WalkerY)) {
		t.Fatalf("published walker sits on an obstacle")
	}
}

func TestResultsResume(t *testing.T) {
	c := newTestCoordinator(t, 3, 2)
	tally := core.NewTally(3)
	tally.Add(1, 1, 0)
	tally.Add(0, 1, 3)
	c.CommitReplication(tally)
	c.CommitReplication(tally)

	res := c.Results()
	if res.Replications != 2 {
		t.Fatalf("saved replications = %d", res.Replications)
	}
	resumed, err := NewFromResults(res, 3)
	if err != nil {
		t.Fatalf("NewFromResults: %v", err)
	}
	if done, total := resumed.Progress(); done != 2 || total != 5 {
		t.Fatalf("resumed progress = %d/%d", done, total)
	}
	resumed.CommitReplication(tally)
	s := resumed.Snapshot()
	if s.SuccessCount[1][0] != 3 || s.TotalSteps[1][0] != 9 {
		t.Fatalf("resume did not accumulate: %d %d", s.SuccessCount[1][0], s.TotalSteps[1][0])
	}
	if !res.Grid.Equal(c.Results().Grid) {
		t.Fatalf("Results should be a copy")
	}
}

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
