// Package snapshot defines the fixed-capacity view of simulation state that is shared
// with viewer processes, and the memory-mapped region it lives in.
package snapshot

import "github.com/example/walker_sim/core"

// MaxDim is the largest world dimension a snapshot can hold. Larger worlds are
// published as their top-left MaxDim×MaxDim submatrix.
const MaxDim = 64

// View modes.
const (
	ModeInteractive int32 = 1
	ModeSummary     int32 = 2
)

// Summary sub-views.
const (
	SummaryAverageSteps int32 = 0
	SummaryProbability  int32 = 1
)

// Snapshot is a plain value with no pointers so it can be copied byte for byte into
// shared memory. Row index first: Obstacles[y][x].
type Snapshot struct {
	// WorldSize is the published dimension, never above MaxDim.
	WorldSize int32
	// FullSize is the real world dimension; FullSize > WorldSize means truncation.
	FullSize     int32
	WalkerX      int32
	WalkerY      int32
	Mode         int32
	CurrentRep   int32
	Replications int32
	SummaryView  int32
	Finished     int32
	_            int32

	Obstacles    [MaxDim][MaxDim]int32
	TotalSteps   [MaxDim][MaxDim]int64
	SuccessCount [MaxDim][MaxDim]int64
}

// Clamp returns n bounded to [0, MaxDim].
func Clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxDim {
		return MaxDim
	}
	return n
}

// CopyInto writes s into dst touching only the rows that either snapshot uses.
// Cells outside WorldSize are expected to be zero in s.
func (s *Snapshot) CopyInto(dst *Snapshot) {
	n := Clamp(int(s.WorldSize))
	if prev := Clamp(int(dst.WorldSize)); prev > n {
		n = prev
	}
	dst.WorldSize = s.WorldSize
	dst.FullSize = s.FullSize
	dst.WalkerX = s.WalkerX
	dst.WalkerY = s.WalkerY
	dst.Mode = s.Mode
	dst.CurrentRep = s.CurrentRep
	dst.Replications = s.Replications
	dst.SummaryView = s.SummaryView
	dst.Finished = s.Finished
	for y := 0; y < n; y++ {
		copy(dst.Obstacles[y][:n], s.Obstacles[y][:n])
		copy(dst.TotalSteps[y][:n], s.TotalSteps[y][:n])
		copy(dst.SuccessCount[y][:n], s.SuccessCount[y][:n])
	}
}

// Truncated reports whether the world is larger than what was published.
func (s *Snapshot) Truncated() bool {
	return s.FullSize > s.WorldSize
}

// IsFinished reports the finished flag.
func (s *Snapshot) IsFinished() bool {
	return s.Finished != 0
}

func (s *Snapshot) inBounds(x, y int) bool {
	n := Clamp(int(s.WorldSize))
	return x >= 0 && y >= 0 && x < n && y < n
}

// ObstacleAt reports the obstacle flag, false outside the published area.
func (s *Snapshot) ObstacleAt(x, y int) bool {
	if !s.inBounds(x, y) {
		return false
	}
	return s.Obstacles[y][x] != 0
}

// AverageAt returns the average steps for a cell, ok=false meaning no data.
func (s *Snapshot) AverageAt(x, y int) (int64, bool) {
	if !s.inBounds(x, y) {
		return 0, false
	}
	return core.AverageSteps(s.TotalSteps[y][x], s.SuccessCount[y][x])
}

// PercentAt returns the success probability of a cell as an integer percentage of the
// replications completed so far.
func (s *Snapshot) PercentAt(x, y int) int64 {
	if !s.inBounds(x, y) {
		return 0
	}
	return core.SuccessPercent(s.SuccessCount[y][x], int(s.CurrentRep))
}
