// Package web exposes the simulation over HTTP and websockets for browser viewers.
package web

import (
	"github.com/example/walker_sim/snapshot"
)

// Point is a grid coordinate.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Frame is the JSON form of a snapshot, trimmed to the published world size.
type Frame struct {
	WorldSize    int32     `json:"worldSize"`
	FullSize     int32     `json:"fullSize"`
	Truncated    bool      `json:"truncated"`
	Walker       Point     `json:"walker"`
	Mode         int32     `json:"mode"`
	SummaryView  int32     `json:"summaryView"`
	CurrentRep   int32     `json:"currentRep"`
	Replications int32     `json:"replications"`
	Finished     bool      `json:"finished"`
	Obstacles    [][]int32 `json:"obstacles"`
	TotalSteps   [][]int64 `json:"totalSteps"`
	SuccessCount [][]int64 `json:"successCount"`
}

// Stats holds the derived per-cell figures viewers display in summary mode.
type Stats struct {
	CurrentRep   int32 `json:"currentRep"`
	Replications int32 `json:"replications"`
	// AverageSteps is null where a cell has no successes.
	AverageSteps [][]*int64 `json:"averageSteps"`
	// Probability is the integer success percentage over completed replications.
	Probability [][]int64 `json:"probability"`
}

// NewFrame converts a snapshot.
func NewFrame(s *snapshot.Snapshot) *Frame {
	n := snapshot.Clamp(int(s.WorldSize))
	f := &Frame{
		WorldSize:    int32(n),
		FullSize:     s.FullSize,
		Truncated:    s.Truncated(),
		Walker:       Point{X: s.WalkerX, Y: s.WalkerY},
		Mode:         s.Mode,
		SummaryView:  s.SummaryView,
		CurrentRep:   s.CurrentRep,
		Replications: s.Replications,
		Finished:     s.IsFinished(),
		Obstacles:    make([][]int32, n),
		TotalSteps:   make([][]int64, n),
		SuccessCount: make([][]int64, n),
	}
	for y := 0; y < n; y++ {
		f.Obstacles[y] = append([]int32(nil), s.Obstacles[y][:n]...)
		f.TotalSteps[y] = append([]int64(nil), s.TotalSteps[y][:n]...)
		f.SuccessCount[y] = append([]int64(nil), s.SuccessCount[y][:n]...)
	}
	return f
}

// NewStats derives averages and probabilities from a snapshot.
func NewStats(s *snapshot.Snapshot) *Stats {
	n := snapshot.Clamp(int(s.WorldSize))
	st := &Stats{
		CurrentRep:   s.CurrentRep,
		Replications: s.Replications,
		AverageSteps: make([][]*int64, n),
		Probability:  make([][]int64, n),
	}
	for y := 0; y < n; y++ {
		st.AverageSteps[y] = make([]*int64, n)
		st.Probability[y] = make([]int64, n)
		for x := 0; x < n; x++ {
			if avg, ok := s.AverageAt(x, y); ok {
				v := avg
				st.AverageSteps[y][x] = &v
			}
			st.Probability[y][x] = s.PercentAt(x, y)
		}
	}
	return st
}
