package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/example/walker_sim/snapshot"
)

// render prints one snapshot as text: a header line, then the grid in the view the
// server currently publishes.
func render(w io.Writer, s *snapshot.Snapshot) {
	n := snapshot.Clamp(int(s.WorldSize))
	mode := "summary"
	if s.Mode == snapshot.ModeInteractive {
		mode = "interactive"
	}
	fmt.Fprintf(w, "Replication %d/%d  mode %s", s.CurrentRep, s.Replications, mode)
	if s.IsFinished() {
		fmt.Fprint(w, "  finished")
	}
	fmt.Fprintln(w)
	if s.Truncated() {
		fmt.Fprintf(w, "World is %dx%d, showing the top-left %dx%d\n", s.FullSize, s.FullSize, n, n)
	}

	if s.Mode == snapshot.ModeInteractive {
		renderWorld(w, s, n)
		return
	}
	if s.SummaryView == snapshot.SummaryProbability {
		fmt.Fprintln(w, "Probability of reaching the center within the step budget (%)")
	} else {
		fmt.Fprintln(w, "Average steps to reach the center (- = no data)")
	}
	for y := 0; y < n; y++ {
		var b strings.Builder
		for x := 0; x < n; x++ {
			b.WriteString(summaryCell(s, x, y))
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}

// renderWorld draws the published window. The center is marked only when it lies
// inside the window.
func renderWorld(w io.Writer, s *snapshot.Snapshot, n int) {
	c := int(s.FullSize) / 2
	showCenter := c < n
	for y := 0; y < n; y++ {
		row := make([]byte, n)
		for x := 0; x < n; x++ {
			switch {
			case x == int(s.WalkerX) && y == int(s.WalkerY):
				row[x] = 'W'
			case s.ObstacleAt(x, y):
				row[x] = '#'
			case showCenter && x == c && y == c:
				row[x] = 'C'
			default:
				row[x] = '.'
			}
		}
		fmt.Fprintln(w, string(row))
	}
}

func summaryCell(s *snapshot.Snapshot, x, y int) string {
	if s.ObstacleAt(x, y) {
		return fmt.Sprintf("%6s", "#")
	}
	if s.SummaryView == snapshot.SummaryProbability {
		return fmt.Sprintf("%5d%%", s.PercentAt(x, y))
	}
	avg, ok := s.AverageAt(x, y)
	if !ok {
		return fmt.Sprintf("%6s", "-")
	}
	return fmt.Sprintf("%6d", avg)
}
