package core

import (
	"fmt"
	"math"
)

// ProbabilityTolerance is the slack allowed when checking that weights sum to 1.
const ProbabilityTolerance = 1e-9

// Probabilities are the step weights for the four directions.
type Probabilities struct {
	Up    float64
	Down  float64
	Left  float64
	Right float64
}

// Uniform returns 0.25 in every direction.
func Uniform() Probabilities {
	return Probabilities{Up: 0.25, Down: 0.25, Left: 0.25, Right: 0.25}
}

// Sum returns the total weight.
func (p Probabilities) Sum() float64 {
	return p.Up + p.Down + p.Left + p.Right
}

// Valid reports whether all weights are non-negative and sum to 1.
func (p Probabilities) Valid() bool {
	if p.Up < 0 || p.Down < 0 || p.Left < 0 || p.Right < 0 {
		return false
	}
	return math.Abs(p.Sum()-1.0) <= ProbabilityTolerance
}

// Normalize returns a valid distribution. A valid input is returned as is.
// Otherwise each of up, down, left is clamped into [0, remaining] in that order
// and whatever budget is left becomes the right weight; the right input is
// discarded. This can differ noticeably from what the operator typed.
func (p Probabilities) Normalize() Probabilities {
	if p.Valid() {
		return p
	}
	remaining := 1.0
	take := func(v float64) float64 {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		if v > remaining {
			v = remaining
		}
		remaining -= v
		return v
	}
	out := Probabilities{}
	out.Up = take(p.Up)
	out.Down = take(p.Down)
	out.Left = take(p.Left)
	if remaining < 0 {
		remaining = 0
	}
	out.Right = remaining
	return out
}

// Thresholds returns the cumulative cut points t1=up, t2=t1+down, t3=t2+left.
func (p Probabilities) Thresholds() (t1, t2, t3 float64) {
	t1 = p.Up
	t2 = t1 + p.Down
	t3 = t2 + p.Left
	return
}

func (p Probabilities) String() string {
	return fmt.Sprintf("%.3f/%.3f/%.3f/%.3f", p.Up, p.Down, p.Left, p.Right)
}
