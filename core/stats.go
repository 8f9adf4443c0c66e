package core

// AverageSteps returns total/successes using integer division. ok is false when there
// are no successes, which viewers render as "no data".
func AverageSteps(totalSteps, successes int64) (avg int64, ok bool) {
	if successes <= 0 {
		return 0, false
	}
	return totalSteps / successes, true
}

// SuccessPercent returns successes*100/completed truncated to an integer percentage.
// Zero completed replications report 0.
func SuccessPercent(successes int64, completed int) int64 {
	if completed <= 0 {
		return 0
	}
	return successes * 100 / int64(completed)
}
