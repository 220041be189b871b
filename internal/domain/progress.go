package domain

// Progress describes how far a weight is from its goal.
type Progress struct {
	Achieved  bool    `json:"achieved"`
	Remaining float64 `json:"remaining"`
}

// GoalProgress compares a current weight with a goal. The goal counts as
// achieved once current <= goal; otherwise Remaining is current - goal.
func GoalProgress(current, goal float64) Progress {
	if current <= goal {
		return Progress{Achieved: true}
	}
	return Progress{Remaining: current - goal}
}
