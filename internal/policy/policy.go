// Package policy holds the overload and limit rules shared by task creation
// and the strategy trigger.
package policy

import (
	"fmt"
)

// IsOverload reports whether count has reached threshold.
func IsOverload(count, threshold int64) bool {
	return count >= threshold
}

// HardLimitError is returned when creating one more task would exceed the cap.
type HardLimitError struct {
	Max    int `json:"max_active_task_count"`
	Active int `json:"active_task_count"`
	Next   int `json:"next_task_ordinal"`
}

func (e *HardLimitError) Error() string {
	return fmt.Sprintf("active task limit reached: %d of %d", e.Active, e.Max)
}

// CheckHardLimit fails when the next task would exceed max.
func CheckHardLimit(active, max int) error {
	if next := active + 1; next > max {
		return &HardLimitError{Max: max, Active: active, Next: next}
	}
	return nil
}

// Guide is the soft-limit decision for a task creation.
type Guide struct {
	Exposed   bool   `json:"exposed"`
	Message   string `json:"message,omitempty"`
	Active    int    `json:"active_task_count"`
	Threshold int    `json:"guide_exposure_threshold"`
	Cap       int    `json:"active_task_count_cap"`
	Next      int    `json:"next_task_ordinal"`
}

// EvaluateGuide decides whether the guide is shown for a user who already has
// active tasks today. It never blocks creation.
func EvaluateGuide(active, threshold, capacity int) Guide {
	g := Guide{Active: active, Threshold: threshold, Cap: capacity, Next: active + 1}
	if IsOverload(int64(active), int64(threshold)) {
		g.Exposed = true
		g.Message = fmt.Sprintf("You already have %d tasks today. Focusing on %d or fewer makes them easier to finish.", active, capacity)
	}
	return g
}

// Payload is the body stored with a guide_exposed event.
func (g Guide) Payload() map[string]any {
	return map[string]any{
		"active_task_count":        g.Active,
		"guide_exposure_threshold": g.Threshold,
		"next_task_ordinal":        g.Next,
	}
}
