package types

import "time"

// Task is a concrete piece of work under a story. Status is free-form; the
// rollup package classifies it case-insensitively.
type Task struct {
	TaskID          string    `json:"task_id"`
	StoryID         string    `json:"story_id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	DevHours        *float64  `json:"dev_hours"`
	TestHours       *float64  `json:"test_hours"`
	CostDev         *float64  `json:"cost_dev"`
	CostTest        *float64  `json:"cost_test"`
	TotalCost       *float64  `json:"total_cost"` // explicit override of CostDev+CostTest
	SprintID        *string   `json:"sprint_id"`
	InSprintBacklog bool      `json:"in_sprint_backlog"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LastActivity returns UpdatedAt, falling back to CreatedAt when the task was
// never updated.
func (t *Task) LastActivity() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}
