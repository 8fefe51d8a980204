package types

import "time"

// StoryStatus is the derived status of a story. It is computed from the
// story's tasks on every read and never persisted.
type StoryStatus string

// Derived story statuses.
const (
	StoryStatusToDo       StoryStatus = "ToDo"
	StoryStatusInProgress StoryStatus = "InProgress"
	StoryStatusDone       StoryStatus = "Done"
	StoryStatusPlanned    StoryStatus = "Planned"
)

// Story is a unit of user-facing work under a feature. Stories are ordered
// inside a sprint through Membership records.
type Story struct {
	StoryID            string    `json:"story_id"`
	FeatureID          string    `json:"feature_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	StoryPoints        *int      `json:"story_points"`
	EstimatedDevHours  *float64  `json:"estimated_dev_hours"`
	EstimatedTestHours *float64  `json:"estimated_test_hours"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StoryRow is a story joined with its feature and epic titles, as returned by
// project-wide story queries.
type StoryRow struct {
	Story
	FeatureTitle string `json:"feature_title"`
	EpicID       string `json:"epic_id"`
	EpicTitle    string `json:"epic_title"`
}

// Validate checks that the story carries the fields the store requires.
func (s *Story) Validate() error {
	if s.Title == "" {
		return ErrInvalidName
	}
	if s.FeatureID == "" {
		return ErrInvalidID
	}
	if s.StoryPoints != nil && *s.StoryPoints < 0 {
		return ErrInvalidData
	}
	return nil
}
