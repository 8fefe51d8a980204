package types

import "time"

// Project is the root of a backlog.
type Project struct {
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Epic groups features under a project.
type Epic struct {
	EpicID      string    `json:"epic_id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Feature groups stories under an epic.
type Feature struct {
	FeatureID   string    `json:"feature_id"`
	EpicID      string    `json:"epic_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Worklog records time spent on a task. Recent worklogs feed the dashboard
// activity list.
type Worklog struct {
	WorklogID string    `json:"worklog_id"`
	TaskID    string    `json:"task_id"`
	Author    string    `json:"author"`
	Hours     float64   `json:"hours"`
	Note      string    `json:"note"`
	LoggedAt  time.Time `json:"logged_at"`
}

// WorklogEntry is a worklog joined with its task and story titles.
type WorklogEntry struct {
	Worklog
	TaskTitle  string `json:"task_title"`
	StoryID    string `json:"story_id"`
	StoryTitle string `json:"story_title"`
}
