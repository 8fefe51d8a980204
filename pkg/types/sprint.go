package types

import (
	"strings"
	"time"
)

// Sprint lifecycle states.
const (
	SprintStatusPlanned   = "planned"
	SprintStatusActive    = "active"
	SprintStatusCompleted = "completed"
)

// validSprintStatuses is the set of recognized sprint status values.
var validSprintStatuses = map[string]bool{
	SprintStatusPlanned:   true,
	SprintStatusActive:    true,
	SprintStatusCompleted: true,
}

// sprintTransitions lists the forward moves allowed from each status.
var sprintTransitions = map[string][]string{
	SprintStatusPlanned: {SprintStatusActive, SprintStatusCompleted},
	SprintStatusActive:  {SprintStatusCompleted},
}

// Sprint is a time box that owns an ordered set of stories through
// Membership records. Entity methods modify the struct in memory; the caller
// persists through the Store.
type Sprint struct {
	SprintID  string     `json:"sprint_id"`
	ProjectID string     `json:"project_id"`
	Title     string     `json:"title"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks the title and the date range. When both dates are present
// the end must be strictly after the start.
func (s *Sprint) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrInvalidName
	}
	if s.StartDate != nil && s.EndDate != nil && !s.EndDate.After(*s.StartDate) {
		return ErrInvalidDates
	}
	if s.Status != "" && !validSprintStatuses[s.Status] {
		return ErrInvalidState
	}
	return nil
}

// SetStatus moves the sprint to status. Setting the current status is a
// no-op. Returns ErrInvalidState for unknown values and ErrInvalidTransition
// for backward moves; completed is terminal.
func (s *Sprint) SetStatus(status string) error {
	if !validSprintStatuses[status] {
		return ErrInvalidState
	}
	if s.Status == status {
		return nil
	}
	current := s.Status
	if current == "" {
		current = SprintStatusPlanned
	}
	for _, next := range sprintTransitions[current] {
		if next == status {
			s.Status = status
			return nil
		}
	}
	return ErrInvalidTransition
}
