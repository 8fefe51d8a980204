package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

const sprintColumns = "sprint_id, project_id, title, start_date, end_date, status, created_at"

// FindSprintsByProject returns sprints ordered by start date (undated
// sprints last) then title.
func (q *queries) FindSprintsByProject(ctx context.Context, projectID string) ([]types.Sprint, error) {
	rows, err := q.query(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE project_id = ?
		 ORDER BY CASE WHEN start_date IS NULL THEN 1 ELSE 0 END, start_date, title, sprint_id`,
		projectID,
	)
	if err != nil {
		return nil, dbError("finding sprints", err)
	}
	defer rows.Close()

	var sprints []types.Sprint
	for rows.Next() {
		s, err := hydrateSprint(rows)
		if err != nil {
			return nil, err
		}
		sprints = append(sprints, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating sprints", err)
	}
	return sprints, nil
}

// GetSprint returns ErrNotFound if no sprint exists with that ID.
func (q *queries) GetSprint(ctx context.Context, sprintID string) (*types.Sprint, error) {
	if sprintID == "" {
		return nil, types.ErrInvalidID
	}
	row := q.queryRow(ctx, "SELECT "+sprintColumns+" FROM sprints WHERE sprint_id = ?", sprintID)
	s, err := hydrateSprint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, dbError("getting sprint "+sprintID, err)
	}
	return s, nil
}

// InsertSprint validates and creates a sprint. New sprints start planned.
func (q *txQueries) InsertSprint(ctx context.Context, s *types.Sprint) error {
	if s.ProjectID == "" {
		return types.ErrInvalidID
	}
	if s.Status == "" {
		s.Status = types.SprintStatusPlanned
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if s.SprintID == "" {
		s.SprintID = newUUID()
	}
	s.CreatedAt = nowOr(s.CreatedAt)
	_, err := q.exec(ctx,
		"INSERT INTO sprints ("+sprintColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.SprintID, s.ProjectID, s.Title, nullTime(s.StartDate), nullTime(s.EndDate),
		s.Status, formatTime(s.CreatedAt),
	)
	if err != nil {
		return dbError("inserting sprint", err)
	}
	return nil
}

// UpdateSprint writes the title, dates and status of an existing sprint.
func (q *txQueries) UpdateSprint(ctx context.Context, s *types.Sprint) error {
	if s.SprintID == "" {
		return types.ErrInvalidID
	}
	if err := s.Validate(); err != nil {
		return err
	}
	return q.execAffecting(ctx, "updating sprint "+s.SprintID,
		"UPDATE sprints SET title = ?, start_date = ?, end_date = ?, status = ? WHERE sprint_id = ?",
		s.Title, nullTime(s.StartDate), nullTime(s.EndDate), s.Status, s.SprintID,
	)
}

// DeleteSprint removes the sprint row. Memberships cascade, but callers
// remove them first so task assignments can be cleared in the same
// transaction.
func (q *txQueries) DeleteSprint(ctx context.Context, sprintID string) error {
	if sprintID == "" {
		return types.ErrInvalidID
	}
	return q.execAffecting(ctx, "deleting sprint "+sprintID,
		"DELETE FROM sprints WHERE sprint_id = ?", sprintID)
}

func hydrateSprint(row rowScanner) (*types.Sprint, error) {
	var (
		s                  types.Sprint
		startDate, endDate sql.NullString
		createdAt          string
	)
	if err := row.Scan(&s.SprintID, &s.ProjectID, &s.Title, &startDate, &endDate, &s.Status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sprint: %w", err)
	}
	var err error
	if s.StartDate, err = parseNullTime(startDate); err != nil {
		return nil, fmt.Errorf("sprint %s: start_date: %w", s.SprintID, err)
	}
	if s.EndDate, err = parseNullTime(endDate); err != nil {
		return nil, fmt.Errorf("sprint %s: end_date: %w", s.SprintID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("sprint %s: created_at: %w", s.SprintID, err)
	}
	return &s, nil
}
