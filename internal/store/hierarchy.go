package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

// GetProject returns ErrNotFound if no project exists with that ID.
func (q *queries) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	if projectID == "" {
		return nil, types.ErrInvalidID
	}
	var (
		p         types.Project
		createdAt string
	)
	err := q.queryRow(ctx,
		"SELECT project_id, name, description, created_at FROM projects WHERE project_id = ?",
		projectID,
	).Scan(&p.ProjectID, &p.Name, &p.Description, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, dbError("getting project "+projectID, err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("project %s: created_at: %w", projectID, err)
	}
	return &p, nil
}

// FindEpicsByProject returns the project's epics ordered by title.
func (q *queries) FindEpicsByProject(ctx context.Context, projectID string) ([]types.Epic, error) {
	rows, err := q.query(ctx,
		`SELECT epic_id, project_id, title, description, created_at
		 FROM epics WHERE project_id = ? ORDER BY title, epic_id`,
		projectID,
	)
	if err != nil {
		return nil, dbError("finding epics", err)
	}
	defer rows.Close()

	var epics []types.Epic
	for rows.Next() {
		var (
			e         types.Epic
			createdAt string
		)
		if err := rows.Scan(&e.EpicID, &e.ProjectID, &e.Title, &e.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning epic: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("epic %s: created_at: %w", e.EpicID, err)
		}
		epics = append(epics, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating epics", err)
	}
	return epics, nil
}

// FindFeaturesByProject returns the features of every epic of the project
// ordered by title.
func (q *queries) FindFeaturesByProject(ctx context.Context, projectID string) ([]types.Feature, error) {
	rows, err := q.query(ctx,
		`SELECT f.feature_id, f.epic_id, f.title, f.description, f.created_at
		 FROM features f JOIN epics e ON e.epic_id = f.epic_id
		 WHERE e.project_id = ? ORDER BY f.title, f.feature_id`,
		projectID,
	)
	if err != nil {
		return nil, dbError("finding features", err)
	}
	defer rows.Close()

	var features []types.Feature
	for rows.Next() {
		var (
			f         types.Feature
			createdAt string
		)
		if err := rows.Scan(&f.FeatureID, &f.EpicID, &f.Title, &f.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning feature: %w", err)
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("feature %s: created_at: %w", f.FeatureID, err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating features", err)
	}
	return features, nil
}

// RecentWorklogs returns the project's worklogs newest first. A limit of
// zero or less returns all of them.
func (q *queries) RecentWorklogs(ctx context.Context, projectID string, limit int) ([]types.WorklogEntry, error) {
	query := `SELECT w.worklog_id, w.task_id, w.author, w.hours, w.note, w.logged_at,
		       t.title, s.story_id, s.title
		FROM worklogs w
		JOIN tasks t ON t.task_id = w.task_id
		JOIN stories s ON s.story_id = t.story_id
		JOIN features f ON f.feature_id = s.feature_id
		JOIN epics e ON e.epic_id = f.epic_id
		WHERE e.project_id = ?
		ORDER BY w.logged_at DESC, w.worklog_id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("finding worklogs", err)
	}
	defer rows.Close()

	var entries []types.WorklogEntry
	for rows.Next() {
		var (
			w        types.WorklogEntry
			loggedAt string
		)
		if err := rows.Scan(&w.WorklogID, &w.TaskID, &w.Author, &w.Hours, &w.Note, &loggedAt,
			&w.TaskTitle, &w.StoryID, &w.StoryTitle); err != nil {
			return nil, fmt.Errorf("scanning worklog: %w", err)
		}
		if w.LoggedAt, err = parseTime(loggedAt); err != nil {
			return nil, fmt.Errorf("worklog %s: logged_at: %w", w.WorklogID, err)
		}
		entries = append(entries, w)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating worklogs", err)
	}
	return entries, nil
}

// InsertProject creates a project, generating an ID when empty.
func (q *txQueries) InsertProject(ctx context.Context, p *types.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return types.ErrInvalidName
	}
	if p.ProjectID == "" {
		p.ProjectID = newUUID()
	}
	p.CreatedAt = nowOr(p.CreatedAt)
	_, err := q.exec(ctx,
		"INSERT INTO projects (project_id, name, description, created_at) VALUES (?, ?, ?, ?)",
		p.ProjectID, p.Name, p.Description, formatTime(p.CreatedAt),
	)
	if err != nil {
		return dbError("inserting project", err)
	}
	return nil
}

// InsertEpic creates an epic under an existing project.
func (q *txQueries) InsertEpic(ctx context.Context, e *types.Epic) error {
	if strings.TrimSpace(e.Title) == "" {
		return types.ErrInvalidName
	}
	if e.ProjectID == "" {
		return types.ErrInvalidID
	}
	if e.EpicID == "" {
		e.EpicID = newUUID()
	}
	e.CreatedAt = nowOr(e.CreatedAt)
	_, err := q.exec(ctx,
		"INSERT INTO epics (epic_id, project_id, title, description, created_at) VALUES (?, ?, ?, ?, ?)",
		e.EpicID, e.ProjectID, e.Title, e.Description, formatTime(e.CreatedAt),
	)
	if err != nil {
		return dbError("inserting epic", err)
	}
	return nil
}

// InsertFeature creates a feature under an existing epic.
func (q *txQueries) InsertFeature(ctx context.Context, f *types.Feature) error {
	if strings.TrimSpace(f.Title) == "" {
		return types.ErrInvalidName
	}
	if f.EpicID == "" {
		return types.ErrInvalidID
	}
	if f.FeatureID == "" {
		f.FeatureID = newUUID()
	}
	f.CreatedAt = nowOr(f.CreatedAt)
	_, err := q.exec(ctx,
		"INSERT INTO features (feature_id, epic_id, title, description, created_at) VALUES (?, ?, ?, ?, ?)",
		f.FeatureID, f.EpicID, f.Title, f.Description, formatTime(f.CreatedAt),
	)
	if err != nil {
		return dbError("inserting feature", err)
	}
	return nil
}

// InsertWorklog records time spent on an existing task.
func (q *txQueries) InsertWorklog(ctx context.Context, w *types.Worklog) error {
	if w.TaskID == "" {
		return types.ErrInvalidID
	}
	if w.Hours < 0 {
		return types.ErrInvalidData
	}
	if w.WorklogID == "" {
		w.WorklogID = newUUID()
	}
	w.LoggedAt = nowOr(w.LoggedAt)
	_, err := q.exec(ctx,
		`INSERT INTO worklogs (worklog_id, task_id, author, hours, note, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.WorklogID, w.TaskID, w.Author, w.Hours, w.Note, formatTime(w.LoggedAt),
	)
	if err != nil {
		return dbError("inserting worklog", err)
	}
	return nil
}
