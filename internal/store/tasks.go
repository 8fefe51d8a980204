package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

const taskColumns = `t.task_id, t.story_id, t.title, t.status, t.dev_hours, t.test_hours,
	t.cost_dev, t.cost_test, t.total_cost, t.sprint_id, t.in_sprint_backlog, t.created_at, t.updated_at`

// FindTasksByStoryIDs returns the tasks of the given stories grouped by
// story in creation order.
func (q *queries) FindTasksByStoryIDs(ctx context.Context, storyIDs []string) ([]types.Task, error) {
	if len(storyIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(storyIDs)
	return q.findTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.story_id IN (`+in+`)
		 ORDER BY t.story_id, t.created_at, t.task_id`,
		args...,
	)
}

// FindTasksByProject returns every task under the project's stories.
func (q *queries) FindTasksByProject(ctx context.Context, projectID string) ([]types.Task, error) {
	return q.findTasks(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 JOIN stories s ON s.story_id = t.story_id
		 JOIN features f ON f.feature_id = s.feature_id
		 JOIN epics e ON e.epic_id = f.epic_id
		 WHERE e.project_id = ?
		 ORDER BY t.story_id, t.created_at, t.task_id`,
		projectID,
	)
}

func (q *queries) findTasks(ctx context.Context, query string, args ...any) ([]types.Task, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("finding tasks", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		t, err := hydrateTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating tasks", err)
	}
	return tasks, nil
}

// InsertTask creates a task under an existing story.
func (q *txQueries) InsertTask(ctx context.Context, t *types.Task) error {
	if strings.TrimSpace(t.Title) == "" {
		return types.ErrInvalidName
	}
	if t.StoryID == "" {
		return types.ErrInvalidID
	}
	if t.TaskID == "" {
		t.TaskID = newUUID()
	}
	t.CreatedAt = nowOr(t.CreatedAt)
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err := q.exec(ctx,
		`INSERT INTO tasks (task_id, story_id, title, status, dev_hours, test_hours,
		   cost_dev, cost_test, total_cost, sprint_id, in_sprint_backlog, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TaskID, t.StoryID, t.Title, t.Status, nullFloat(t.DevHours), nullFloat(t.TestHours),
		nullFloat(t.CostDev), nullFloat(t.CostTest), nullFloat(t.TotalCost),
		nullString(t.SprintID), boolInt(t.InSprintBacklog),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return dbError("inserting task", err)
	}
	return nil
}

// UpdateTaskSprintAssignment points every task of storyIDs at sprintID and
// flags it in the sprint backlog, or clears both when sprintID is nil.
// UpdatedAt is left alone so burnup weeks keep tracking status changes.
func (q *txQueries) UpdateTaskSprintAssignment(ctx context.Context, storyIDs []string, sprintID *string) error {
	if len(storyIDs) == 0 {
		return nil
	}
	in, ids := inClause(storyIDs)
	args := append([]any{nullString(sprintID), boolInt(sprintID != nil)}, ids...)
	_, err := q.exec(ctx,
		`UPDATE tasks SET sprint_id = ?, in_sprint_backlog = ? WHERE story_id IN (`+in+`)`,
		args...,
	)
	if err != nil {
		return dbError("updating task sprint assignment", err)
	}
	return nil
}

// UnassignTasksBySprint clears the sprint reference and the in-sprint flag
// on every task tied to sprintID.
func (q *txQueries) UnassignTasksBySprint(ctx context.Context, sprintID string) error {
	_, err := q.exec(ctx,
		"UPDATE tasks SET sprint_id = NULL, in_sprint_backlog = 0 WHERE sprint_id = ?",
		sprintID,
	)
	if err != nil {
		return dbError("unassigning tasks", err)
	}
	return nil
}

func hydrateTask(row rowScanner) (*types.Task, error) {
	var (
		t                            types.Task
		devHours, testHours          sql.NullFloat64
		costDev, costTest, totalCost sql.NullFloat64
		sprintID                     sql.NullString
		inSprint                     int64
		createdAt, updatedAt         string
	)
	if err := row.Scan(&t.TaskID, &t.StoryID, &t.Title, &t.Status, &devHours, &testHours,
		&costDev, &costTest, &totalCost, &sprintID, &inSprint, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	t.DevHours = floatPtr(devHours)
	t.TestHours = floatPtr(testHours)
	t.CostDev = floatPtr(costDev)
	t.CostTest = floatPtr(costTest)
	t.TotalCost = floatPtr(totalCost)
	t.SprintID = stringPtr(sprintID)
	t.InSprintBacklog = inSprint != 0

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %s: created_at: %w", t.TaskID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("task %s: updated_at: %w", t.TaskID, err)
	}
	return &t, nil
}
