package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

const storyColumns = `s.story_id, s.feature_id, s.title, s.description, s.acceptance_criteria,
	s.story_points, s.estimated_dev_hours, s.estimated_test_hours, s.created_at, s.updated_at`

// FindStoriesByProject returns every story of the project joined with its
// feature and epic, ordered by epic title, feature title, then story title.
func (q *queries) FindStoriesByProject(ctx context.Context, projectID string) ([]types.StoryRow, error) {
	rows, err := q.query(ctx,
		`SELECT `+storyColumns+`, f.title, e.epic_id, e.title
		 FROM stories s
		 JOIN features f ON f.feature_id = s.feature_id
		 JOIN epics e ON e.epic_id = f.epic_id
		 WHERE e.project_id = ?
		 ORDER BY e.title, f.title, s.title, s.story_id`,
		projectID,
	)
	if err != nil {
		return nil, dbError("finding stories", err)
	}
	defer rows.Close()

	var result []types.StoryRow
	for rows.Next() {
		var row types.StoryRow
		if err := hydrateStory(rows, &row.Story, &row.FeatureTitle, &row.EpicID, &row.EpicTitle); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating stories", err)
	}
	return result, nil
}

// GetStoriesByIDs returns the stories that exist among storyIDs. Unknown IDs
// are omitted; the caller compares lengths to detect them.
func (q *queries) GetStoriesByIDs(ctx context.Context, storyIDs []string) ([]types.Story, error) {
	if len(storyIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(storyIDs)
	rows, err := q.query(ctx,
		`SELECT `+storyColumns+` FROM stories s WHERE s.story_id IN (`+in+`) ORDER BY s.story_id`,
		args...,
	)
	if err != nil {
		return nil, dbError("getting stories", err)
	}
	defer rows.Close()

	var stories []types.Story
	for rows.Next() {
		var s types.Story
		if err := hydrateStory(rows, &s); err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating stories", err)
	}
	return stories, nil
}

// InsertStory creates a story under an existing feature.
func (q *txQueries) InsertStory(ctx context.Context, s *types.Story) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.StoryID == "" {
		s.StoryID = newUUID()
	}
	s.CreatedAt = nowOr(s.CreatedAt)
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	criteria := s.AcceptanceCriteria
	if criteria == nil {
		criteria = []string{}
	}
	ac, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("encoding acceptance criteria: %w", err)
	}
	_, err = q.exec(ctx,
		`INSERT INTO stories (story_id, feature_id, title, description, acceptance_criteria,
		   story_points, estimated_dev_hours, estimated_test_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StoryID, s.FeatureID, s.Title, s.Description, string(ac),
		nullInt(s.StoryPoints), nullFloat(s.EstimatedDevHours), nullFloat(s.EstimatedTestHours),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return dbError("inserting story", err)
	}
	return nil
}

// hydrateStory scans storyColumns into s followed by any extra columns.
func hydrateStory(row rowScanner, s *types.Story, extra ...any) error {
	var (
		criteria             string
		points               sql.NullInt64
		devHours, testHours  sql.NullFloat64
		createdAt, updatedAt string
	)
	dest := append([]any{
		&s.StoryID, &s.FeatureID, &s.Title, &s.Description, &criteria,
		&points, &devHours, &testHours, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return fmt.Errorf("scanning story: %w", err)
	}
	if criteria != "" {
		if err := json.Unmarshal([]byte(criteria), &s.AcceptanceCriteria); err != nil {
			return fmt.Errorf("story %s: acceptance criteria: %w", s.StoryID, err)
		}
	}
	s.StoryPoints = intPtr(points)
	s.EstimatedDevHours = floatPtr(devHours)
	s.EstimatedTestHours = floatPtr(testHours)

	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("story %s: created_at: %w", s.StoryID, err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return fmt.Errorf("story %s: updated_at: %w", s.StoryID, err)
	}
	return nil
}
