package types

import "context"

// Reader exposes the query primitives of a backlog store. Every method takes
// a context so list and detail reads can be cancelled by the caller.
type Reader interface {
	GetProject(ctx context.Context, projectID string) (*Project, error)
	FindEpicsByProject(ctx context.Context, projectID string) ([]Epic, error)
	FindFeaturesByProject(ctx context.Context, projectID string) ([]Feature, error)

	// FindSprintsByProject returns sprints ordered by start date (undated
	// sprints last) then title.
	FindSprintsByProject(ctx context.Context, projectID string) ([]Sprint, error)
	// GetSprint returns ErrNotFound if no sprint exists with that ID.
	GetSprint(ctx context.Context, sprintID string) (*Sprint, error)

	// FindMembershipsBySprint returns memberships ordered by priority.
	FindMembershipsBySprint(ctx context.Context, sprintID string) ([]Membership, error)
	FindMembershipsByStories(ctx context.Context, storyIDs []string) ([]Membership, error)

	FindStoriesByProject(ctx context.Context, projectID string) ([]StoryRow, error)
	GetStoriesByIDs(ctx context.Context, storyIDs []string) ([]Story, error)

	FindTasksByStoryIDs(ctx context.Context, storyIDs []string) ([]Task, error)
	FindTasksByProject(ctx context.Context, projectID string) ([]Task, error)

	// RecentWorklogs returns at most limit worklogs of the project, newest first.
	RecentWorklogs(ctx context.Context, projectID string, limit int) ([]WorklogEntry, error)
}

// Writer exposes the mutation primitives of a backlog store. Writers are only
// reachable inside Store.WithTx so that multi-statement changes are atomic.
type Writer interface {
	InsertProject(ctx context.Context, p *Project) error
	InsertEpic(ctx context.Context, e *Epic) error
	InsertFeature(ctx context.Context, f *Feature) error
	InsertStory(ctx context.Context, s *Story) error
	InsertTask(ctx context.Context, t *Task) error
	InsertWorklog(ctx context.Context, w *Worklog) error

	InsertSprint(ctx context.Context, s *Sprint) error
	UpdateSprint(ctx context.Context, s *Sprint) error
	// DeleteSprint returns ErrNotFound if no sprint exists with that ID.
	DeleteSprint(ctx context.Context, sprintID string) error

	InsertMembership(ctx context.Context, m *Membership) error
	// DeleteMembership returns ErrNotFound if the pair has no membership.
	DeleteMembership(ctx context.Context, sprintID, storyID string) error
	DeleteMembershipsBySprint(ctx context.Context, sprintID string) (int, error)
	// SetMembershipPriorities assigns priorities keyed by story ID to the
	// sprint's memberships. Story IDs without a membership are ignored.
	SetMembershipPriorities(ctx context.Context, sprintID string, priorities map[string]int) error

	// UpdateTaskSprintAssignment marks every task of storyIDs as in the
	// sprint backlog of sprintID, or unassigns them when sprintID is nil.
	UpdateTaskSprintAssignment(ctx context.Context, storyIDs []string, sprintID *string) error
	// UnassignTasksBySprint clears the sprint reference and the in-sprint
	// flag on every task tied to sprintID.
	UnassignTasksBySprint(ctx context.Context, sprintID string) error
}

// Tx is the view of a store inside a transaction.
type Tx interface {
	Reader
	Writer
}

// Store is the backlog persistence adapter. Reads run outside a transaction;
// writes run inside WithTx, which commits when fn returns nil and rolls back
// otherwise.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
