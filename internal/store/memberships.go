package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

const membershipColumns = "membership_id, sprint_id, story_id, priority, created_at"

// FindMembershipsBySprint returns the sprint's memberships ordered by
// priority.
func (q *queries) FindMembershipsBySprint(ctx context.Context, sprintID string) ([]types.Membership, error) {
	return q.findMemberships(ctx,
		"SELECT "+membershipColumns+" FROM sprint_memberships WHERE sprint_id = ? ORDER BY priority, created_at",
		sprintID,
	)
}

// FindMembershipsByStories returns the memberships held by any of storyIDs.
func (q *queries) FindMembershipsByStories(ctx context.Context, storyIDs []string) ([]types.Membership, error) {
	if len(storyIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(storyIDs)
	return q.findMemberships(ctx,
		"SELECT "+membershipColumns+" FROM sprint_memberships WHERE story_id IN ("+in+") ORDER BY sprint_id, priority",
		args...,
	)
}

func (q *queries) findMemberships(ctx context.Context, query string, args ...any) ([]types.Membership, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, dbError("finding memberships", err)
	}
	defer rows.Close()

	var ms []types.Membership
	for rows.Next() {
		var (
			m         types.Membership
			createdAt string
		)
		if err := rows.Scan(&m.MembershipID, &m.SprintID, &m.StoryID, &m.Priority, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("membership %s: created_at: %w", m.MembershipID, err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterating memberships", err)
	}
	return ms, nil
}

// InsertMembership links a story to a sprint. A story already in any
// sprint, or a priority already taken in the sprint, yields ErrDuplicate.
func (q *txQueries) InsertMembership(ctx context.Context, m *types.Membership) error {
	if m.SprintID == "" || m.StoryID == "" {
		return types.ErrInvalidID
	}
	if m.Priority < 1 {
		return types.ErrInvalidPriority
	}
	if m.MembershipID == "" {
		m.MembershipID = newUUID()
	}
	m.CreatedAt = nowOr(m.CreatedAt)
	_, err := q.exec(ctx,
		"INSERT INTO sprint_memberships ("+membershipColumns+") VALUES (?, ?, ?, ?, ?)",
		m.MembershipID, m.SprintID, m.StoryID, m.Priority, formatTime(m.CreatedAt),
	)
	if err != nil {
		return dbError("inserting membership", err)
	}
	return nil
}

// DeleteMembership returns ErrNotFound if the pair has no membership.
func (q *txQueries) DeleteMembership(ctx context.Context, sprintID, storyID string) error {
	return q.execAffecting(ctx, "deleting membership",
		"DELETE FROM sprint_memberships WHERE sprint_id = ? AND story_id = ?",
		sprintID, storyID,
	)
}

// DeleteMembershipsBySprint removes every membership of the sprint and
// reports how many were removed.
func (q *txQueries) DeleteMembershipsBySprint(ctx context.Context, sprintID string) (int, error) {
	res, err := q.exec(ctx, "DELETE FROM sprint_memberships WHERE sprint_id = ?", sprintID)
	if err != nil {
		return 0, dbError("deleting memberships", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbError("deleting memberships", err)
	}
	return int(n), nil
}

// SetMembershipPriorities assigns priorities keyed by story ID. The update
// runs in two phases: the touched rows are first moved to negative
// priorities, then given their final values, so the unique
// (sprint_id, priority) index holds after every statement.
func (q *txQueries) SetMembershipPriorities(ctx context.Context, sprintID string, priorities map[string]int) error {
	if len(priorities) == 0 {
		return nil
	}
	storyIDs := make([]string, 0, len(priorities))
	for id, p := range priorities {
		if p < 1 {
			return types.ErrInvalidPriority
		}
		storyIDs = append(storyIDs, id)
	}
	sort.Strings(storyIDs)

	in, ids := inClause(storyIDs)
	_, err := q.exec(ctx,
		"UPDATE sprint_memberships SET priority = -priority WHERE sprint_id = ? AND story_id IN ("+in+")",
		append([]any{sprintID}, ids...)...,
	)
	if err != nil {
		return dbError("parking membership priorities", err)
	}

	for _, id := range storyIDs {
		_, err := q.exec(ctx,
			"UPDATE sprint_memberships SET priority = ? WHERE sprint_id = ? AND story_id = ?",
			priorities[id], sprintID, id,
		)
		if err != nil {
			return dbError("setting membership priority", err)
		}
	}
	return nil
}
