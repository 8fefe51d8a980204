// Package sprint owns sprint lifecycle and the ordered membership of
// stories in a sprint. Every mutation runs in one store transaction, keeps
// the sprint's priorities dense (1..N), and keeps each member story's
// tasks flagged as in the sprint backlog.
package sprint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// CreateSprintRequest describes a new sprint. StoryIDs, when present, become
// the sprint's members in the given order.
type CreateSprintRequest struct {
	ProjectID string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
	StoryIDs  []string
}

// UpdateSprintRequest is a partial update; nil fields are left unchanged.
type UpdateSprintRequest struct {
	Name      *string
	StartDate *time.Time
	EndDate   *time.Time
	Status    *string
}

// Service implements the sprint membership operations.
type Service struct {
	store      types.Store
	projection *projection.Service
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewService creates a sprint service. A nil publisher discards events and
// a nil logger uses slog.Default().
func NewService(store types.Store, proj *projection.Service, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, projection: proj, publisher: publisher, logger: logger}
}

// CreateSprint creates a sprint, optionally pre-populated with stories at
// priorities 1..len(StoryIDs), and returns its projection. Duplicate story
// IDs are not removed; the membership constraints reject them and nothing
// is written.
func (s *Service) CreateSprint(ctx context.Context, req CreateSprintRequest) (*projection.SprintView, error) {
	sp := &types.Sprint{
		ProjectID: req.ProjectID,
		Title:     strings.TrimSpace(req.Name),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Status:    types.SprintStatusPlanned,
	}
	if err := validateSprint(sp); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx types.Tx) error {
		if _, err := tx.GetProject(ctx, req.ProjectID); err != nil {
			if backlogerrors.IsNotFound(err) {
				return backlogerrors.ErrProjectNotFound(req.ProjectID)
			}
			return err
		}
		if err := checkStories(ctx, tx, "", req.StoryIDs); err != nil {
			return err
		}
		if err := tx.InsertSprint(ctx, sp); err != nil {
			return err
		}
		return addMembers(ctx, tx, sp.SprintID, req.StoryIDs)
	})
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	s.logger.Info("sprint created",
		"sprint_id", sp.SprintID, "project_id", sp.ProjectID, "stories", len(req.StoryIDs))
	s.publish(events.SprintChanged, sp.ProjectID, sp.SprintID, req.StoryIDs)
	if len(req.StoryIDs) > 0 {
		s.publish(events.BacklogChanged, sp.ProjectID, sp.SprintID, req.StoryIDs)
	}
	return s.projection.GetSprint(ctx, sp.SprintID)
}

// DeleteSprint removes the sprint's memberships, unassigns every task tied
// to it, then removes the sprint.
func (s *Service) DeleteSprint(ctx context.Context, sprintID string) error {
	var (
		projectID string
		storyIDs  []string
	)
	err := s.store.WithTx(ctx, func(tx types.Tx) error {
		sp, err := getSprint(ctx, tx, sprintID)
		if err != nil {
			return err
		}
		projectID = sp.ProjectID

		memberships, err := tx.FindMembershipsBySprint(ctx, sprintID)
		if err != nil {
			return err
		}
		storyIDs = membershipStoryIDs(memberships)

		if _, err := tx.DeleteMembershipsBySprint(ctx, sprintID); err != nil {
			return err
		}
		if err := tx.UnassignTasksBySprint(ctx, sprintID); err != nil {
			return err
		}
		if err := tx.UpdateTaskSprintAssignment(ctx, storyIDs, nil); err != nil {
			return err
		}
		return tx.DeleteSprint(ctx, sprintID)
	})
	if err != nil {
		return backlogerrors.FromStore(err)
	}

	s.logger.Info("sprint deleted", "sprint_id", sprintID, "released_stories", len(storyIDs))
	s.publish(events.SprintChanged, projectID, sprintID, nil)
	s.publish(events.BacklogChanged, projectID, sprintID, storyIDs)
	return nil
}

// ReplaceStories makes storyIDs the complete, ordered member list of the
// sprint. Stories dropped from the sprint have their tasks unassigned.
func (s *Service) ReplaceStories(ctx context.Context, sprintID string, storyIDs []string) error {
	var projectID string
	err := s.store.WithTx(ctx, func(tx types.Tx) error {
		sp, err := getSprint(ctx, tx, sprintID)
		if err != nil {
			return err
		}
		projectID = sp.ProjectID

		if err := checkStories(ctx, tx, sprintID, storyIDs); err != nil {
			return err
		}
		old, err := tx.FindMembershipsBySprint(ctx, sprintID)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteMembershipsBySprint(ctx, sprintID); err != nil {
			return err
		}

		keep := make(map[string]bool, len(storyIDs))
		for _, id := range storyIDs {
			keep[id] = true
		}
		var removed []string
		for _, m := range old {
			if !keep[m.StoryID] {
				removed = append(removed, m.StoryID)
			}
		}
		if err := tx.UpdateTaskSprintAssignment(ctx, removed, nil); err != nil {
			return err
		}
		return addMembers(ctx, tx, sprintID, storyIDs)
	})
	if err != nil {
		return backlogerrors.FromStore(err)
	}

	s.logger.Info("sprint stories replaced", "sprint_id", sprintID, "stories", len(storyIDs))
	s.publish(events.SprintChanged, projectID, sprintID, storyIDs)
	s.publish(events.BacklogChanged, projectID, sprintID, storyIDs)
	return nil
}

// Reorder renumbers the sprint's memberships to follow orderedStoryIDs.
// IDs that are not members are skipped and repeated IDs count once; members
// missing from the list keep their relative order after the listed ones.
// Unknown IDs do not consume a position: the k listed members get priorities
// 1..k in list order.
// Reorder never creates or deletes memberships, and applying the same list
// twice gives the same priorities as applying it once.
func (s *Service) Reorder(ctx context.Context, sprintID string, orderedStoryIDs []string) error {
	var (
		projectID string
		skipped   int
	)
	err := s.store.WithTx(ctx, func(tx types.Tx) error {
		sp, err := getSprint(ctx, tx, sprintID)
		if err != nil {
			return err
		}
		projectID = sp.ProjectID

		memberships, err := tx.FindMembershipsBySprint(ctx, sprintID)
		if err != nil {
			return err
		}
		var priorities map[string]int
		priorities, skipped = Renumber(memberships, orderedStoryIDs)
		return tx.SetMembershipPriorities(ctx, sprintID, priorities)
	})
	if err != nil {
		return backlogerrors.FromStore(err)
	}

	if skipped > 0 {
		s.logger.Debug("reorder skipped non-member stories", "sprint_id", sprintID, "skipped", skipped)
	}
	s.publish(events.SprintChanged, projectID, sprintID, orderedStoryIDs)
	return nil
}

// UpdateSprint applies a partial update to the sprint's title, dates or
// lifecycle status and returns the new projection.
func (s *Service) UpdateSprint(ctx context.Context, sprintID string, req UpdateSprintRequest) (*projection.SprintView, error) {
	var projectID string
	err := s.store.WithTx(ctx, func(tx types.Tx) error {
		sp, err := getSprint(ctx, tx, sprintID)
		if err != nil {
			return err
		}
		projectID = sp.ProjectID

		if req.Name != nil {
			sp.Title = strings.TrimSpace(*req.Name)
		}
		if req.StartDate != nil {
			sp.StartDate = req.StartDate
		}
		if req.EndDate != nil {
			sp.EndDate = req.EndDate
		}
		if req.Status != nil {
			if err := sp.SetStatus(*req.Status); err != nil {
				return backlogerrors.ErrInvalidRequest(
					fmt.Sprintf("cannot move sprint from %s to %s", sp.Status, *req.Status), err)
			}
		}
		if err := validateSprint(sp); err != nil {
			return err
		}
		return tx.UpdateSprint(ctx, sp)
	})
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	s.logger.Info("sprint updated", "sprint_id", sprintID)
	s.publish(events.SprintChanged, projectID, sprintID, nil)
	return s.projection.GetSprint(ctx, sprintID)
}

// Renumber computes dense priorities for a reorder request. Members named
// in ordered take 1..k in list order; the remaining members follow in their
// current order. It returns the assignment and the number of listed IDs
// that were not members.
func Renumber(memberships []types.Membership, ordered []string) (map[string]int, int) {
	isMember := make(map[string]bool, len(memberships))
	for _, m := range memberships {
		isMember[m.StoryID] = true
	}

	priorities := make(map[string]int, len(memberships))
	next := 1
	skipped := 0
	for _, id := range ordered {
		if !isMember[id] {
			skipped++
			continue
		}
		if _, done := priorities[id]; done {
			continue
		}
		priorities[id] = next
		next++
	}
	for _, m := range memberships {
		if _, done := priorities[m.StoryID]; !done {
			priorities[m.StoryID] = next
			next++
		}
	}
	return priorities, skipped
}

func (s *Service) publish(typ events.Type, projectID, sprintID string, storyIDs []string) {
	s.publisher.Publish(events.Event{
		Type:      typ,
		ProjectID: projectID,
		SprintID:  sprintID,
		StoryIDs:  storyIDs,
	})
}

// validateSprint maps entity validation failures to request errors.
func validateSprint(sp *types.Sprint) error {
	if err := sp.Validate(); err != nil {
		switch err {
		case types.ErrInvalidName:
			return backlogerrors.ErrInvalidRequest("sprint name is required", err)
		case types.ErrInvalidDates:
			return backlogerrors.ErrInvalidRequest("sprint end date must be after start date", err)
		default:
			return backlogerrors.ErrInvalidRequest("invalid sprint", err)
		}
	}
	return nil
}

func getSprint(ctx context.Context, tx types.Tx, sprintID string) (*types.Sprint, error) {
	if sprintID == "" {
		return nil, backlogerrors.ErrInvalidRequest("sprint id is required", types.ErrInvalidID)
	}
	sp, err := tx.GetSprint(ctx, sprintID)
	if err != nil {
		if backlogerrors.IsNotFound(err) {
			return nil, backlogerrors.ErrSprintNotFound(sprintID)
		}
		return nil, err
	}
	return sp, nil
}

// checkStories verifies that every story exists and is not a member of a
// sprint other than sprintID.
func checkStories(ctx context.Context, tx types.Tx, sprintID string, storyIDs []string) error {
	if len(storyIDs) == 0 {
		return nil
	}
	stories, err := tx.GetStoriesByIDs(ctx, storyIDs)
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(stories))
	for _, st := range stories {
		found[st.StoryID] = true
	}
	for _, id := range storyIDs {
		if !found[id] {
			return backlogerrors.ErrStoryNotFound(id)
		}
	}

	memberships, err := tx.FindMembershipsByStories(ctx, storyIDs)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if m.SprintID != sprintID {
			return backlogerrors.ErrInvalidRequest(
				fmt.Sprintf("story %s already belongs to sprint %s", m.StoryID, m.SprintID), types.ErrDuplicate)
		}
	}
	return nil
}

// addMembers inserts memberships at priorities 1..len(storyIDs) and flags
// the stories' tasks as in the sprint.
func addMembers(ctx context.Context, tx types.Tx, sprintID string, storyIDs []string) error {
	for i, id := range storyIDs {
		m := &types.Membership{SprintID: sprintID, StoryID: id, Priority: i + 1}
		if err := tx.InsertMembership(ctx, m); err != nil {
			return err
		}
	}
	return tx.UpdateTaskSprintAssignment(ctx, storyIDs, &sprintID)
}

func membershipStoryIDs(ms []types.Membership) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.StoryID
	}
	return ids
}
