// Package projection assembles the read-only backlog views: per-sprint
// ordered story lists, the story backlog with membership flags, the
// dashboard and the full backlog tree. Derived values come from the rollup
// package on every read; nothing here writes to the store.
package projection

import (
	"context"
	"log/slog"
	"time"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/rollup"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// StoryView is a story with its derived status and cost.
type StoryView struct {
	StoryID     string            `json:"story_id"`
	FeatureID   string            `json:"feature_id"`
	Title       string            `json:"title"`
	Priority    int               `json:"priority,omitempty"`
	StoryPoints *int              `json:"story_points"`
	Status      types.StoryStatus `json:"status"`
	TotalCost   float64           `json:"total_cost"`
	TaskCount   int               `json:"task_count"`
}

// SprintView is a sprint with its stories in priority order.
type SprintView struct {
	SprintID  string      `json:"sprint_id"`
	ProjectID string      `json:"project_id"`
	Title     string      `json:"title"`
	StartDate *time.Time  `json:"start_date"`
	EndDate   *time.Time  `json:"end_date"`
	Status    string      `json:"status"`
	Stories   []StoryView `json:"stories"`
	TotalCost float64     `json:"total_cost"`
}

// StoryIDs returns the sprint's story IDs in priority order.
func (v *SprintView) StoryIDs() []string {
	ids := make([]string, len(v.Stories))
	for i, s := range v.Stories {
		ids[i] = s.StoryID
	}
	return ids
}

// BacklogStory is a project story annotated with its place in the
// hierarchy and its sprint membership, if any.
type BacklogStory struct {
	StoryView
	FeatureTitle string  `json:"feature_title"`
	EpicID       string  `json:"epic_id"`
	EpicTitle    string  `json:"epic_title"`
	InSprint     bool    `json:"in_sprint"`
	SprintID     *string `json:"sprint_id"`
	SprintTitle  string  `json:"sprint_title,omitempty"`
}

// Unassigned filters stories down to those without a sprint membership.
func Unassigned(stories []BacklogStory) []BacklogStory {
	out := make([]BacklogStory, 0, len(stories))
	for _, s := range stories {
		if !s.InSprint {
			out = append(out, s)
		}
	}
	return out
}

// Service builds projections from a store reader.
type Service struct {
	store  types.Reader
	logger *slog.Logger
}

// NewService creates a projection service. A nil logger uses slog.Default().
func NewService(store types.Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// GetSprints returns every sprint of the project ordered by start date
// (undated last) then title, each with its stories in priority order.
func (s *Service) GetSprints(ctx context.Context, projectID string) ([]SprintView, error) {
	sprints, err := s.store.FindSprintsByProject(ctx, projectID)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	views := make([]SprintView, 0, len(sprints))
	for _, sp := range sprints {
		v, err := s.sprintView(ctx, sp)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// GetSprint returns one sprint projection, or a SPRINT_NOT_FOUND error.
func (s *Service) GetSprint(ctx context.Context, sprintID string) (*SprintView, error) {
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		if backlogerrors.IsNotFound(err) {
			return nil, backlogerrors.ErrSprintNotFound(sprintID)
		}
		return nil, backlogerrors.FromStore(err)
	}
	return s.sprintView(ctx, *sp)
}

func (s *Service) sprintView(ctx context.Context, sp types.Sprint) (*SprintView, error) {
	memberships, err := s.store.FindMembershipsBySprint(ctx, sp.SprintID)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.StoryID
	}
	stories, err := s.store.GetStoriesByIDs(ctx, ids)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	tasks, err := s.store.FindTasksByStoryIDs(ctx, ids)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	byID := make(map[string]types.Story, len(stories))
	for _, st := range stories {
		byID[st.StoryID] = st
	}
	tasksByStory := rollup.GroupTasksByStory(tasks)

	view := &SprintView{
		SprintID:  sp.SprintID,
		ProjectID: sp.ProjectID,
		Title:     sp.Title,
		StartDate: sp.StartDate,
		EndDate:   sp.EndDate,
		Status:    sp.Status,
		Stories:   make([]StoryView, 0, len(memberships)),
	}
	totals := make([]float64, 0, len(memberships))
	for _, m := range memberships {
		st, ok := byID[m.StoryID]
		if !ok {
			s.logger.Warn("membership references missing story",
				"sprint_id", sp.SprintID, "story_id", m.StoryID)
			continue
		}
		sv := storyView(st, tasksByStory[st.StoryID])
		sv.Priority = m.Priority
		view.Stories = append(view.Stories, sv)
		totals = append(totals, sv.TotalCost)
	}
	view.TotalCost = rollup.SumCosts(totals...)
	return view, nil
}

// GetBacklogStories returns every story of the project with its derived
// status and cost and its sprint membership, ordered by epic title, feature
// title, then story title.
func (s *Service) GetBacklogStories(ctx context.Context, projectID string) ([]BacklogStory, error) {
	rows, err := s.store.FindStoriesByProject(ctx, projectID)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.StoryID
	}
	memberships, err := s.store.FindMembershipsByStories(ctx, ids)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	tasks, err := s.store.FindTasksByProject(ctx, projectID)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	sprints, err := s.store.FindSprintsByProject(ctx, projectID)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	sprintTitles := make(map[string]string, len(sprints))
	for _, sp := range sprints {
		sprintTitles[sp.SprintID] = sp.Title
	}
	membershipOf := make(map[string]types.Membership, len(memberships))
	for _, m := range memberships {
		membershipOf[m.StoryID] = m
	}
	tasksByStory := rollup.GroupTasksByStory(tasks)

	out := make([]BacklogStory, 0, len(rows))
	for _, r := range rows {
		bs := BacklogStory{
			StoryView:    storyView(r.Story, tasksByStory[r.StoryID]),
			FeatureTitle: r.FeatureTitle,
			EpicID:       r.EpicID,
			EpicTitle:    r.EpicTitle,
		}
		if m, ok := membershipOf[r.StoryID]; ok {
			sprintID := m.SprintID
			bs.InSprint = true
			bs.SprintID = &sprintID
			bs.SprintTitle = sprintTitles[sprintID]
			bs.Priority = m.Priority
		}
		out = append(out, bs)
	}
	return out, nil
}

// storyView applies the rollups to one story and its tasks.
func storyView(st types.Story, tasks []types.Task) StoryView {
	return StoryView{
		StoryID:     st.StoryID,
		FeatureID:   st.FeatureID,
		Title:       st.Title,
		StoryPoints: st.StoryPoints,
		Status:      rollup.DeriveStoryStatus(tasks, st.StoryPoints),
		TotalCost:   rollup.TotalCost(tasks),
		TaskCount:   len(tasks),
	}
}
