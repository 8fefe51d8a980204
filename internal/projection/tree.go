package projection

import (
	"context"

	"golang.org/x/sync/errgroup"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/rollup"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// ProjectTree is the full backlog: project, epics, features, stories and
// tasks, with cost rolled up at every level.
type ProjectTree struct {
	types.Project
	Epics     []EpicNode `json:"epics"`
	TotalCost float64    `json:"total_cost"`
}

// EpicNode is an epic with its features.
type EpicNode struct {
	types.Epic
	Features  []FeatureNode `json:"features"`
	TotalCost float64       `json:"total_cost"`
}

// FeatureNode is a feature with its stories.
type FeatureNode struct {
	types.Feature
	Stories   []StoryNode `json:"stories"`
	TotalCost float64     `json:"total_cost"`
}

// StoryNode is a story with its rollups, sprint membership and tasks.
type StoryNode struct {
	StoryView
	Description        string       `json:"description"`
	AcceptanceCriteria []string     `json:"acceptance_criteria"`
	SprintID           *string      `json:"sprint_id"`
	Tasks              []types.Task `json:"tasks"`
}

// GetBacklogTree loads the whole backlog of a project.
func (s *Service) GetBacklogTree(ctx context.Context, projectID string) (*ProjectTree, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if backlogerrors.IsNotFound(err) {
			return nil, backlogerrors.ErrProjectNotFound(projectID)
		}
		return nil, backlogerrors.FromStore(err)
	}

	var (
		epics    []types.Epic
		features []types.Feature
		stories  []types.StoryRow
		tasks    []types.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		epics, err = s.store.FindEpicsByProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		features, err = s.store.FindFeaturesByProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		stories, err = s.store.FindStoriesByProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = s.store.FindTasksByProject(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	ids := make([]string, len(stories))
	for i, st := range stories {
		ids[i] = st.StoryID
	}
	memberships, err := s.store.FindMembershipsByStories(ctx, ids)
	if err != nil {
		return nil, backlogerrors.FromStore(err)
	}
	membershipOf := make(map[string]types.Membership, len(memberships))
	for _, m := range memberships {
		membershipOf[m.StoryID] = m
	}
	tasksByStory := rollup.GroupTasksByStory(tasks)

	storiesByFeature := make(map[string][]StoryNode)
	for _, st := range stories {
		storyTasks := tasksByStory[st.StoryID]
		if storyTasks == nil {
			storyTasks = []types.Task{}
		}
		node := StoryNode{
			StoryView:          storyView(st.Story, storyTasks),
			Description:        st.Description,
			AcceptanceCriteria: st.AcceptanceCriteria,
			Tasks:              storyTasks,
		}
		if m, ok := membershipOf[st.StoryID]; ok {
			sprintID := m.SprintID
			node.SprintID = &sprintID
			node.Priority = m.Priority
		}
		storiesByFeature[st.FeatureID] = append(storiesByFeature[st.FeatureID], node)
	}

	featuresByEpic := make(map[string][]FeatureNode)
	for _, f := range features {
		fn := FeatureNode{Feature: f, Stories: storiesByFeature[f.FeatureID]}
		if fn.Stories == nil {
			fn.Stories = []StoryNode{}
		}
		totals := make([]float64, len(fn.Stories))
		for i, sn := range fn.Stories {
			totals[i] = sn.TotalCost
		}
		fn.TotalCost = rollup.SumCosts(totals...)
		featuresByEpic[f.EpicID] = append(featuresByEpic[f.EpicID], fn)
	}

	tree := &ProjectTree{Project: *project, Epics: make([]EpicNode, 0, len(epics))}
	epicTotals := make([]float64, 0, len(epics))
	for _, e := range epics {
		en := EpicNode{Epic: e, Features: featuresByEpic[e.EpicID]}
		if en.Features == nil {
			en.Features = []FeatureNode{}
		}
		var storyTotals []float64
		for _, fn := range en.Features {
			for _, sn := range fn.Stories {
				storyTotals = append(storyTotals, sn.TotalCost)
			}
		}
		en.TotalCost = rollup.SumCosts(storyTotals...)
		epicTotals = append(epicTotals, storyTotals...)
		tree.Epics = append(tree.Epics, en)
	}
	tree.TotalCost = rollup.SumCosts(epicTotals...)
	return tree, nil
}
