package projection

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/rollup"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// ActivityLimit caps the dashboard's recent activity list.
const ActivityLimit = 8

// CurrentLabel labels the single burnup point emitted when no task is done.
const CurrentLabel = "Current"

// weekLabelLayout formats the Monday that starts a burnup week.
const weekLabelLayout = "2006-01-02"

// BurnupPoint is one week of the burnup series.
type BurnupPoint struct {
	Week      string `json:"week"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// Dashboard aggregates a project's size, cost and progress.
type Dashboard struct {
	ProjectID          string               `json:"project_id"`
	ProjectName        string               `json:"project_name"`
	StoryCount         int                  `json:"story_count"`
	EstimatedDevHours  float64              `json:"estimated_dev_hours"`
	EstimatedTestHours float64              `json:"estimated_test_hours"`
	TotalCost          float64              `json:"total_cost"`
	TaskCount          int                  `json:"task_count"`
	CompletedTasks     int                  `json:"completed_tasks"`
	Burnup             []BurnupPoint        `json:"burnup"`
	Activity           []types.WorklogEntry `json:"activity"`
}

// GetDashboard loads the project's stories, tasks and recent worklogs
// concurrently and aggregates them.
func (s *Service) GetDashboard(ctx context.Context, projectID string) (*Dashboard, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if backlogerrors.IsNotFound(err) {
			return nil, backlogerrors.ErrProjectNotFound(projectID)
		}
		return nil, backlogerrors.FromStore(err)
	}

	var (
		stories  []types.StoryRow
		tasks    []types.Task
		activity []types.WorklogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stories, err = s.store.FindStoriesByProject(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.store.FindTasksByProject(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = s.store.RecentWorklogs(gctx, projectID, ActivityLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, backlogerrors.FromStore(err)
	}

	d := &Dashboard{
		ProjectID:   project.ProjectID,
		ProjectName: project.Name,
		StoryCount:  len(stories),
		TaskCount:   len(tasks),
		Burnup:      Burnup(tasks),
		Activity:    activity,
	}
	if d.Activity == nil {
		d.Activity = []types.WorklogEntry{}
	}

	tasksByStory := rollup.GroupTasksByStory(tasks)
	totals := make([]float64, 0, len(stories))
	for _, st := range stories {
		if st.EstimatedDevHours != nil {
			d.EstimatedDevHours += *st.EstimatedDevHours
		}
		if st.EstimatedTestHours != nil {
			d.EstimatedTestHours += *st.EstimatedTestHours
		}
		totals = append(totals, rollup.TotalCost(tasksByStory[st.StoryID]))
	}
	d.TotalCost = rollup.SumCosts(totals...)
	for _, t := range tasks {
		if rollup.IsDone(t.Status) {
			d.CompletedTasks++
		}
	}
	return d, nil
}

// Burnup groups done tasks into weeks starting Monday, keyed on each task's
// last activity, and returns one point per week in chronological order with
// the cumulative completed count. No tasks yields an empty series; tasks
// with none done yield a single CurrentLabel point.
func Burnup(tasks []types.Task) []BurnupPoint {
	if len(tasks) == 0 {
		return []BurnupPoint{}
	}

	perWeek := make(map[time.Time]int)
	for _, t := range tasks {
		if rollup.IsDone(t.Status) {
			perWeek[WeekStart(t.LastActivity())]++
		}
	}
	if len(perWeek) == 0 {
		return []BurnupPoint{{Week: CurrentLabel, Total: len(tasks), Completed: 0}}
	}

	weeks := make([]time.Time, 0, len(perWeek))
	for w := range perWeek {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Before(weeks[j]) })

	points := make([]BurnupPoint, 0, len(weeks))
	cumulative := 0
	for _, w := range weeks {
		cumulative += perWeek[w]
		points = append(points, BurnupPoint{
			Week:      w.Format(weekLabelLayout),
			Total:     len(tasks),
			Completed: cumulative,
		})
	}
	return points
}

// WeekStart returns midnight UTC of the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -offset)
}
