package sprint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/internal/store/storetest"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

type fixture struct {
	store     types.Store
	svc       *sprint.Service
	proj      *projection.Service
	publisher *events.MemoryPublisher
	builder   *storetest.Builder
	backlog   *storetest.Backlog
}

func newFixture(t *testing.T, titles ...string) *fixture {
	t.Helper()
	s := storetest.Open(t)
	b := storetest.NewBuilder(t, s)
	pub := events.NewMemoryPublisher()
	t.Cleanup(pub.Close)
	proj := projection.NewService(s, nil)
	return &fixture{
		store:     s,
		svc:       sprint.NewService(s, proj, pub, nil),
		proj:      proj,
		publisher: pub,
		builder:   b,
		backlog:   b.Backlog(titles...),
	}
}

func (f *fixture) id(i int) string { return f.backlog.Stories[i].StoryID }

// priorities returns story ID → priority for the sprint and asserts density.
func (f *fixture) priorities(t *testing.T, sprintID string) map[string]int {
	t.Helper()
	ms, err := f.store.FindMembershipsBySprint(context.Background(), sprintID)
	require.NoError(t, err)
	assert.True(t, types.IsDense(ms), "priorities must be 1..N")
	out := make(map[string]int, len(ms))
	for _, m := range ms {
		out[m.StoryID] = m.Priority
	}
	return out
}

func (f *fixture) tasksOf(t *testing.T, storyID string) []types.Task {
	t.Helper()
	tasks, err := f.store.FindTasksByStoryIDs(context.Background(), []string{storyID})
	require.NoError(t, err)
	return tasks
}

func TestCreateReorderReplaceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B", "C")
	a, b, c := f.id(0), f.id(1), f.id(2)
	taskB := f.builder.Task(b, "b1", "todo")

	view, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{
		ProjectID: f.backlog.Project.ProjectID,
		Name:      "Sprint 1",
		StoryIDs:  []string{a, b, c},
	})
	require.NoError(t, err)
	assert.Equal(t, "Sprint 1", view.Title)
	assert.Equal(t, types.SprintStatusPlanned, view.Status)
	assert.Equal(t, []string{a, b, c}, view.StoryIDs())
	assert.Equal(t, map[string]int{a: 1, b: 2, c: 3}, f.priorities(t, view.SprintID))

	tasks := f.tasksOf(t, b)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].InSprintBacklog)
	require.NotNil(t, tasks[0].SprintID)
	assert.Equal(t, view.SprintID, *tasks[0].SprintID)

	require.NoError(t, f.svc.Reorder(ctx, view.SprintID, []string{c, a, b}))
	assert.Equal(t, map[string]int{c: 1, a: 2, b: 3}, f.priorities(t, view.SprintID))

	require.NoError(t, f.svc.ReplaceStories(ctx, view.SprintID, []string{c, a}))
	assert.Equal(t, map[string]int{c: 1, a: 2}, f.priorities(t, view.SprintID))

	tasks = f.tasksOf(t, b)
	assert.False(t, tasks[0].InSprintBacklog)
	assert.Nil(t, tasks[0].SprintID)
	assert.Equal(t, taskB.TaskID, tasks[0].TaskID)

	backlog, err := f.proj.GetBacklogStories(ctx, f.backlog.Project.ProjectID)
	require.NoError(t, err)
	unassigned := projection.Unassigned(backlog)
	require.Len(t, unassigned, 1)
	assert.Equal(t, b, unassigned[0].StoryID)
}

func TestCreateSprintValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B")
	projectID := f.backlog.Project.ProjectID
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)

	tests := []struct {
		name string
		req  sprint.CreateSprintRequest
		want error
	}{
		{"empty name", sprint.CreateSprintRequest{ProjectID: projectID, Name: "  "}, backlogerrors.ErrInvalidRequest("", nil)},
		{"end before start", sprint.CreateSprintRequest{ProjectID: projectID, Name: "S", StartDate: &start, EndDate: &before}, backlogerrors.ErrInvalidRequest("", nil)},
		{"end equals start", sprint.CreateSprintRequest{ProjectID: projectID, Name: "S", StartDate: &start, EndDate: &start}, backlogerrors.ErrInvalidRequest("", nil)},
		{"unknown project", sprint.CreateSprintRequest{ProjectID: "missing", Name: "S"}, backlogerrors.ErrProjectNotFound("missing")},
		{"unknown story", sprint.CreateSprintRequest{ProjectID: projectID, Name: "S", StoryIDs: []string{"nope"}}, backlogerrors.ErrStoryNotFound("nope")},
		{"duplicate ids", sprint.CreateSprintRequest{ProjectID: projectID, Name: "S", StoryIDs: []string{f.id(0), f.id(0)}}, backlogerrors.ErrInvalidRequest("", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateSprint(ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	sprints, err := f.store.FindSprintsByProject(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, sprints, "failed creates leave nothing behind")
}

func TestCreateSprintRejectsStoryInOtherSprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B")
	projectID := f.backlog.Project.ProjectID

	_, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{ProjectID: projectID, Name: "One", StoryIDs: []string{f.id(0)}})
	require.NoError(t, err)

	_, err = f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{ProjectID: projectID, Name: "Two", StoryIDs: []string{f.id(1), f.id(0)}})
	assert.True(t, backlogerrors.IsInvalid(err))
}

func TestDeleteSprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B")
	a, b := f.id(0), f.id(1)
	f.builder.Task(a, "a1", "done")
	f.builder.Task(b, "b1", "todo")

	view, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{
		ProjectID: f.backlog.Project.ProjectID, Name: "S", StoryIDs: []string{a, b},
	})
	require.NoError(t, err)

	sub := f.publisher.Subscribe(f.backlog.Project.ProjectID)
	require.NoError(t, f.svc.DeleteSprint(ctx, view.SprintID))

	ms, err := f.store.FindMembershipsByStories(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Empty(t, ms)
	for _, id := range []string{a, b} {
		for _, task := range f.tasksOf(t, id) {
			assert.False(t, task.InSprintBacklog)
			assert.Nil(t, task.SprintID)
		}
	}

	backlog, err := f.proj.GetBacklogStories(ctx, f.backlog.Project.ProjectID)
	require.NoError(t, err)
	assert.Len(t, projection.Unassigned(backlog), 2)

	var got []events.Type
	for len(sub) > 0 {
		got = append(got, (<-sub).Type)
	}
	assert.Equal(t, []events.Type{events.SprintChanged, events.BacklogChanged}, got)

	err = f.svc.DeleteSprint(ctx, view.SprintID)
	assert.ErrorIs(t, err, backlogerrors.ErrSprintNotFound(view.SprintID))
	assert.Equal(t, 404, backlogerrors.HTTPStatus(err))
}

func TestMissingSprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A")
	notFound := backlogerrors.ErrSprintNotFound("missing")

	assert.ErrorIs(t, f.svc.ReplaceStories(ctx, "missing", []string{f.id(0)}), notFound)
	assert.ErrorIs(t, f.svc.Reorder(ctx, "missing", []string{f.id(0)}), notFound)
	_, err := f.svc.UpdateSprint(ctx, "missing", sprint.UpdateSprintRequest{})
	assert.ErrorIs(t, err, notFound)
}

func TestReorderIsPermissiveAndIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B", "C", "D")
	a, b, c, d := f.id(0), f.id(1), f.id(2), f.id(3)

	view, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{
		ProjectID: f.backlog.Project.ProjectID, Name: "S", StoryIDs: []string{a, b, c},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Reorder(ctx, view.SprintID, []string{"ghost", c, d, b, a}))
	want := map[string]int{c: 1, b: 2, a: 3}
	assert.Equal(t, want, f.priorities(t, view.SprintID), "non-members are skipped, never added")

	require.NoError(t, f.svc.Reorder(ctx, view.SprintID, []string{"ghost", c, d, b, a}))
	assert.Equal(t, want, f.priorities(t, view.SprintID))

	require.NoError(t, f.svc.Reorder(ctx, view.SprintID, []string{a}))
	assert.Equal(t, map[string]int{a: 1, c: 2, b: 3}, f.priorities(t, view.SprintID),
		"unlisted members keep their relative order after the listed ones")

	require.NoError(t, f.svc.Reorder(ctx, view.SprintID, nil))
	assert.Equal(t, map[string]int{a: 1, c: 2, b: 3}, f.priorities(t, view.SprintID))
}

func TestRenumber(t *testing.T) {
	ms := []types.Membership{
		{StoryID: "a", Priority: 1},
		{StoryID: "b", Priority: 2},
		{StoryID: "c", Priority: 3},
	}
	tests := []struct {
		name        string
		ordered     []string
		want        map[string]int
		wantSkipped int
	}{
		{"full list", []string{"c", "a", "b"}, map[string]int{"c": 1, "a": 2, "b": 3}, 0},
		{"unknown ids", []string{"x", "b", "y"}, map[string]int{"b": 1, "a": 2, "c": 3}, 2},
		{"repeated id", []string{"b", "b", "a"}, map[string]int{"b": 1, "a": 2, "c": 3}, 0},
		{"empty", nil, map[string]int{"a": 1, "b": 2, "c": 3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, skipped := sprint.Renumber(ms, tt.ordered)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSkipped, skipped)
		})
	}
}

func TestReplaceStories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A", "B", "C")
	a, b, c := f.id(0), f.id(1), f.id(2)
	f.builder.Task(c, "c1", "todo")

	view, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{
		ProjectID: f.backlog.Project.ProjectID, Name: "S", StoryIDs: []string{a},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ReplaceStories(ctx, view.SprintID, []string{c, b, a}))
	assert.Equal(t, map[string]int{c: 1, b: 2, a: 3}, f.priorities(t, view.SprintID))
	assert.True(t, f.tasksOf(t, c)[0].InSprintBacklog)

	require.NoError(t, f.svc.ReplaceStories(ctx, view.SprintID, nil))
	assert.Empty(t, f.priorities(t, view.SprintID))
	assert.False(t, f.tasksOf(t, c)[0].InSprintBacklog)

	err = f.svc.ReplaceStories(ctx, view.SprintID, []string{a, "nope"})
	assert.ErrorIs(t, err, backlogerrors.ErrStoryNotFound("nope"))
	assert.Empty(t, f.priorities(t, view.SprintID), "failed replace changes nothing")
}

func TestUpdateSprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A")
	view, err := f.svc.CreateSprint(ctx, sprint.CreateSprintRequest{ProjectID: f.backlog.Project.ProjectID, Name: "S"})
	require.NoError(t, err)

	name := "Renamed"
	active := types.SprintStatusActive
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)
	updated, err := f.svc.UpdateSprint(ctx, view.SprintID, sprint.UpdateSprintRequest{
		Name: &name, Status: &active, StartDate: &start, EndDate: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, types.SprintStatusActive, updated.Status)
	require.NotNil(t, updated.StartDate)
	assert.True(t, start.Equal(*updated.StartDate))

	planned := types.SprintStatusPlanned
	_, err = f.svc.UpdateSprint(ctx, view.SprintID, sprint.UpdateSprintRequest{Status: &planned})
	assert.True(t, backlogerrors.IsInvalid(err))
	assert.True(t, errors.Is(err, types.ErrInvalidTransition))

	early := start.AddDate(0, 0, 20)
	_, err = f.svc.UpdateSprint(ctx, view.SprintID, sprint.UpdateSprintRequest{StartDate: &early})
	assert.ErrorIs(t, err, types.ErrInvalidDates)

	empty := ""
	_, err = f.svc.UpdateSprint(ctx, view.SprintID, sprint.UpdateSprintRequest{Name: &empty})
	assert.ErrorIs(t, err, types.ErrInvalidName)
}
