package rollup

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

func ptr[T any](v T) *T { return &v }

func tasksWith(statuses ...string) []types.Task {
	tasks := make([]types.Task, len(statuses))
	for i, s := range statuses {
		tasks[i] = types.Task{TaskID: s, Status: s}
	}
	return tasks
}

func TestClassifyTask(t *testing.T) {
	tests := []struct {
		status string
		want   TaskClass
	}{
		{"done", TaskDone},
		{"Done", TaskDone},
		{"  DONE ", TaskDone},
		{"completed", TaskDone},
		{"Completed", TaskDone},
		{"in_progress", TaskInProgress},
		{"in progress", TaskInProgress},
		{"In-Progress", TaskInProgress},
		{"IN_PROGRESS", TaskInProgress},
		{"todo", TaskOpen},
		{"", TaskOpen},
		{"blocked", TaskOpen},
		{"done-ish", TaskOpen},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTask(tt.status))
		})
	}
}

func TestDeriveStoryStatus(t *testing.T) {
	tests := []struct {
		name   string
		tasks  []types.Task
		points *int
		want   types.StoryStatus
	}{
		{name: "no tasks with points is planned", points: ptr(3), want: types.StoryStatusPlanned},
		{name: "no tasks with zero points is todo", points: ptr(0), want: types.StoryStatusToDo},
		{name: "no tasks without points is todo", want: types.StoryStatusToDo},
		{name: "all done", tasks: tasksWith("done", "Done"), want: types.StoryStatusDone},
		{name: "all done ignores zero points", tasks: tasksWith("completed"), points: ptr(0), want: types.StoryStatusDone},
		{name: "done and in progress", tasks: tasksWith("done", "in_progress"), want: types.StoryStatusInProgress},
		{name: "single in progress", tasks: tasksWith("todo", "In Progress"), want: types.StoryStatusInProgress},
		{name: "done and open", tasks: tasksWith("done", "todo"), want: types.StoryStatusToDo},
		{name: "all open", tasks: tasksWith("todo", "blocked"), points: ptr(5), want: types.StoryStatusToDo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStoryStatus(tt.tasks, tt.points))
		})
	}
}

func TestDeriveStoryStatusIsIdempotent(t *testing.T) {
	tasks := tasksWith("done", "in-progress", "todo")
	first := DeriveStoryStatus(tasks, nil)
	second := DeriveStoryStatus(tasks, nil)
	assert.Equal(t, first, second)
}

func TestTaskTotal(t *testing.T) {
	tests := []struct {
		name string
		task types.Task
		want float64
	}{
		{name: "nothing set", task: types.Task{}, want: 0},
		{name: "dev only", task: types.Task{CostDev: ptr(120.0)}, want: 120},
		{name: "dev and test", task: types.Task{CostDev: ptr(100.0), CostTest: ptr(50.0)}, want: 150},
		{name: "override wins", task: types.Task{CostDev: ptr(100.0), CostTest: ptr(50.0), TotalCost: ptr(80.0)}, want: 80},
		{name: "zero override wins", task: types.Task{CostDev: ptr(100.0), TotalCost: ptr(0.0)}, want: 0},
		{name: "negative clamps to zero", task: types.Task{TotalCost: ptr(-5.0)}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TaskTotal(tt.task), 1e-9)
		})
	}
}

func TestTotalCostIsOrderIndependent(t *testing.T) {
	tasks := []types.Task{
		{CostDev: ptr(10.5)},
		{CostTest: ptr(4.25)},
		{TotalCost: ptr(100.0), CostDev: ptr(1.0)},
		{},
		{CostDev: ptr(3.0), CostTest: ptr(2.0)},
	}
	want := 10.5 + 4.25 + 100 + 0 + 5

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]types.Task(nil), tasks...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.InDelta(t, want, TotalCost(shuffled), 1e-9)
	}
}

func TestSumCostsMatchesTaskLevelTotal(t *testing.T) {
	storyA := []types.Task{{CostDev: ptr(10.0)}, {CostTest: ptr(5.0)}}
	storyB := []types.Task{{TotalCost: ptr(7.5)}}

	aggregate := SumCosts(TotalCost(storyA), TotalCost(storyB))
	all := append(append([]types.Task(nil), storyA...), storyB...)

	assert.InDelta(t, TotalCost(all), aggregate, 1e-9)
	assert.Zero(t, SumCosts())
}

func TestGroupTasksByStory(t *testing.T) {
	tasks := []types.Task{
		{TaskID: "1", StoryID: "a"},
		{TaskID: "2", StoryID: "b"},
		{TaskID: "3", StoryID: "a"},
	}
	got := GroupTasksByStory(tasks)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"1", "3"}, []string{got["a"][0].TaskID, got["a"][1].TaskID})
	assert.Len(t, got["b"], 1)
}
