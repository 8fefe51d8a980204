package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"monday", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), "2026-03-02"},
		{"wednesday", time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), "2026-03-02"},
		{"sunday", time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC), "2026-03-02"},
		{"crosses month", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), "2026-03-30"},
		{"non-utc input", time.Date(2026, 3, 9, 1, 0, 0, 0, time.FixedZone("CET", 3600*2)), "2026-03-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekStart(tt.in).Format(weekLabelLayout))
		})
	}
}

func TestBurnup(t *testing.T) {
	week1 := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	week2 := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	week4 := time.Date(2026, 3, 24, 10, 0, 0, 0, time.UTC)

	task := func(status string, created, updated time.Time) types.Task {
		return types.Task{Status: status, CreatedAt: created, UpdatedAt: updated}
	}

	tests := []struct {
		name  string
		tasks []types.Task
		want  []BurnupPoint
	}{
		{
			name:  "no tasks",
			tasks: nil,
			want:  []BurnupPoint{},
		},
		{
			name:  "none completed",
			tasks: []types.Task{task("todo", week1, week1), task("in progress", week1, week2)},
			want:  []BurnupPoint{{Week: CurrentLabel, Total: 2, Completed: 0}},
		},
		{
			name: "cumulative across weeks in order",
			tasks: []types.Task{
				task("Done", week1, week4),
				task("done", week1, week1),
				task("todo", week1, week1),
				task("DONE", week1, week2),
				task("done", week1, week1),
			},
			want: []BurnupPoint{
				{Week: "2026-03-02", Total: 5, Completed: 2},
				{Week: "2026-03-09", Total: 5, Completed: 3},
				{Week: "2026-03-23", Total: 5, Completed: 4},
			},
		},
		{
			name:  "falls back to creation time",
			tasks: []types.Task{task("done", week2, time.Time{})},
			want:  []BurnupPoint{{Week: "2026-03-09", Total: 1, Completed: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Burnup(tt.tasks))
		})
	}
}
