// Package rollup derives story status and cost aggregates from task records.
// It is the only place where free-form task status strings are interpreted,
// so story-level and sprint-level figures never diverge.
package rollup

import (
	"strings"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

// TaskClass is the normalized classification of a task status string.
type TaskClass int

const (
	TaskOpen TaskClass = iota
	TaskInProgress
	TaskDone
)

// String returns a lowercase name for the class.
func (c TaskClass) String() string {
	switch c {
	case TaskDone:
		return "done"
	case TaskInProgress:
		return "in_progress"
	default:
		return "open"
	}
}

// statusFolder folds hyphens and spaces to underscores.
var statusFolder = strings.NewReplacer("-", "_", " ", "_")

// normalizeStatus lowercases, trims and folds separators so that "In Progress",
// "in-progress" and "IN_PROGRESS" compare equal.
func normalizeStatus(status string) string {
	return statusFolder.Replace(strings.ToLower(strings.TrimSpace(status)))
}

// ClassifyTask maps a task status to its class. "done" and "completed" are
// done; "in_progress" in any separator or case variant is in progress;
// everything else is open.
func ClassifyTask(status string) TaskClass {
	switch normalizeStatus(status) {
	case "done", "completed":
		return TaskDone
	case "in_progress":
		return TaskInProgress
	default:
		return TaskOpen
	}
}

// IsDone reports whether the task status classifies as done.
func IsDone(status string) bool {
	return ClassifyTask(status) == TaskDone
}

// DeriveStoryStatus computes the effective status of a story from its tasks.
//
// With no tasks the story is Planned when it carries a positive point
// estimate and ToDo otherwise. With tasks, all done wins over any in-progress
// marker, which wins over ToDo.
func DeriveStoryStatus(tasks []types.Task, storyPoints *int) types.StoryStatus {
	if len(tasks) == 0 {
		if storyPoints != nil && *storyPoints > 0 {
			return types.StoryStatusPlanned
		}
		return types.StoryStatusToDo
	}

	done, inProgress := 0, 0
	for _, t := range tasks {
		switch ClassifyTask(t.Status) {
		case TaskDone:
			done++
		case TaskInProgress:
			inProgress++
		}
	}

	if done == len(tasks) {
		return types.StoryStatusDone
	}
	if inProgress > 0 {
		return types.StoryStatusInProgress
	}
	return types.StoryStatusToDo
}

// TaskTotal returns the task's explicit total cost, or CostDev+CostTest when
// no override is set. Missing components count as zero and the result is
// never negative.
func TaskTotal(t types.Task) float64 {
	var total float64
	if t.TotalCost != nil {
		total = *t.TotalCost
	} else {
		total = deref(t.CostDev) + deref(t.CostTest)
	}
	if total < 0 {
		return 0
	}
	return total
}

// TotalCost sums TaskTotal over tasks.
func TotalCost(tasks []types.Task) float64 {
	var sum float64
	for _, t := range tasks {
		sum += TaskTotal(t)
	}
	return sum
}

// SumCosts adds story totals into a sprint or project aggregate. Aggregates
// are always sums of story totals, never recomputed from tasks directly.
func SumCosts(storyTotals ...float64) float64 {
	var sum float64
	for _, v := range storyTotals {
		sum += v
	}
	return sum
}

// GroupTasksByStory indexes tasks by their story ID, preserving input order
// within each story.
func GroupTasksByStory(tasks []types.Task) map[string][]types.Task {
	byStory := make(map[string][]types.Task)
	for _, t := range tasks {
		byStory[t.StoryID] = append(byStory[t.StoryID], t)
	}
	return byStory
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
