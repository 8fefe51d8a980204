// Package storetest provides a temp-dir SQLite store and a builder for
// backlog fixtures, shared by the tests of the service packages.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/internal/store"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// Open returns a migrated SQLite store in a fresh temp dir. The store is
// closed when the test ends.
func Open(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: filepath.Join(t.TempDir(), "data"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Builder inserts fixture records, failing the test on any error.
type Builder struct {
	t testing.TB
	s types.Store
}

// NewBuilder returns a Builder writing to s.
func NewBuilder(t testing.TB, s types.Store) *Builder {
	return &Builder{t: t, s: s}
}

func (b *Builder) tx(fn func(ctx context.Context, tx types.Tx) error) {
	b.t.Helper()
	ctx := context.Background()
	require.NoError(b.t, b.s.WithTx(ctx, func(tx types.Tx) error { return fn(ctx, tx) }))
}

// Project inserts a project.
func (b *Builder) Project(name string) *types.Project {
	b.t.Helper()
	p := &types.Project{Name: name}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertProject(ctx, p) })
	return p
}

// Epic inserts an epic under projectID.
func (b *Builder) Epic(projectID, title string) *types.Epic {
	b.t.Helper()
	e := &types.Epic{ProjectID: projectID, Title: title}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertEpic(ctx, e) })
	return e
}

// Feature inserts a feature under epicID.
func (b *Builder) Feature(epicID, title string) *types.Feature {
	b.t.Helper()
	f := &types.Feature{EpicID: epicID, Title: title}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertFeature(ctx, f) })
	return f
}

// Story inserts a story under featureID. Options adjust the record before
// insertion.
func (b *Builder) Story(featureID, title string, opts ...func(*types.Story)) *types.Story {
	b.t.Helper()
	s := &types.Story{FeatureID: featureID, Title: title}
	for _, opt := range opts {
		opt(s)
	}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertStory(ctx, s) })
	return s
}

// Task inserts a task under storyID with the given status.
func (b *Builder) Task(storyID, title, status string, opts ...func(*types.Task)) *types.Task {
	b.t.Helper()
	task := &types.Task{StoryID: storyID, Title: title, Status: status}
	for _, opt := range opts {
		opt(task)
	}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertTask(ctx, task) })
	return task
}

// Worklog inserts a worklog for taskID.
func (b *Builder) Worklog(taskID string, hours float64, loggedAt time.Time) *types.Worklog {
	b.t.Helper()
	w := &types.Worklog{TaskID: taskID, Hours: hours, LoggedAt: loggedAt, Author: "dev"}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertWorklog(ctx, w) })
	return w
}

// Sprint inserts a planned sprint with no memberships.
func (b *Builder) Sprint(projectID, title string, opts ...func(*types.Sprint)) *types.Sprint {
	b.t.Helper()
	s := &types.Sprint{ProjectID: projectID, Title: title}
	for _, opt := range opts {
		opt(s)
	}
	b.tx(func(ctx context.Context, tx types.Tx) error { return tx.InsertSprint(ctx, s) })
	return s
}

// Backlog is a project with one epic, one feature and a list of stories.
type Backlog struct {
	Project *types.Project
	Epic    *types.Epic
	Feature *types.Feature
	Stories []*types.Story
}

// StoryIDs returns the IDs of the backlog's stories in creation order.
func (bl *Backlog) StoryIDs() []string {
	ids := make([]string, len(bl.Stories))
	for i, s := range bl.Stories {
		ids[i] = s.StoryID
	}
	return ids
}

// Backlog inserts a project, epic and feature holding one story per title.
func (b *Builder) Backlog(titles ...string) *Backlog {
	b.t.Helper()
	p := b.Project("Project")
	e := b.Epic(p.ProjectID, "Epic")
	f := b.Feature(e.EpicID, "Feature")
	bl := &Backlog{Project: p, Epic: e, Feature: f}
	for _, title := range titles {
		bl.Stories = append(bl.Stories, b.Story(f.FeatureID, title))
	}
	return bl
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
