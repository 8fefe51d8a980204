package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/internal/store"
	"github.com/mesh-intelligence/backlog/internal/store/storetest"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := storetest.Open(t)
	b := storetest.NewBuilder(t, src)
	bl := b.Backlog("A", "B")
	sp := b.Sprint(bl.Project.ProjectID, "S")
	task := b.Task(bl.Stories[0].StoryID, "t", "done", func(tk *types.Task) { tk.SprintID = &sp.SprintID; tk.InSprintBacklog = true })
	b.Worklog(task.TaskID, 2, task.CreatedAt)
	require.NoError(t, src.WithTx(ctx, func(tx types.Tx) error {
		return tx.InsertMembership(ctx, &types.Membership{SprintID: sp.SprintID, StoryID: bl.Stories[0].StoryID, Priority: 1})
	}))

	dir := filepath.Join(t.TempDir(), "dump")
	counts, err := store.Export(ctx, src, bl.Project.ProjectID, dir)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Projects: 1, Epics: 1, Features: 1, Stories: 2, Sprints: 1, Tasks: 1, Worklogs: 1, Memberships: 1}, *counts)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 8, "no temp files left behind")

	dst := storetest.Open(t)
	imported, err := store.Import(ctx, dst, dir)
	require.NoError(t, err)
	assert.Equal(t, *counts, *imported)

	ms, err := dst.FindMembershipsBySprint(ctx, sp.SprintID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, bl.Stories[0].StoryID, ms[0].StoryID)

	tasks, err := dst.FindTasksByStoryIDs(ctx, []string{bl.Stories[0].StoryID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].InSprintBacklog)
}

func TestImportSkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	content := `{"project_id":"p1","name":"One","created_at":"2026-01-05T00:00:00Z"}
not json at all

{"project_id":"p2","name":"Two","created_at":"2026-01-06T00:00:00Z"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.ProjectsFile), []byte(content), 0o644))

	dst := storetest.Open(t)
	counts, err := store.Import(ctx, dst, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Projects)

	p, err := dst.GetProject(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "Two", p.Name)
}

func TestImportRollsBackOnConflict(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	content := `{"project_id":"p1","name":"One","created_at":"2026-01-05T00:00:00Z"}
{"project_id":"p1","name":"Again","created_at":"2026-01-05T00:00:00Z"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.ProjectsFile), []byte(content), 0o644))

	dst := storetest.Open(t)
	_, err := store.Import(ctx, dst, dir)
	assert.ErrorIs(t, err, types.ErrDuplicate)

	_, err = dst.GetProject(ctx, "p1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
