package backlog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/internal/store/storetest"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

func TestOpenWiresServices(t *testing.T) {
	ctx := context.Background()
	engine, err := backlog.Open(ctx, types.Config{
		Backend: types.BackendSQLite,
		DataDir: filepath.Join(t.TempDir(), "data"),
	}, nil)
	require.NoError(t, err)
	defer engine.Close()

	bl := storetest.NewBuilder(t, engine.Store).Backlog("A", "B")
	feed := engine.Events.Subscribe(bl.Project.ProjectID)

	view, err := engine.Sprints.CreateSprint(ctx, sprint.CreateSprintRequest{
		ProjectID: bl.Project.ProjectID,
		Name:      "Sprint 1",
		StoryIDs:  bl.StoryIDs(),
	})
	require.NoError(t, err)
	assert.Equal(t, bl.StoryIDs(), view.StoryIDs())

	ev := <-feed
	assert.Equal(t, events.SprintChanged, ev.Type)

	views, err := engine.Projection.GetSprints(ctx, bl.Project.ProjectID)
	require.NoError(t, err)
	require.Len(t, views, 1)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := backlog.Open(context.Background(), types.Config{Backend: "mysql"}, nil)
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}
