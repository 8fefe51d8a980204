package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/internal/store/storetest"
)

func newTestServer(t *testing.T, titles ...string) (*server.MCPServer, *storetest.Backlog) {
	t.Helper()
	s := storetest.Open(t)
	bl := storetest.NewBuilder(t, s).Backlog(titles...)
	proj := projection.NewService(s, nil)
	return NewServer(sprint.NewService(s, proj, events.NopPublisher{}, nil), proj, "test"), bl
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "tool %s not registered", name)
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolHandlers(t *testing.T) {
	s, bl := newTestServer(t, "A", "B", "C")
	ids := bl.StoryIDs()
	projectID := bl.Project.ProjectID

	result := callTool(t, s, "create_sprint", map[string]any{
		"project_id": projectID,
		"name":       "Sprint 1",
		"start_date": "2026-03-02",
		"end_date":   "2026-03-13",
		"story_ids":  []any{ids[0], ids[1]},
	})
	require.False(t, result.IsError, resultText(t, result))
	var view projection.SprintView
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &view))
	assert.Equal(t, ids[:2], view.StoryIDs())

	t.Run("reorder_sprint_stories", func(t *testing.T) {
		result := callTool(t, s, "reorder_sprint_stories", map[string]any{
			"sprint_id":         view.SprintID,
			"ordered_story_ids": []any{ids[1], "unknown", ids[0]},
		})
		require.False(t, result.IsError, resultText(t, result))

		result = callTool(t, s, "get_sprint", map[string]any{"sprint_id": view.SprintID})
		var got projection.SprintView
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
		assert.Equal(t, []string{ids[1], ids[0]}, got.StoryIDs())
	})

	t.Run("replace_sprint_stories", func(t *testing.T) {
		result := callTool(t, s, "replace_sprint_stories", map[string]any{
			"sprint_id": view.SprintID,
			"story_ids": []any{ids[2]},
		})
		require.False(t, result.IsError, resultText(t, result))

		result = callTool(t, s, "list_backlog_stories", map[string]any{"project_id": projectID, "unassigned_only": true})
		var resp struct {
			Stories []projection.BacklogStory `json:"stories"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
		assert.Len(t, resp.Stories, 2)
	})

	t.Run("update_sprint", func(t *testing.T) {
		result := callTool(t, s, "update_sprint", map[string]any{"sprint_id": view.SprintID, "status": "active"})
		require.False(t, result.IsError, resultText(t, result))
		result = callTool(t, s, "update_sprint", map[string]any{"sprint_id": view.SprintID, "status": "planned"})
		assert.True(t, result.IsError)
	})

	t.Run("list_sprints", func(t *testing.T) {
		result := callTool(t, s, "list_sprints", map[string]any{"project_id": projectID})
		var resp struct {
			Sprints []projection.SprintView `json:"sprints"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &resp))
		assert.Len(t, resp.Sprints, 1)
	})

	t.Run("projections", func(t *testing.T) {
		result := callTool(t, s, "get_dashboard", map[string]any{"project_id": projectID})
		require.False(t, result.IsError, resultText(t, result))
		result = callTool(t, s, "get_backlog_tree", map[string]any{"project_id": projectID})
		require.False(t, result.IsError, resultText(t, result))
		result = callTool(t, s, "get_dashboard", map[string]any{"project_id": "nope"})
		assert.True(t, result.IsError)
	})

	t.Run("delete_sprint", func(t *testing.T) {
		result := callTool(t, s, "delete_sprint", map[string]any{"sprint_id": view.SprintID})
		require.False(t, result.IsError, resultText(t, result))
		result = callTool(t, s, "delete_sprint", map[string]any{"sprint_id": view.SprintID})
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "not found")
	})
}

func TestCreateSprintArgumentErrors(t *testing.T) {
	s, bl := newTestServer(t, "A")
	tests := []struct {
		name string
		args map[string]any
	}{
		{"bad date", map[string]any{"project_id": bl.Project.ProjectID, "name": "S", "start_date": "soon"}},
		{"story ids not array", map[string]any{"project_id": bl.Project.ProjectID, "name": "S", "story_ids": "a,b"}},
		{"story id not string", map[string]any{"project_id": bl.Project.ProjectID, "name": "S", "story_ids": []any{1.0}}},
		{"missing name", map[string]any{"project_id": bl.Project.ProjectID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, callTool(t, s, "create_sprint", tt.args).IsError)
		})
	}
}

func TestStringsArg(t *testing.T) {
	got, err := stringsArg(map[string]any{}, "ids")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = stringsArg(map[string]any{"ids": []string{"a"}}, "ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}
