// Package mcp exposes the sprint and projection services as MCP tools over
// stdio, so agents can plan sprints with the same semantics as the API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
)

// dateLayout is the calendar-date form accepted for sprint dates.
const dateLayout = "2006-01-02"

// NewServer creates a new MCP server over the services.
func NewServer(sprints *sprint.Service, proj *projection.Service, version string) *server.MCPServer {
	s := server.NewMCPServer("Backlog", version)

	// Sprint management
	s.AddTool(mcp.NewTool("list_sprints",
		mcp.WithDescription("List a project's sprints, each with its stories in priority order."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
	), listSprintsHandler(proj))

	s.AddTool(mcp.NewTool("get_sprint",
		mcp.WithDescription("Get one sprint with its stories in priority order."),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID"), mcp.Required()),
	), getSprintHandler(proj))

	s.AddTool(mcp.NewTool("create_sprint",
		mcp.WithDescription("Create a sprint, optionally with stories at priorities 1..n in the given order."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Sprint name"), mcp.Required()),
		mcp.WithString("start_date", mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("end_date", mcp.Description("End date (YYYY-MM-DD), after the start date")),
		mcp.WithArray("story_ids", mcp.Description("Ordered story IDs"), mcp.Items(map[string]any{"type": "string"})),
	), createSprintHandler(sprints))

	s.AddTool(mcp.NewTool("update_sprint",
		mcp.WithDescription("Rename a sprint, change its dates, or move its status forward (planned|active|completed)."),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID"), mcp.Required()),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("start_date", mcp.Description("New start date (YYYY-MM-DD)")),
		mcp.WithString("end_date", mcp.Description("New end date (YYYY-MM-DD)")),
		mcp.WithString("status", mcp.Description("New status (planned|active|completed)")),
	), updateSprintHandler(sprints))

	s.AddTool(mcp.NewTool("delete_sprint",
		mcp.WithDescription("Delete a sprint. Its stories return to the unassigned backlog."),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID"), mcp.Required()),
	), deleteSprintHandler(sprints))

	// Membership
	s.AddTool(mcp.NewTool("replace_sprint_stories",
		mcp.WithDescription("Replace a sprint's complete story set; priorities follow the given order."),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID"), mcp.Required()),
		mcp.WithArray("story_ids", mcp.Description("Ordered story IDs"), mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), replaceStoriesHandler(sprints))

	s.AddTool(mcp.NewTool("reorder_sprint_stories",
		mcp.WithDescription("Renumber a sprint's stories. Listed members come first in order; IDs that are not members are ignored."),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID"), mcp.Required()),
		mcp.WithArray("ordered_story_ids", mcp.Description("Story IDs in the desired order"), mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), reorderHandler(sprints))

	// Projections
	s.AddTool(mcp.NewTool("list_backlog_stories",
		mcp.WithDescription("List a project's stories with derived status, cost and sprint membership."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
		mcp.WithBoolean("unassigned_only", mcp.Description("Only stories in no sprint")),
	), listBacklogStoriesHandler(proj))

	s.AddTool(mcp.NewTool("get_dashboard",
		mcp.WithDescription("Get a project's size, cost, burnup and recent activity."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
	), getDashboardHandler(proj))

	s.AddTool(mcp.NewTool("get_backlog_tree",
		mcp.WithDescription("Get a project's epic/feature/story/task tree with cost rollups."),
		mcp.WithString("project_id", mcp.Description("Project ID"), mcp.Required()),
	), getBacklogTreeHandler(proj))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func listSprintsHandler(proj *projection.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		views, err := proj.GetSprints(ctx, mcp.ParseString(request, "project_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"sprints": views})
	}
}

func getSprintHandler(proj *projection.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		view, err := proj.GetSprint(ctx, mcp.ParseString(request, "sprint_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(view)
	}
}

func createSprintHandler(sprints *sprint.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		start, err := dateArg(args, "start_date")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		end, err := dateArg(args, "end_date")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ids, err := stringsArg(args, "story_ids")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		view, err := sprints.CreateSprint(ctx, sprint.CreateSprintRequest{
			ProjectID: mcp.ParseString(request, "project_id", ""),
			Name:      mcp.ParseString(request, "name", ""),
			StartDate: start,
			EndDate:   end,
			StoryIDs:  ids,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(view)
	}
}

func updateSprintHandler(sprints *sprint.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(request)
		var req sprint.UpdateSprintRequest
		if name, ok := args["name"].(string); ok {
			req.Name = &name
		}
		if status, ok := args["status"].(string); ok {
			req.Status = &status
		}
		var err error
		if req.StartDate, err = dateArg(args, "start_date"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if req.EndDate, err = dateArg(args, "end_date"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		view, err := sprints.UpdateSprint(ctx, mcp.ParseString(request, "sprint_id", ""), req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(view)
	}
}

func deleteSprintHandler(sprints *sprint.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "sprint_id", "")
		if err := sprints.DeleteSprint(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Sprint '%s' deleted.", id)), nil
	}
}

func replaceStoriesHandler(sprints *sprint.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := stringsArg(arguments(request), "story_ids")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id := mcp.ParseString(request, "sprint_id", "")
		if err := sprints.ReplaceStories(ctx, id, ids); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Sprint '%s' now has %d stories.", id, len(ids))), nil
	}
}

func reorderHandler(sprints *sprint.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := stringsArg(arguments(request), "ordered_story_ids")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id := mcp.ParseString(request, "sprint_id", "")
		if err := sprints.Reorder(ctx, id, ids); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Sprint '%s' reordered.", id)), nil
	}
}

func listBacklogStoriesHandler(proj *projection.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stories, err := proj.GetBacklogStories(ctx, mcp.ParseString(request, "project_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if mcp.ParseBoolean(request, "unassigned_only", false) {
			stories = projection.Unassigned(stories)
		}
		return jsonResult(map[string]any{"stories": stories})
	}
}

func getDashboardHandler(proj *projection.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		d, err := proj.GetDashboard(ctx, mcp.ParseString(request, "project_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(d)
	}
}

func getBacklogTreeHandler(proj *projection.Service) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tree, err := proj.GetBacklogTree(ctx, mcp.ParseString(request, "project_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(tree)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

// stringsArg reads an optional array of strings.
func stringsArg(args map[string]any, name string) ([]string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", name, i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", name)
	}
}

// dateArg reads an optional YYYY-MM-DD date.
func dateArg(args map[string]any, name string) (*time.Time, error) {
	s, _ := args[name].(string)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD: %w", name, err)
	}
	return &t, nil
}
