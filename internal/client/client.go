// Package client is a typed HTTP client for the backlog API. It is the
// persistence and reload target of the reorder controller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/reorder"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 16 << 20

// defaultTimeout applies when Config.HTTPClient is nil.
const defaultTimeout = 30 * time.Second

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// HTTPClient is used for all requests. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client calls the backlog REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ reorder.Persister = (*Client)(nil)
	_ reorder.Reloader  = (*Client)(nil)
)

// New creates a client for the server at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base URL %q must be http or https", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backlog: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backlog: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// CreateSprintInput is the body of a create request. Dates are
// "YYYY-MM-DD" or RFC 3339; empty means unset.
type CreateSprintInput struct {
	Name      string   `json:"name"`
	StartDate string   `json:"startDate,omitempty"`
	EndDate   string   `json:"endDate,omitempty"`
	StoryIDs  []string `json:"storyIds,omitempty"`
}

// UpdateSprintInput is a partial update; nil fields are left unchanged.
type UpdateSprintInput struct {
	Name      *string `json:"name,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// ReorderDelay returns the debounce window the server advertises for
// reorder controllers.
func (c *Client) ReorderDelay(ctx context.Context) (time.Duration, error) {
	var settings struct {
		ReorderDebounceMS int64 `json:"reorder_debounce_ms"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &settings); err != nil {
		return 0, err
	}
	return time.Duration(settings.ReorderDebounceMS) * time.Millisecond, nil
}

// ListSprints returns the project's sprints.
func (c *Client) ListSprints(ctx context.Context, projectID string) ([]projection.SprintView, error) {
	var views []projection.SprintView
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/sprints", nil, &views)
	return views, err
}

// GetSprint returns one sprint.
func (c *Client) GetSprint(ctx context.Context, sprintID string) (*projection.SprintView, error) {
	var view projection.SprintView
	if err := c.do(ctx, http.MethodGet, sprintPath(sprintID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateSprint creates a sprint in the project.
func (c *Client) CreateSprint(ctx context.Context, projectID string, in CreateSprintInput) (*projection.SprintView, error) {
	var view projection.SprintView
	if err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/sprints", in, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateSprint applies a partial update.
func (c *Client) UpdateSprint(ctx context.Context, sprintID string, in UpdateSprintInput) (*projection.SprintView, error) {
	var view projection.SprintView
	if err := c.do(ctx, http.MethodPatch, sprintPath(sprintID), in, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteSprint deletes a sprint.
func (c *Client) DeleteSprint(ctx context.Context, sprintID string) error {
	return c.do(ctx, http.MethodDelete, sprintPath(sprintID), nil, nil)
}

// ReplaceStories sets the sprint's complete membership in order.
func (c *Client) ReplaceStories(ctx context.Context, sprintID string, storyIDs []string) error {
	body := struct {
		StoryIDs []string `json:"storyIds"`
	}{StoryIDs: nonNil(storyIDs)}
	return c.do(ctx, http.MethodPut, sprintPath(sprintID)+"/stories", body, nil)
}

// Reorder renumbers the sprint's members in the given order.
func (c *Client) Reorder(ctx context.Context, sprintID string, orderedStoryIDs []string) error {
	body := struct {
		OrderedStoryIDs []string `json:"orderedStoryIds"`
	}{OrderedStoryIDs: nonNil(orderedStoryIDs)}
	return c.do(ctx, http.MethodPut, sprintPath(sprintID)+"/stories/reorder", body, nil)
}

// BacklogStories returns the project's stories with membership flags.
// With unassignedOnly only stories in no sprint are returned.
func (c *Client) BacklogStories(ctx context.Context, projectID string, unassignedOnly bool) ([]projection.BacklogStory, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/sprints/backlog-stories"
	if unassignedOnly {
		path += "?unassigned=true"
	}
	var stories []projection.BacklogStory
	err := c.do(ctx, http.MethodGet, path, nil, &stories)
	return stories, err
}

// Dashboard returns the project dashboard.
func (c *Client) Dashboard(ctx context.Context, projectID string) (*projection.Dashboard, error) {
	var d projection.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// BacklogTree returns the project's full backlog tree.
func (c *Client) BacklogTree(ctx context.Context, projectID string) (*projection.ProjectTree, error) {
	var tree projection.ProjectTree
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/backlog", nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// SprintItems returns the sprint's stories as reorder items.
func (c *Client) SprintItems(ctx context.Context, sprintID string) ([]reorder.Item, error) {
	view, err := c.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	items := make([]reorder.Item, len(view.Stories))
	for i, st := range view.Stories {
		items[i] = reorder.Item{StoryID: st.StoryID, Title: st.Title, Priority: st.Priority}
	}
	return items, nil
}

// UnassignedItems returns the project's stories in no sprint.
func (c *Client) UnassignedItems(ctx context.Context, projectID string) ([]reorder.Item, error) {
	stories, err := c.BacklogStories(ctx, projectID, true)
	if err != nil {
		return nil, err
	}
	items := make([]reorder.Item, len(stories))
	for i, st := range stories {
		items[i] = reorder.Item{StoryID: st.StoryID, Title: st.Title}
	}
	return items, nil
}

// do sends a request with an optional JSON body and decodes a JSON result
// into out when out is non-nil. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backlog: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backlog: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backlog: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("backlog: reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, raw)
		c.logger.Debug("request failed", "method", method, "path", path, "status", resp.StatusCode, "code", apiErr.Code)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backlog: decoding %s %s: %w", method, path, err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var wire struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error != "" {
		apiErr.Message = wire.Error
		apiErr.Code = wire.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func sprintPath(sprintID string) string {
	return "/api/sprints/" + url.PathEscape(sprintID)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
