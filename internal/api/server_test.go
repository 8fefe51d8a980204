package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/internal/store/storetest"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

type apiFixture struct {
	server    *Server
	builder   *storetest.Builder
	backlog   *storetest.Backlog
	publisher *events.MemoryPublisher
}

func newAPIFixture(t *testing.T, titles ...string) *apiFixture {
	t.Helper()
	s := storetest.Open(t)
	b := storetest.NewBuilder(t, s)
	pub := events.NewMemoryPublisher()
	t.Cleanup(pub.Close)
	proj := projection.NewService(s, nil)
	srv := New(Config{
		Sprints:    sprint.NewService(s, proj, pub, nil),
		Projection: proj,
		Publisher:  pub,
	})
	return &apiFixture{server: srv, builder: b, backlog: b.Backlog(titles...), publisher: pub}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func (f *apiFixture) createSprint(t *testing.T, body map[string]any) projection.SprintView {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/projects/"+f.backlog.Project.ProjectID+"/sprints", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[projection.SprintView](t, w)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = f.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1200), decode[Settings](t, w).ReorderDebounceMS)
}

func TestPreflight(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodOptions, "/api/sprints/x/stories/reorder", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestSprintLifecycle(t *testing.T) {
	f := newAPIFixture(t, "A", "B", "C")
	ids := f.backlog.StoryIDs()
	a, b, c := ids[0], ids[1], ids[2]

	created := f.createSprint(t, map[string]any{
		"name":      "Sprint 1",
		"startDate": "2026-03-02",
		"endDate":   "2026-03-13",
		"storyIds":  []string{a, b},
	})
	assert.Equal(t, "Sprint 1", created.Title)
	assert.Equal(t, []string{a, b}, created.StoryIDs())
	require.NotNil(t, created.StartDate)
	assert.Equal(t, "2026-03-02", created.StartDate.Format(dateLayout))

	sprintPath := "/api/sprints/" + created.SprintID

	// reorder
	w := f.do(t, http.MethodPut, sprintPath+"/stories/reorder", map[string]any{"orderedStoryIds": []string{b, a}})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	got := decode[projection.SprintView](t, f.do(t, http.MethodGet, sprintPath, nil))
	assert.Equal(t, []string{b, a}, got.StoryIDs())
	assert.Equal(t, 1, got.Stories[0].Priority)
	assert.Equal(t, 2, got.Stories[1].Priority)

	// replace
	w = f.do(t, http.MethodPut, sprintPath+"/stories", map[string]any{"storyIds": []string{c, a}})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	got = decode[projection.SprintView](t, f.do(t, http.MethodGet, sprintPath, nil))
	assert.Equal(t, []string{c, a}, got.StoryIDs())

	backlog := decode[[]projection.BacklogStory](t, f.do(t, http.MethodGet,
		"/api/projects/"+f.backlog.Project.ProjectID+"/sprints/backlog-stories?unassigned=true", nil))
	require.Len(t, backlog, 1)
	assert.Equal(t, b, backlog[0].StoryID)

	// list
	list := decode[[]projection.SprintView](t, f.do(t, http.MethodGet,
		"/api/projects/"+f.backlog.Project.ProjectID+"/sprints", nil))
	require.Len(t, list, 1)
	assert.Equal(t, created.SprintID, list[0].SprintID)

	// update
	w = f.do(t, http.MethodPatch, sprintPath, map[string]any{"name": "Renamed", "status": types.SprintStatusActive})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[projection.SprintView](t, w)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, types.SprintStatusActive, updated.Status)

	w = f.do(t, http.MethodPatch, sprintPath, map[string]any{"status": types.SprintStatusPlanned})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// delete
	w = f.do(t, http.MethodDelete, sprintPath, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodDelete, sprintPath, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SPRINT_NOT_FOUND", decode[APIError](t, w).Code)
}

func TestCreateSprintErrors(t *testing.T) {
	f := newAPIFixture(t, "A")
	projectPath := "/api/projects/" + f.backlog.Project.ProjectID + "/sprints"

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"empty name", projectPath, map[string]any{"name": "  "}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed body", projectPath, "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad date", projectPath, map[string]any{"name": "S", "startDate": "March"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"end before start", projectPath, map[string]any{"name": "S", "startDate": "2026-03-10", "endDate": "2026-03-01"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown story", projectPath, map[string]any{"name": "S", "storyIds": []string{"nope"}}, http.StatusNotFound, "STORY_NOT_FOUND"},
		{"unknown project", "/api/projects/nope/sprints", map[string]any{"name": "S"}, http.StatusNotFound, "PROJECT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decode[APIError](t, w).Code)
		})
	}

	list := decode[[]projection.SprintView](t, f.do(t, http.MethodGet, projectPath, nil))
	assert.Empty(t, list, "failed creates write nothing")
}

func TestMembershipEndpointsUnknownSprint(t *testing.T) {
	f := newAPIFixture(t, "A")
	w := f.do(t, http.MethodPut, "/api/sprints/nope/stories", map[string]any{"storyIds": []string{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodGet, "/api/sprints/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardAndTree(t *testing.T) {
	f := newAPIFixture(t, "A")
	task := f.builder.Task(f.backlog.Stories[0].StoryID, "t1", "done")
	f.builder.Worklog(task.TaskID, 2, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))
	projectPath := "/api/projects/" + f.backlog.Project.ProjectID

	w := f.do(t, http.MethodGet, projectPath+"/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode[projection.Dashboard](t, w)
	assert.Equal(t, 1, d.StoryCount)
	assert.Equal(t, 1, d.CompletedTasks)
	assert.Len(t, d.Activity, 1)

	w = f.do(t, http.MethodGet, projectPath+"/backlog", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tree := decode[projection.ProjectTree](t, w)
	require.Len(t, tree.Epics, 1)
	require.Len(t, tree.Epics[0].Features, 1)
	assert.Len(t, tree.Epics[0].Features[0].Stories, 1)

	w = f.do(t, http.MethodGet, "/api/projects/nope/dashboard", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", decode[APIError](t, w).Code)
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("startDate", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	empty := ""
	got, err = parseDate("startDate", &empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	day := "2026-03-02"
	got, err = parseDate("startDate", &day)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *got)

	ts := "2026-03-02T09:30:00+02:00"
	got, err = parseDate("startDate", &ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC), *got)

	bad := "02/03/2026"
	_, err = parseDate("startDate", &bad)
	assert.ErrorContains(t, err, "startDate")
}
