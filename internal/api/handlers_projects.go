package api

import (
	"net/http"

	"github.com/mesh-intelligence/backlog/internal/projection"
)

// handleBacklogStories returns every project story with its sprint
// membership. ?unassigned=true keeps only stories in no sprint.
func (s *Server) handleBacklogStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.projection.GetBacklogStories(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	if r.URL.Query().Get("unassigned") == "true" {
		stories = projection.Unassigned(stories)
	}
	JSONResponse(w, stories)
}

// handleBacklogTree returns the project's epic/feature/story/task tree.
func (s *Server) handleBacklogTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.projection.GetBacklogTree(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, tree)
}

// handleDashboard returns the project dashboard. Concurrent requests for
// one project share a single computation.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboards.Get(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, d)
}
