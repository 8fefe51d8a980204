package api

import (
	"fmt"
	"net/http"
	"time"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/sprint"
)

// dateLayout is the calendar-date form accepted for sprint dates. Full
// RFC 3339 timestamps are accepted too.
const dateLayout = "2006-01-02"

type createSprintRequest struct {
	Name      string   `json:"name"`
	StartDate *string  `json:"startDate"`
	EndDate   *string  `json:"endDate"`
	StoryIDs  []string `json:"storyIds"`
}

type updateSprintRequest struct {
	Name      *string `json:"name"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	Status    *string `json:"status"`
}

type replaceStoriesRequest struct {
	StoryIDs []string `json:"storyIds"`
}

type reorderRequest struct {
	OrderedStoryIDs []string `json:"orderedStoryIds"`
}

// handleListSprints returns the project's sprints with their ordered stories.
func (s *Server) handleListSprints(w http.ResponseWriter, r *http.Request) {
	views, err := s.projection.GetSprints(r.Context(), r.PathValue("projectId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, views)
}

// handleCreateSprint creates a sprint and returns its projection.
func (s *Server) handleCreateSprint(w http.ResponseWriter, r *http.Request) {
	var req createSprintRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		HandleError(w, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		HandleError(w, err)
		return
	}

	view, err := s.sprints.CreateSprint(r.Context(), sprint.CreateSprintRequest{
		ProjectID: r.PathValue("projectId"),
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		StoryIDs:  req.StoryIDs,
	})
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponseStatus(w, view, http.StatusCreated)
}

// handleGetSprint returns one sprint projection.
func (s *Server) handleGetSprint(w http.ResponseWriter, r *http.Request) {
	view, err := s.projection.GetSprint(r.Context(), r.PathValue("sprintId"))
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, view)
}

// handleUpdateSprint applies a partial update.
func (s *Server) handleUpdateSprint(w http.ResponseWriter, r *http.Request) {
	var req updateSprintRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		HandleError(w, err)
		return
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		HandleError(w, err)
		return
	}

	view, err := s.sprints.UpdateSprint(r.Context(), r.PathValue("sprintId"), sprint.UpdateSprintRequest{
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		Status:    req.Status,
	})
	if err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, view)
}

// handleDeleteSprint deletes a sprint and returns its stories to the backlog.
func (s *Server) handleDeleteSprint(w http.ResponseWriter, r *http.Request) {
	if err := s.sprints.DeleteSprint(r.Context(), r.PathValue("sprintId")); err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleReplaceStories replaces the sprint's full membership set.
func (s *Server) handleReplaceStories(w http.ResponseWriter, r *http.Request) {
	var req replaceStoriesRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if err := s.sprints.ReplaceStories(r.Context(), r.PathValue("sprintId"), req.StoryIDs); err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// handleReorderStories renumbers the sprint's members.
func (s *Server) handleReorderStories(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeBody(r, &req); err != nil {
		HandleError(w, err)
		return
	}
	if err := s.sprints.Reorder(r.Context(), r.PathValue("sprintId"), req.OrderedStoryIDs); err != nil {
		s.logFailure(r, err)
		HandleError(w, err)
		return
	}
	NoContent(w)
}

// parseDate accepts nil, "", a calendar date or an RFC 3339 timestamp.
func parseDate(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, *v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, backlogerrors.ErrInvalidRequest(fmt.Sprintf("%s must be YYYY-MM-DD or RFC 3339", field), err)
	}
	t = t.UTC()
	return &t, nil
}

// logFailure logs store failures at error level and everything else at
// debug; client errors are reported in the response.
func (s *Server) logFailure(r *http.Request, err error) {
	if backlogerrors.HTTPStatus(err) >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		return
	}
	s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
}
