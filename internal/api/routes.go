package api

import "net/http"

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// CORS middleware wrapper
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))
	s.mux.HandleFunc("GET /api/settings", cors(s.handleSettings))

	// Sprints
	s.mux.HandleFunc("GET /api/projects/{projectId}/sprints", cors(s.handleListSprints))
	s.mux.HandleFunc("POST /api/projects/{projectId}/sprints", cors(s.handleCreateSprint))
	s.mux.HandleFunc("GET /api/sprints/{sprintId}", cors(s.handleGetSprint))
	s.mux.HandleFunc("PATCH /api/sprints/{sprintId}", cors(s.handleUpdateSprint))
	s.mux.HandleFunc("DELETE /api/sprints/{sprintId}", cors(s.handleDeleteSprint))

	// Sprint membership
	s.mux.HandleFunc("PUT /api/sprints/{sprintId}/stories", cors(s.handleReplaceStories))
	s.mux.HandleFunc("PUT /api/sprints/{sprintId}/stories/reorder", cors(s.handleReorderStories))

	// Backlog projections
	s.mux.HandleFunc("GET /api/projects/{projectId}/sprints/backlog-stories", cors(s.handleBacklogStories))
	s.mux.HandleFunc("GET /api/projects/{projectId}/backlog", cors(s.handleBacklogTree))
	s.mux.HandleFunc("GET /api/projects/{projectId}/dashboard", cors(s.handleDashboard))

	// Preflight
	s.mux.HandleFunc("OPTIONS /api/", cors(func(http.ResponseWriter, *http.Request) {}))

	// Change feed
	s.mux.Handle("GET /api/ws", s.wsHandler)
}
