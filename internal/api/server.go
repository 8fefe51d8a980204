// Package api provides the REST API and websocket change feed for the
// backlog services.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/reorder"
	"github.com/mesh-intelligence/backlog/internal/sprint"
)

// DefaultDashboardTTL is how long a computed dashboard is served from cache.
const DefaultDashboardTTL = 2 * time.Second

// shutdownTimeout bounds graceful shutdown in StartContext.
const shutdownTimeout = 5 * time.Second

// Server is the backlog API server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger

	sprints    *sprint.Service
	projection *projection.Service

	// Event publisher for the websocket change feed
	publisher events.Publisher
	wsHandler *WSHandler

	dashboards *dashboardCache
	settings   Settings
}

// Settings are the client-side parameters served at /api/settings.
type Settings struct {
	ReorderDebounceMS int64 `json:"reorder_debounce_ms"`
}

// Config holds server configuration. Sprints and Projection are required.
type Config struct {
	Addr         string
	Logger       *slog.Logger
	Sprints      *sprint.Service
	Projection   *projection.Service
	Publisher    events.Publisher
	DashboardTTL time.Duration
	// ReorderDebounce is advertised to clients; zero means reorder.DefaultDelay.
	ReorderDebounce time.Duration
}

// New creates a new API server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = events.NopPublisher{}
	}
	debounce := cfg.ReorderDebounce
	if debounce <= 0 {
		debounce = reorder.DefaultDelay
	}
	ttl := cfg.DashboardTTL
	if ttl <= 0 {
		ttl = DefaultDashboardTTL
	}

	s := &Server{
		addr:       addr,
		mux:        http.NewServeMux(),
		logger:     logger,
		sprints:    cfg.Sprints,
		projection: cfg.Projection,
		publisher:  pub,
		settings:   Settings{ReorderDebounceMS: debounce.Milliseconds()},
	}
	s.dashboards = newDashboardCache(cfg.Projection.GetDashboard, ttl)
	s.wsHandler = NewWSHandler(pub, logger)

	s.registerRoutes()
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartContext serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.wsHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, s.settings)
}
