// Package backlog is the public entry point for embedding the backlog
// engine. It opens a store and wires the sprint and projection services
// over it, keeping the implementation packages internal.
//
// Example:
//
//	engine, err := backlog.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".backlog-db",
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//	views, err := engine.Projection.GetSprints(ctx, projectID)
package backlog

import (
	"context"
	"log/slog"

	"github.com/mesh-intelligence/backlog/internal/events"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/internal/store"
	"github.com/mesh-intelligence/backlog/pkg/types"
)

// Version is the release version of the backlog module.
const Version = "0.1.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/backlog"

// Engine bundles an open store with the services built on it.
type Engine struct {
	Store      types.Store
	Projection *projection.Service
	Sprints    *sprint.Service
	Events     *events.MemoryPublisher

	closer func() error
}

// Open validates cfg, opens and migrates the store, and builds the
// services. A nil logger uses slog.Default(). Call Close when done.
func Open(ctx context.Context, cfg types.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := store.Open(ctx, cfg, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	pub := events.NewMemoryPublisher()
	proj := projection.NewService(s, logger)
	return &Engine{
		Store:      s,
		Projection: proj,
		Sprints:    sprint.NewService(s, proj, pub, logger),
		Events:     pub,
		closer:     s.Close,
	}, nil
}

// Close shuts down the event publisher and the store.
func (e *Engine) Close() error {
	e.Events.Close()
	return e.closer()
}
