package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/backlog/internal/api"
	mcpserver "github.com/mesh-intelligence/backlog/internal/mcp"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and websocket change feed",
		Long: `Serve runs the HTTP API until interrupted.

Example:
  backlog serve
  backlog serve --addr :9090
  BACKLOG_SERVER_ADDR=:9090 backlog serve`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.withEngine(cmd, func(_ context.Context, e *backlog.Engine) error {
				srv := api.New(api.Config{
					Addr:            addr,
					Logger:          a.logger,
					Sprints:         e.Sprints,
					Projection:      e.Projection,
					Publisher:       e.Events,
					ReorderDebounce: a.cfg.Reorder.Debounce,
				})
				a.logger.Info("serving backlog API", "addr", addr, "backend", a.cfg.Backend)
				return srv.StartContext(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.addr)")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the backlog tools over MCP on stdio",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(_ context.Context, e *backlog.Engine) error {
				return mcpserver.Serve(mcpserver.NewServer(e.Sprints, e.Projection, backlog.Version))
			})
		},
	}
}
