// Package cli implements the backlog command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/backlog/internal/config"
	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/paths"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags  rootFlags
	cfg    *config.Config
	logger *slog.Logger
}

// usageError marks mistakes in how a command was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// NewRootCmd creates the top-level "backlog" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "backlog",
		Short: "Sprint planning over a story backlog",
		Long: "Backlog orders stories inside sprints, rolls task status and cost up to\n" +
			"stories, and serves sprint, backlog and dashboard views over HTTP and MCP.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: .backlog or the user config dir)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: .backlog-db)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMCPCmd(a))
	root.AddCommand(newSprintCmd(a))
	root.AddCommand(newStoriesCmd(a))
	root.AddCommand(newDashboardCmd(a))
	root.AddCommand(newTreeCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to 1 for caller mistakes and 2 for everything
// else.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ue usageError
	if errors.As(err, &ue) {
		return exitUserError
	}
	var be *backlogerrors.Error
	if errors.As(err, &be) {
		switch be.Category() {
		case backlogerrors.CategoryNotFound, backlogerrors.CategoryBadRequest:
			return exitUserError
		}
	}
	return exitSysError
}

// load reads the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	dir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	return a.loadFrom(cmd, dir)
}

func (a *app) loadFrom(cmd *cobra.Command, dir string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return usageError{fmt.Errorf("load config: %w", err)}
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// openEngine opens the configured store. The caller must Close it.
func (a *app) openEngine(ctx context.Context) (*backlog.Engine, error) {
	sc, err := a.cfg.StoreConfig(a.flags.dataDir)
	if err != nil {
		return nil, usageError{err}
	}
	engine, err := backlog.Open(ctx, sc, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return engine, nil
}

// withEngine opens the store, runs fn and closes the store.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *backlog.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			a.logger.Warn("closing store", "error", cerr)
		}
	}()
	return fn(ctx, engine)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// minimumArgs is cobra.MinimumNArgs reporting a usage error.
func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// printTable writes rows under header as aligned columns, trimming trailing
// whitespace from each line.
func printTable(w io.Writer, header []string, rows [][]string) error {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// shortID keeps the first 8 characters of an ID for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
