package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/store"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
)

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Write a project's backlog to JSONL files",
		Long: `Export writes one JSONL file per record kind into --dir, which is created
if needed. The files can be committed and later loaded with import.

Example:
  backlog export <project-id> --dir ./dump`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				counts, err := store.Export(ctx, e.Store, args[0], dir)
				if err != nil {
					if backlogerrors.IsNotFound(err) {
						return backlogerrors.ErrProjectNotFound(args[0])
					}
					return err
				}
				return a.printCounts(cmd.OutOrStdout(), "Exported", counts)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write into")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load JSONL files written by export",
		Long: `Import loads every record in --dir in one transaction. Records whose IDs
already exist abort the whole import.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				counts, err := store.Import(ctx, e.Store, dir)
				if err != nil {
					return backlogerrors.FromStore(err)
				}
				return a.printCounts(cmd.OutOrStdout(), "Imported", counts)
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to read from")
	return cmd
}

func (a *app) printCounts(w io.Writer, verb string, c *store.Counts) error {
	if a.flags.jsonMode {
		return printJSON(w, c)
	}
	_, err := fmt.Fprintf(w, "%s %d project(s), %d epic(s), %d feature(s), %d stor(ies), %d task(s), %d worklog(s), %d sprint(s), %d membership(s)\n",
		verb, c.Projects, c.Epics, c.Features, c.Stories, c.Tasks, c.Worklogs, c.Sprints, c.Memberships)
	return err
}
