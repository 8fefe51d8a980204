package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	backlogerrors "github.com/mesh-intelligence/backlog/internal/errors"
	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/internal/sprint"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
)

// dateLayout is the calendar-date form accepted for sprint dates.
const dateLayout = "2006-01-02"

func newSprintCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprint",
		Short: "Manage sprints and their story order",
	}
	cmd.AddCommand(newSprintListCmd(a))
	cmd.AddCommand(newSprintShowCmd(a))
	cmd.AddCommand(newSprintCreateCmd(a))
	cmd.AddCommand(newSprintUpdateCmd(a))
	cmd.AddCommand(newSprintDeleteCmd(a))
	cmd.AddCommand(newSprintStoriesCmd(a))
	cmd.AddCommand(newSprintReorderCmd(a))
	return cmd
}

func newSprintListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's sprints",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				views, err := e.Projection.GetSprints(ctx, args[0])
				if err != nil {
					return err
				}
				if a.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sprints found.")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						shortID(v.SprintID),
						truncate(v.Title, 40),
						v.Status,
						formatDate(v.StartDate),
						formatDate(v.EndDate),
						strconv.Itoa(len(v.Stories)),
						formatCost(v.TotalCost),
					})
				}
				return printTable(cmd.OutOrStdout(),
					[]string{"ID", "TITLE", "STATUS", "START", "END", "STORIES", "COST"}, rows)
			})
		},
	}
}

func newSprintShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <sprint-id>",
		Short: "Show a sprint's stories in priority order",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				v, err := e.Projection.GetSprint(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printSprint(cmd, v)
			})
		},
	}
}

func newSprintCreateCmd(a *app) *cobra.Command {
	var (
		name, start, end string
		storyIDs         []string
	)
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a sprint",
		Long: `Create a sprint, optionally with stories at priorities 1..n in the given order.

Example:
  backlog sprint create <project-id> --name "Sprint 1"
  backlog sprint create <project-id> --name "Sprint 1" --start 2026-01-05 --end 2026-01-16 \
      --story <story-id> --story <story-id>`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := sprint.CreateSprintRequest{ProjectID: args[0], Name: name, StoryIDs: storyIDs}
			var err error
			if req.StartDate, err = parseDateFlag("start", start); err != nil {
				return err
			}
			if req.EndDate, err = parseDateFlag("end", end); err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				v, err := e.Sprints.CreateSprint(ctx, req)
				if err != nil {
					return err
				}
				return a.printSprint(cmd, v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "sprint name")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&storyIDs, "story", nil, "story ID to add, repeatable, in priority order")
	return cmd
}

func newSprintUpdateCmd(a *app) *cobra.Command {
	var name, start, end, status string
	cmd := &cobra.Command{
		Use:   "update <sprint-id>",
		Short: "Rename a sprint, change its dates or move its status forward",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req sprint.UpdateSprintRequest
			f := cmd.Flags()
			if f.Changed("name") {
				req.Name = &name
			}
			if f.Changed("status") {
				req.Status = &status
			}
			var err error
			if req.StartDate, err = parseDateFlag("start", start); err != nil {
				return err
			}
			if req.EndDate, err = parseDateFlag("end", end); err != nil {
				return err
			}
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				v, err := e.Sprints.UpdateSprint(ctx, args[0], req)
				if err != nil {
					return err
				}
				return a.printSprint(cmd, v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&start, "start", "", "new start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "new end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "new status (planned, active, completed)")
	return cmd
}

func newSprintDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sprint-id>",
		Short: "Delete a sprint, returning its stories to the backlog",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				if err := e.Sprints.DeleteSprint(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted sprint %s\n", args[0])
				return nil
			})
		},
	}
}

func newSprintStoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stories <sprint-id> [story-id...]",
		Short: "Replace a sprint's stories; priorities follow the argument order",
		Long: `Stories replaces the sprint's complete story set. Omitting every story ID
empties the sprint.`,
		Args: minimumArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				if err := e.Sprints.ReplaceStories(ctx, args[0], args[1:]); err != nil {
					return err
				}
				return a.showSprint(ctx, cmd, e, args[0])
			})
		},
	}
}

func newSprintReorderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <sprint-id> <story-id>...",
		Short: "Renumber a sprint's stories in the given order",
		Long: `Reorder puts the listed member stories first, in argument order, followed by
the remaining members in their current order. IDs that are not members are
ignored.`,
		Args: minimumArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				if err := e.Sprints.Reorder(ctx, args[0], args[1:]); err != nil {
					return err
				}
				return a.showSprint(ctx, cmd, e, args[0])
			})
		},
	}
}

func (a *app) showSprint(ctx context.Context, cmd *cobra.Command, e *backlog.Engine, sprintID string) error {
	v, err := e.Projection.GetSprint(ctx, sprintID)
	if err != nil {
		return err
	}
	return a.printSprint(cmd, v)
}

func (a *app) printSprint(cmd *cobra.Command, v *projection.SprintView) error {
	w := cmd.OutOrStdout()
	if a.flags.jsonMode {
		return printJSON(w, v)
	}
	fmt.Fprintf(w, "%s  %s  [%s]  %s .. %s\n", v.SprintID, v.Title, v.Status,
		formatDate(v.StartDate), formatDate(v.EndDate))
	if len(v.Stories) == 0 {
		fmt.Fprintln(w, "No stories.")
		return nil
	}
	rows := make([][]string, 0, len(v.Stories))
	for _, s := range v.Stories {
		rows = append(rows, []string{
			strconv.Itoa(s.Priority),
			shortID(s.StoryID),
			truncate(s.Title, 40),
			string(s.Status),
			formatPoints(s.StoryPoints),
			formatCost(s.TotalCost),
		})
	}
	if err := printTable(w, []string{"#", "ID", "TITLE", "STATUS", "POINTS", "COST"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(w, "Total: %d stor(ies), cost %s\n", len(v.Stories), formatCost(v.TotalCost))
	return nil
}

// parseDateFlag parses a YYYY-MM-DD flag value; empty means unset.
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, backlogerrors.ErrInvalidRequest(fmt.Sprintf("--%s must be YYYY-MM-DD", name), err)
	}
	return &t, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateLayout)
}

func formatPoints(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func formatCost(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}
