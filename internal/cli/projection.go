package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/backlog/internal/projection"
	"github.com/mesh-intelligence/backlog/pkg/backlog"
)

func newStoriesCmd(a *app) *cobra.Command {
	var unassigned bool
	cmd := &cobra.Command{
		Use:   "stories <project-id>",
		Short: "List a project's stories with derived status, cost and sprint",
		Long: `Stories lists every story ordered by epic, feature and title.

Example:
  backlog stories <project-id>
  backlog stories <project-id> --unassigned
  backlog stories <project-id> --json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				stories, err := e.Projection.GetBacklogStories(ctx, args[0])
				if err != nil {
					return err
				}
				if unassigned {
					stories = projection.Unassigned(stories)
				}
				w := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(w, stories)
				}
				if len(stories) == 0 {
					fmt.Fprintln(w, "No stories found.")
					return nil
				}
				rows := make([][]string, 0, len(stories))
				for _, s := range stories {
					sprintTitle := "-"
					if s.InSprint {
						sprintTitle = truncate(s.SprintTitle, 20)
					}
					rows = append(rows, []string{
						shortID(s.StoryID),
						truncate(s.EpicTitle, 20),
						truncate(s.FeatureTitle, 20),
						truncate(s.Title, 40),
						string(s.Status),
						formatCost(s.TotalCost),
						sprintTitle,
					})
				}
				if err := printTable(w, []string{"ID", "EPIC", "FEATURE", "TITLE", "STATUS", "COST", "SPRINT"}, rows); err != nil {
					return err
				}
				fmt.Fprintf(w, "Total: %d stor(ies)\n", len(stories))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unassigned, "unassigned", false, "only stories in no sprint")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard <project-id>",
		Short: "Show a project's size, cost, burnup and recent activity",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				d, err := e.Projection.GetDashboard(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(w, d)
				}
				fmt.Fprintf(w, "%s\n", d.ProjectName)
				fmt.Fprintf(w, "Stories: %d\n", d.StoryCount)
				fmt.Fprintf(w, "Tasks: %d (%d done)\n", d.TaskCount, d.CompletedTasks)
				fmt.Fprintf(w, "Estimated hours: dev %s, test %s\n",
					formatCost(d.EstimatedDevHours), formatCost(d.EstimatedTestHours))
				fmt.Fprintf(w, "Total cost: %s\n", formatCost(d.TotalCost))
				if len(d.Burnup) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(d.Burnup))
				for _, p := range d.Burnup {
					rows = append(rows, []string{p.Week, strconv.Itoa(p.Completed), strconv.Itoa(p.Total)})
				}
				fmt.Fprintln(w)
				return printTable(w, []string{"WEEK", "COMPLETED", "TOTAL"}, rows)
			})
		},
	}
}

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <project-id>",
		Short: "Print a project's epic, feature, story and task tree",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *backlog.Engine) error {
				tree, err := e.Projection.GetBacklogTree(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if a.flags.jsonMode {
					return printJSON(w, tree)
				}
				fmt.Fprintln(w, tree.Name)
				for _, epic := range tree.Epics {
					fmt.Fprintf(w, "  %s  (%s)\n", epic.Title, formatCost(epic.TotalCost))
					for _, f := range epic.Features {
						fmt.Fprintf(w, "    %s  (%s)\n", f.Title, formatCost(f.TotalCost))
						for _, s := range f.Stories {
							fmt.Fprintf(w, "      %s  [%s]  %d task(s)  (%s)\n",
								s.Title, s.Status, len(s.Tasks), formatCost(s.TotalCost))
						}
					}
				}
				fmt.Fprintf(w, "Total cost: %s\n", formatCost(tree.TotalCost))
				return nil
			})
		},
	}
}
