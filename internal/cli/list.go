package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var listArchived bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active tasks, and archived ones with --archived",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		out := cmd.OutOrStdout()

		ids, err := app.store.ListActiveIDs()
		if err != nil {
			return err
		}

		fmt.Fprintln(out, styleTitle.Render("Active tasks"))
		if len(ids) == 0 {
			fmt.Fprintln(out, styleDim.Render("  none"))
		}
		for _, id := range ids {
			t, err := app.store.Load(id)
			if err != nil {
				fmt.Fprintf(out, "  %s  %s\n", id, styleStatusFailed.Render("unreadable: "+err.Error()))
				continue
			}
			fmt.Fprintf(out, "  %s  %s  %d/%d steps  %s\n",
				t.TaskID,
				renderStatus(t.Status),
				len(t.CompletedSteps),
				len(t.CompletedSteps)+len(t.NextSteps),
				t.Goal)
		}

		if !listArchived {
			return nil
		}

		paths, err := app.store.ListArchivedPaths()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, styleTitle.Render("Archived tasks"))
		if len(paths) == 0 {
			fmt.Fprintln(out, styleDim.Render("  none"))
		}
		for _, p := range paths {
			fmt.Fprintf(out, "  %s\n", filepath.Base(p))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "also list archived tasks")
}
