package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	superviseMinAge   time.Duration
	superviseMaxTasks int
	superviseInterval time.Duration
)

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Scan for stalled tasks and resume them",
	Long: `Supervise looks for tasks that are marked in progress, have no step in
flight, and whose file has not been touched within --min-age. Each match
is resumed to completion. With --interval the scan repeats until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		out := cmd.OutOrStdout()

		scan := func() error {
			resumed, err := app.ctl.SupervisorResumeStalled(cmd.Context(), superviseMinAge, superviseMaxTasks)
			if err != nil {
				return err
			}
			if len(resumed) == 0 {
				fmt.Fprintln(out, styleDim.Render("no stalled tasks"))
				return nil
			}
			for _, id := range resumed {
				fmt.Fprintf(out, "resumed %s\n", id)
			}
			return nil
		}

		if err := scan(); err != nil {
			return err
		}
		if superviseInterval <= 0 {
			return nil
		}

		ticker := time.NewTicker(superviseInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-ticker.C:
				if err := scan(); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	superviseCmd.Flags().DurationVar(&superviseMinAge, "min-age", time.Minute, "minimum file age before a task counts as stalled")
	superviseCmd.Flags().IntVar(&superviseMaxTasks, "max-tasks", 0, "maximum tasks to resume per scan (0 = unbounded)")
	superviseCmd.Flags().DurationVar(&superviseInterval, "interval", 0, "rescan interval (0 = scan once and exit)")
}
