package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeMaxSteps int

var resumeCmd = &cobra.Command{
	Use:   "resume <task_id>",
	Short: "Resume an interrupted task",
	Long: `Resume picks up a non-terminal task from its file on disk. An
interrupted step is executed again, so resumption is at-least-once.
With --max-steps the run stops after that many steps and leaves the
task in progress for a later resume.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		done := streamEvents(cmd, app.bus)
		taskID, err := app.ctl.ResumeTask(cmd.Context(), args[0], resumeMaxSteps)
		app.bus.Close()
		<-done
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "task %s resumed\n", taskID)
		return nil
	},
}

func init() {
	resumeCmd.Flags().IntVar(&resumeMaxSteps, "max-steps", 0, "maximum steps to execute in this resume (0 = unbounded)")
}
