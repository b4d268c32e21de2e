package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/ecf/internal/controller"
)

var batchCmd = &cobra.Command{
	Use:   "batch <goal>...",
	Short: "Run goals sequentially, stopping at the first failure",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		done := streamEvents(cmd, app.bus)
		res := app.ctl.OrchestrateTaskBatch(cmd.Context(), args)
		app.bus.Close()
		<-done

		out := cmd.OutOrStdout()
		for _, id := range res.TaskIDs {
			fmt.Fprintf(out, "task %s\n", id)
		}
		fmt.Fprintf(out, "stop reason: %s\n", res.StopReason)
		if res.StopReason == controller.StopFailureDetected {
			return fmt.Errorf("batch stopped after a task failure")
		}
		return nil
	},
}
