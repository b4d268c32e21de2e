package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/ecf/internal/events"
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Plan and execute a goal end to end",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		goal := strings.Join(args, " ")

		done := streamEvents(cmd, app.bus)
		taskID := app.ctl.RunTask(cmd.Context(), goal)
		app.bus.Close()
		<-done

		if taskID == "" {
			return fmt.Errorf("task record could not be created")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task %s finished\n", taskID)
		return nil
	},
}

// streamEvents prints lifecycle events until the bus closes.
func streamEvents(cmd *cobra.Command, bus *events.Bus) <-chan struct{} {
	ch := bus.Subscribe(256)
	done := make(chan struct{})
	out := cmd.OutOrStdout()
	go func() {
		defer close(done)
		for e := range ch {
			switch ev := e.(type) {
			case events.PlanReadyEvent:
				fmt.Fprintf(out, "%s planned %d steps\n", ev.ID, ev.StepCount)
			case events.StepStartedEvent:
				fmt.Fprintf(out, "  step %d: %s\n", ev.StepIndex, ev.Description)
			case events.StepCompletedEvent:
				fmt.Fprintf(out, "  step %d done (%s)\n", ev.StepIndex, ev.Tool)
			case events.StepFailedEvent:
				fmt.Fprintf(out, "  step %d %s: %s\n", ev.StepIndex, styleStatusFailed.Render("failed"), ev.Detail)
			case events.TaskArchivedEvent:
				fmt.Fprintf(out, "%s archived (%s)\n", ev.ID, ev.Reason)
			}
		}
	}()
	return done
}
