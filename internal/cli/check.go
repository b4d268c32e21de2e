package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and generator connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "config: ok\n")
		fmt.Fprintf(out, "tasks dir: %s\n", app.cfg.Storage.TasksDir)
		fmt.Fprintf(out, "model: %s @ %s\n", app.cfg.LLM.Model, app.cfg.LLM.BaseURL)

		if err := app.client.Ping(cmd.Context()); err != nil {
			return errors.Join(ErrConfig, fmt.Errorf("generator endpoint: %w", err))
		}
		fmt.Fprintf(out, "generator: %s\n", styleStatusCompleted.Render("reachable"))
		return nil
	},
}
