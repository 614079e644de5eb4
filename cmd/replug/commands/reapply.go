package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/stores"
)

func newReapplyCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "reapply",
		Short: "Force the fix to run again",
		Long: `Reset the applied gate and run the fix pipeline regardless of
previous outcomes.

Use this after changing the config or manifest by hand, or when a
previous run left the runtime in a state the verifier rejects.`,
		Example: `  # Force a reapply on the local runtime
  replug reapply

  # Force a reapply on a remote host
  replug reapply --remote admin@10.0.0.17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.orchestrator().ForceReapply(ctx, source)

			if jsonOutput {
				return printJSON(result)
			}
			printResult(result, false)
			if result.Status == stores.RunStatusFailed {
				return fmt.Errorf("reapply run %s failed verification", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "reapply", "trigger recorded in the run history")

	return cmd
}
