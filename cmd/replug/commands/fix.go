package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/fix"
	"github.com/replug/replug/pkg/stores"
)

func newFixCommand() *cobra.Command {
	var (
		dryRun bool
		source string
	)

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Run the reactivation fix pipeline",
		Long: `Run the full fix pipeline against the managed runtime.

The pipeline:
  - Checks the applied gate and skips when the fix already ran
  - Cycles the loader settings through the reload sequence
  - Retires the unload set and reloads units from the manifest
  - Rewrites the config to the canonical known-good document
  - Validates the result and verifies the flag state

A second run is suppressed by the gate until 'replug reapply' resets it.`,
		Example: `  # Fix the local runtime
  replug fix

  # Preview against an in-memory copy of the real files
  replug fix --dry-run

  # Fix with a site profile
  replug fix --profile fleet.cue

  # Patch a remote host over SFTP
  replug fix --remote admin@10.0.0.17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			runSource := source
			if dryRun && !cmd.Flags().Changed("source") {
				runSource = "dry-run"
			}

			a, err := newApp(ctx, appOptions{dryRun: dryRun, withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.orchestrator().RunFix(ctx, runSource)

			if jsonOutput {
				return printJSON(result)
			}
			printResult(result, dryRun)
			if a.mem != nil {
				printDryRunDiff(a)
			}
			if result.Status == stores.RunStatusFailed {
				return fmt.Errorf("fix run %s failed verification", result.RunID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run against an in-memory copy, writing nothing")
	cmd.Flags().StringVar(&source, "source", "cli", "trigger recorded in the run history")

	return cmd
}

// printResult renders a run result for human consumption.
func printResult(result *fix.Result, dryRun bool) {
	header := "Fix run"
	if dryRun {
		header = "Dry run"
	}
	fmt.Printf("%s %s: %s (%s)\n", header, result.RunID, result.Status, result.Duration.Round(timePrecision))

	if result.Report != nil {
		fmt.Printf("  settings applied: %d, units unloaded: %d, units loaded: %d\n",
			result.Report.SettingsApplied, result.Report.UnitsUnloaded, result.Report.UnitsLoaded)
	}
	if result.Validation != nil {
		fmt.Printf("  validation score: %d/100\n", result.Validation.Score)
	}
	if result.Verification != nil {
		for _, check := range result.Verification.Checks {
			mark := "ok"
			if !check.Success {
				mark = "FAIL"
			}
			fmt.Printf("  verify %-20s %s\n", check.Name, mark)
		}
	}
	for _, issue := range result.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
}

// printDryRunDiff shows what the dry run would have written.
func printDryRunDiff(a *app) {
	data, ok := a.mem.Snapshot(a.configPath)
	if !ok {
		return
	}
	fmt.Printf("\nWould write %s:\n", a.configPath)
	fmt.Println(indentBlock(string(data)))
}
