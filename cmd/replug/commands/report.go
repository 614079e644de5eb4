package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/fix"
	"github.com/replug/replug/pkg/stores"
)

// statusReport bundles the diagnostic snapshot with recent run history.
type statusReport struct {
	Debug *fix.DebugReport `json:"debug"`
	Runs  []*stores.Run    `json:"runs"`
}

func newReportCommand() *cobra.Command {
	var runLimit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show a diagnostic snapshot and recent runs",
		Long: `Gather a read-only diagnostic report: flag state in both tiers,
accessibility probes on the config and manifest, loaded units, host
vitals, the problematic-title catalog, and the most recent fix runs.

Nothing is mutated; a report can run safely at any time.`,
		Example: `  # Report on the local runtime
  replug report

  # Report with the last 50 runs as JSON
  replug report --runs 50 --json

  # Probe a remote host
  replug report --remote admin@10.0.0.17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			report := &statusReport{
				Debug: a.orchestrator().DebugReport(ctx),
			}
			runs, err := a.store.ListRuns(ctx, runLimit, 0)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			report.Runs = runs

			if jsonOutput {
				return printJSON(report)
			}
			printStatusReport(report)
			return nil
		},
	}

	cmd.Flags().IntVar(&runLimit, "runs", 10, "number of recent runs to include")

	return cmd
}

func printStatusReport(report *statusReport) {
	debug := report.Debug

	fmt.Printf("Report generated at %s\n", debug.GeneratedAt.Format(timestampLayout))
	if debug.Host.Hostname != "" {
		fmt.Printf("Host: %s (%s/%s), up %ds, memory %.1f%% of %d bytes\n",
			debug.Host.Hostname, debug.Host.OS, debug.Host.Platform,
			debug.Host.UptimeSeconds, debug.Host.MemoryUsedPercent, debug.Host.MemoryTotalBytes)
	}

	fmt.Println("\nFiles:")
	printProbe("config", debug.ConfigProbe)
	printProbe("manifest", debug.ManifestProbe)

	fmt.Println("\nDurable flags:")
	printFlags(debug.DurableFlags)
	fmt.Println("Session flags:")
	printFlags(debug.SessionFlags)
	for _, flagErr := range debug.FlagErrors {
		fmt.Printf("  flag error: %s\n", flagErr)
	}

	if len(debug.LoadedUnits) > 0 {
		fmt.Println("\nLoaded units:")
		for _, unit := range debug.LoadedUnits {
			fmt.Printf("  %s\n", unit)
		}
	}

	fmt.Printf("\nProblematic titles known: %d\n", len(debug.ProblematicTitles))

	fmt.Printf("\nRecent runs (%d):\n", len(report.Runs))
	for _, run := range report.Runs {
		completed := "running"
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format(timestampLayout)
		}
		fmt.Printf("  %s  %-9s  source=%s  started=%s  completed=%s\n",
			run.ID, run.Status, run.Source, run.StartedAt.Format(timestampLayout), completed)
		if run.Error != nil {
			fmt.Printf("    error: %s\n", *run.Error)
		}
	}
}

func printProbe(name string, probe fix.ProbeResult) {
	if probe.Accessible {
		fmt.Printf("  %-9s %s: accessible\n", name, probe.Path)
		return
	}
	fmt.Printf("  %-9s %s: NOT accessible (%s)\n", name, probe.Path, probe.Error)
}

func printFlags(flags map[string]string) {
	if len(flags) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, key := range sortedKeys(flags) {
		fmt.Printf("  %s=%s\n", key, flags[key])
	}
}
