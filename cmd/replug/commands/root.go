package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath   string
	manifestPath string
	databasePath string
	unitCatalog  string
	profileFiles []string
	remoteTarget string
	logLevel     string
	logFormat    string
	jsonOutput   bool
)

// cliVersion is the build version, recorded for telemetry identification.
var cliVersion = "dev"

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	cliVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "replug",
		Short: "replug - plugin runtime reactivation and config patching",
		Long: `replug repairs and supervises a managed plugin runtime.

It rewrites the runtime configuration to a known-good state, cycles the
loader settings, retires stale units, reloads the unit manifest, and
verifies the outcome through durable and session flags.

Features:
  - Idempotent fix pipeline with run history in SQLite
  - Dry-run against an in-memory runtime
  - CUE site profiles with an optional Starlark step hook
  - OPA policy gate over config and manifest
  - Background watch daemon with health and metrics endpoints
  - Remote patching over SFTP`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "runtime config file path")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "unit manifest file path")
	rootCmd.PersistentFlags().StringVar(&databasePath, "database", "", "state database path")
	rootCmd.PersistentFlags().StringVar(&unitCatalog, "unit-catalog", "", "YAML unit catalog with checksum pins")
	rootCmd.PersistentFlags().StringSliceVarP(&profileFiles, "profile", "p", nil, "CUE profile file (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&remoteTarget, "remote", "r", "", "remote target as user@host[:port]")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newFixCommand())
	rootCmd.AddCommand(newReapplyCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newTitlesCommand())

	return rootCmd
}
