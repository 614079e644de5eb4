package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/policy"
	"github.com/replug/replug/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	var (
		listenAddress string
		debounce      time.Duration
		policyFiles   []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the drift monitor daemon",
		Long: `Watch the config and manifest for changes and re-check the runtime
on every change.

Each check re-validates the config, re-evaluates the policy gate, and
re-verifies the flag state. The daemon never patches anything on its
own; run 'replug fix' or 'replug reapply' to change state. Status,
runs, units, metrics, and health endpoints are served over HTTP.

The daemon logs JSON unless --log-format says otherwise.`,
		Example: `  # Watch with the default endpoints on :9091
  replug watch

  # Watch with a profile and custom policies
  replug watch --profile fleet.cue --policy ./policies/

  # Watch on a different address
  replug watch --listen 127.0.0.1:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if remoteTarget != "" {
				return fmt.Errorf("watch monitors local files; --remote is not supported")
			}

			opts := appOptions{withStore: true, metrics: true}
			if !cmd.Flag("log-format").Changed {
				opts.logFormat = "json"
			}

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			engine, err := policy.NewEngine(a.tel.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize policy engine: %w", err)
			}
			if len(policyFiles) > 0 {
				if err := engine.LoadPolicies(ctx, policyFiles); err != nil {
					return err
				}
			}

			var lister watch.UnitLister
			if a.registry != nil {
				lister = a.registry
			}

			daemon, err := watch.NewDaemon(watch.Config{
				ConfigPath:    a.configPath,
				ManifestPath:  a.manifestPath,
				ListenAddress: listenAddress,
				Debounce:      debounce,
				Required:      a.requiredSettings(),
			}, a.runtime, a.store, a.session, engine, lister, a.tel)
			if err != nil {
				return err
			}

			return daemon.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddress, "listen", watch.DefaultListenAddress, "status server listen address")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet window after a file change")
	cmd.Flags().StringSliceVar(&policyFiles, "policy", nil, "custom .rego policy file or directory (repeatable)")

	return cmd
}
