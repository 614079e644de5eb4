package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/replug/replug/pkg/advisor"
	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/policy"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/reload"
)

// validationOutput is the combined verdict of the advisor and the
// policy gate over one config.
type validationOutput struct {
	ConfigPath      string                    `json:"config_path"`
	Validation      *advisor.ValidationReport `json:"validation"`
	Recommendations []advisor.Recommendation  `json:"recommendations,omitempty"`
	Policy          *policy.Result            `json:"policy,omitempty"`
	Applied         bool                      `json:"applied"`
}

func newValidateCommand() *cobra.Command {
	var (
		applyRecs   bool
		policyFiles []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config against the required settings and policies",
		Long: `Validate the runtime config without running the fix.

The advisor checks the required settings and the safe-mode blocker and
scores the document. The policy gate evaluates the builtin Rego policies
(and any custom ones) over the parsed config and manifest. With --apply,
recommended optional settings are written into the config in place.`,
		Example: `  # Validate the local config
  replug validate

  # Validate and apply the recommended settings
  replug validate --apply

  # Validate with custom policies
  replug validate --policy ./policies/

  # Validate a remote host
  replug validate --remote admin@10.0.0.17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := readDocument(ctx, a.runtime, a.configPath)
			if err != nil {
				return fmt.Errorf("failed to read config %s: %w", a.configPath, err)
			}

			adv := advisor.New(a.tel.Logger).WithRequired(a.requiredSettings())
			output := &validationOutput{ConfigPath: a.configPath}

			if applyRecs {
				recs := adv.Recommend(doc)
				if len(recs) > 0 {
					adv.ApplyRecommendations(doc, recs)
					patcher := reload.NewPatcher(a.runtime)
					if err := patcher.WriteDocument(ctx, a.configPath, doc); err != nil {
						return fmt.Errorf("failed to write config %s: %w", a.configPath, err)
					}
					output.Applied = true
				}
			}

			output.Validation = adv.Validate(doc)
			output.Recommendations = adv.Recommend(doc)

			engine, err := policy.NewEngine(a.tel.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize policy engine: %w", err)
			}
			if len(policyFiles) > 0 {
				if err := engine.LoadPolicies(ctx, policyFiles); err != nil {
					return err
				}
			}

			manifest := readManifestBytes(ctx, a)
			output.Policy, err = engine.EvaluateConfig(ctx, doc, a.manifestPath, manifest)
			if err != nil {
				return fmt.Errorf("policy evaluation failed: %w", err)
			}

			if jsonOutput {
				if err := printJSON(output); err != nil {
					return err
				}
			} else {
				printValidation(output)
			}

			if !output.Validation.Valid {
				return fmt.Errorf("config failed validation with score %d", output.Validation.Score)
			}
			if !output.Policy.Allowed {
				return fmt.Errorf("config blocked by %d policy violation(s)", len(output.Policy.Blocking()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&applyRecs, "apply", false, "write the recommended settings into the config")
	cmd.Flags().StringSliceVar(&policyFiles, "policy", nil, "custom .rego policy file or directory (repeatable)")

	return cmd
}

// readDocument loads and parses a config through the runtime store,
// bounded the same way the fix pipeline bounds its reads.
func readDocument(ctx context.Context, runtime rawio.Runtime, path string) (*configdoc.Document, error) {
	file, err := runtime.Open(ctx, path, rawio.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, reload.MaxConfigSize))
	if err != nil {
		return nil, err
	}
	return configdoc.Parse(data), nil
}

// readManifestBytes loads the manifest for policy evaluation. A missing
// manifest keeps the manifest policies quiet rather than failing the
// validation.
func readManifestBytes(ctx context.Context, a *app) []byte {
	file, err := a.runtime.Open(ctx, a.manifestPath, rawio.ReadOnly)
	if err != nil {
		a.tel.Logger.WithError(err).WithPath(a.manifestPath).Debugf("Manifest not read for policy evaluation")
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, reload.MaxConfigSize))
	if err != nil {
		a.tel.Logger.WithError(err).WithPath(a.manifestPath).Debugf("Manifest not read for policy evaluation")
		return nil
	}
	return data
}

func printValidation(output *validationOutput) {
	verdict := "VALID"
	if !output.Validation.Valid {
		verdict = "INVALID"
	}
	fmt.Printf("Config %s: %s (score %d/100)\n", output.ConfigPath, verdict, output.Validation.Score)
	for _, issue := range output.Validation.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}

	if output.Applied {
		fmt.Println("Recommended settings were applied.")
	}
	for _, rec := range output.Recommendations {
		fmt.Printf("  recommend %s=%s (%s)\n", rec.Key, rec.Value, rec.Reason)
	}

	if output.Policy != nil {
		gate := "allowed"
		if !output.Policy.Allowed {
			gate = "BLOCKED"
		}
		fmt.Printf("Policy gate: %s (%d policies evaluated in %s)\n",
			gate, output.Policy.EvaluatedPolicies, output.Policy.Duration.Round(timePrecision))
		for _, violation := range output.Policy.Violations {
			fmt.Printf("  %s [%s]: %s\n", violation.Policy, violation.Severity, violation.Message)
		}
		for _, warning := range output.Policy.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}
	}
}
