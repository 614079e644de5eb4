package fix

import (
	"context"
	"fmt"

	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
)

// VerificationCheck is the outcome of one post-fix check.
type VerificationCheck struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Details string `json:"details,omitempty"`
}

// VerificationReport aggregates the post-fix checks. Success holds only
// when every check passed.
type VerificationReport struct {
	Success bool                `json:"success"`
	Checks  []VerificationCheck `json:"checks"`
}

// Issues returns the failed checks as human-readable strings, ready for
// the run summary.
func (r *VerificationReport) Issues() []string {
	var issues []string
	for _, check := range r.Checks {
		if check.Success {
			continue
		}
		if check.Details != "" {
			issues = append(issues, fmt.Sprintf("%s: %s", check.Name, check.Details))
			continue
		}
		issues = append(issues, check.Name)
	}
	return issues
}

// Verifier confirms that a fix actually landed by inspecting the flag
// state the fix is supposed to leave behind. A store fault never
// escapes as an error: the verifier degrades to a failed report with
// the fault captured in the check details and every check collected so
// far preserved.
type Verifier struct {
	durable stores.FlagStore
	session stores.FlagStore
	log     *telemetry.Logger
}

// NewVerifier creates a verifier over the two flag tiers.
func NewVerifier(durable, session stores.FlagStore, log *telemetry.Logger) *Verifier {
	return &Verifier{
		durable: durable,
		session: session,
		log:     log.NewComponentLogger("verifier"),
	}
}

// Verify runs the post-fix checks in order: the durable applied flag,
// the session applied flag, and the session runtime-loaded signal.
func (v *Verifier) Verify(ctx context.Context) *VerificationReport {
	report := &VerificationReport{}

	probes := []struct {
		name  string
		store stores.FlagStore
		key   string
	}{
		{"durable flag set", v.durable, FlagFixApplied},
		{"session flag set", v.session, FlagFixApplied},
		{"runtime loaded", v.session, FlagRuntimeLoaded},
	}

	for _, probe := range probes {
		value, ok, err := probe.store.GetFlag(ctx, probe.key)
		if err != nil {
			report.Checks = append(report.Checks, VerificationCheck{
				Name:    probe.name,
				Success: false,
				Details: fmt.Sprintf("check aborted: %v", err),
			})
			report.Success = false
			v.log.WithError(err).Warnf("Verification aborted on check %q", probe.name)
			return report
		}

		check := VerificationCheck{Name: probe.name, Success: ok && value == flagSet}
		switch {
		case !ok:
			check.Details = fmt.Sprintf("flag %s absent", probe.key)
		case !check.Success:
			check.Details = fmt.Sprintf("flag %s=%q", probe.key, value)
		}
		report.Checks = append(report.Checks, check)
	}

	report.Success = true
	for _, check := range report.Checks {
		if !check.Success {
			report.Success = false
			break
		}
	}

	v.log.WithField("success", report.Success).Debugf("Verification complete")
	return report
}
