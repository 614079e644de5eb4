// Package watch runs the background drift monitor: it watches the plugind
// config and the plugin manifest for changes, re-runs validation, policy
// evaluation, and verification on every change, and serves the results over
// an HTTP status surface.
//
// The daemon never patches anything on its own. It reports drift; the fix
// and reapply commands change state.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/replug/replug/pkg/advisor"
	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/fix"
	"github.com/replug/replug/pkg/policy"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/reload"
	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
)

// DefaultListenAddress is where the status server listens unless
// configured otherwise.
const DefaultListenAddress = ":9091"

// Config holds the daemon settings. Zero values fall back to the
// catalog defaults.
type Config struct {
	// ConfigPath is the plugind configuration file to watch.
	ConfigPath string

	// ManifestPath is the plugin manifest file to watch.
	ManifestPath string

	// ListenAddress is the status server bind address.
	ListenAddress string

	// Debounce is how long to wait after the last file event before
	// re-checking.
	Debounce time.Duration

	// Required overrides the setting set validation enforces.
	Required []catalog.Setting
}

// Daemon ties the file watcher, the check pipeline, and the status
// server together.
type Daemon struct {
	cfg      Config
	runtime  rawio.Runtime
	advisor  *advisor.Advisor
	policies *policy.Engine
	verifier *fix.Verifier
	status   *Status
	watcher  *Watcher
	server   *Server
	tel      *telemetry.Telemetry
	log      *telemetry.Logger
}

// NewDaemon wires a daemon from its collaborators. The policy engine and
// unit lister may be nil; the corresponding check and endpoint degrade to
// empty results.
func NewDaemon(cfg Config, runtime rawio.Runtime, store stores.Store, session stores.FlagStore, policies *policy.Engine, units UnitLister, tel *telemetry.Telemetry) (*Daemon, error) {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = catalog.DefaultConfigPath
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = catalog.DefaultManifestPath
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	watcher, err := NewWatcher(cfg.ConfigPath, cfg.ManifestPath, cfg.Debounce, tel.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		runtime:  runtime,
		advisor:  advisor.New(tel.Logger).WithRequired(cfg.Required),
		policies: policies,
		verifier: fix.NewVerifier(store, session, tel.Logger),
		status:   NewStatus([]string{cfg.ConfigPath, cfg.ManifestPath}),
		watcher:  watcher,
		tel:      tel,
		log:      tel.Logger.NewComponentLogger("watch"),
	}
	d.server = NewServer(cfg.ListenAddress, d.status, watcher, store, units, tel)

	return d, nil
}

// Status exposes the daemon's recorded state.
func (d *Daemon) Status() *Status {
	return d.status
}

// Run performs an initial check, starts the watcher, and serves the
// status endpoints until the context is canceled. The initial check runs
// before the server comes up so the first status request never sees an
// empty report.
func (d *Daemon) Run(ctx context.Context) error {
	d.Check(ctx, "startup")

	if err := d.watcher.Start(ctx, func(reason string) {
		// Debounce timers can outlive shutdown.
		if ctx.Err() != nil {
			return
		}
		d.Check(ctx, reason)
	}); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer d.watcher.Close()

	d.log.WithFields(map[string]interface{}{
		"config":   d.cfg.ConfigPath,
		"manifest": d.cfg.ManifestPath,
		"listen":   d.cfg.ListenAddress,
	}).Info("Watch daemon started")

	return d.server.Serve(ctx)
}

// Check runs one full pass: read and validate the config, evaluate
// policies against config plus manifest, and verify the applied-state
// flags. Failures degrade to issues in the report; a check never stops
// the daemon.
func (d *Daemon) Check(ctx context.Context, reason string) *CheckReport {
	started := time.Now()
	report := &CheckReport{
		Reason:    reason,
		CheckedAt: started.UTC(),
	}

	d.tel.Metrics.RecordWatchEvent(reason)
	_ = d.tel.Events.PublishWatchTriggered(reason)

	doc := d.checkConfig(ctx, report)
	d.checkPolicies(ctx, doc, report)
	d.checkVerification(ctx, report)

	report.Healthy = len(report.Issues) == 0
	report.Duration = time.Since(started)
	d.status.Record(report)

	entry := d.log.WithFields(map[string]interface{}{
		"reason":   report.Reason,
		"issues":   len(report.Issues),
		"duration": report.Duration.String(),
	})
	if report.Healthy {
		entry.Info("Check passed")
	} else {
		entry.Warn("Check found problems")
	}

	return report
}

// checkConfig reads the config through the runtime store and runs the
// advisor over it. Returns the parsed document for the policy pass, or
// nil when the config is unreadable.
func (d *Daemon) checkConfig(ctx context.Context, report *CheckReport) *configdoc.Document {
	data, err := d.readResource(ctx, d.cfg.ConfigPath)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("config unreadable: %v", err))
		return nil
	}

	doc := configdoc.Parse(data)
	report.Validation = d.advisor.Validate(doc)
	d.tel.Metrics.SetValidationScore(float64(report.Validation.Score))
	report.Issues = append(report.Issues, report.Validation.Issues...)

	return doc
}

// checkPolicies evaluates the policy gate against the current document
// and manifest. Blocking violations become issues; warnings are policy
// evaluation faults and only get logged.
func (d *Daemon) checkPolicies(ctx context.Context, doc *configdoc.Document, report *CheckReport) {
	if d.policies == nil {
		return
	}

	manifest, err := d.readResource(ctx, d.cfg.ManifestPath)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("manifest unreadable: %v", err))
		manifest = nil
	}

	result, err := d.policies.EvaluateConfig(ctx, doc, d.cfg.ManifestPath, manifest)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("policy evaluation failed: %v", err))
		return
	}
	report.Policy = result

	for _, violation := range result.Blocking() {
		report.Issues = append(report.Issues, fmt.Sprintf("policy %s: %s", violation.Policy, violation.Message))
		_ = d.tel.Events.PublishPolicyViolation(violation.Policy, violation.Message)
	}
	for _, warning := range result.Warnings {
		d.log.WithField("warning", warning).Warn("Policy evaluation degraded")
	}
}

// checkVerification re-checks the applied-state flags.
func (d *Daemon) checkVerification(ctx context.Context, report *CheckReport) {
	report.Verification = d.verifier.Verify(ctx)
	report.Issues = append(report.Issues, report.Verification.Issues()...)
}

// readResource loads a bounded copy of a resource through the runtime
// store, capped the same way the patcher caps its reads.
func (d *Daemon) readResource(ctx context.Context, path string) ([]byte, error) {
	file, err := d.runtime.Open(ctx, path, rawio.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(io.LimitReader(file, reload.MaxConfigSize))
}
