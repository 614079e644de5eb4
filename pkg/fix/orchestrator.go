package fix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/replug/replug/pkg/advisor"
	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/reload"
	"github.com/replug/replug/pkg/stores"
	"github.com/replug/replug/pkg/telemetry"
)

// OrchestratorConfig controls the file targets and the unload set of the
// fix pipeline. Zero-value fields fall back to the catalog defaults.
type OrchestratorConfig struct {
	ConfigPath   string
	ManifestPath string
	UnloadSet    []string

	// Required overrides the setting set the canonical rewrite enforces.
	Required []catalog.Setting

	// Steps replaces the canonical reload sequence. Profiles with a
	// build_steps hook install their computed plan here; settle windows
	// ride inside the plan's Delay steps.
	Steps []reload.Step
}

// Result summarizes one orchestrator invocation.
type Result struct {
	RunID        string                    `json:"run_id"`
	Status       stores.RunStatus          `json:"status"`
	Issues       []string                  `json:"issues,omitempty"`
	Report       *reload.RunReport         `json:"report,omitempty"`
	Validation   *advisor.ValidationReport `json:"validation,omitempty"`
	Verification *VerificationReport       `json:"verification,omitempty"`
	Duration     time.Duration             `json:"duration"`
}

// Orchestrator drives the full fix pipeline: gate check, reload sequence,
// canonical config write, gate marking, and verification. Nothing in the
// pipeline is fatal; failures degrade to issues on the Result and the run
// status reflects the verification outcome.
type Orchestrator struct {
	runtime   rawio.Runtime
	store     stores.Store
	session   stores.FlagStore
	gate      *Gate
	verifier  *Verifier
	sequencer *reload.Sequencer
	patcher   *reload.Patcher
	advisor   *advisor.Advisor
	tel       *telemetry.Telemetry
	log       *telemetry.Logger
	cfg       OrchestratorConfig
}

// NewOrchestrator wires the fix pipeline over a runtime and the two flag
// tiers. The store is the durable tier and also records run history; the
// session store is cleared on process exit. tel must not be nil.
func NewOrchestrator(runtime rawio.Runtime, store stores.Store, session stores.FlagStore, tel *telemetry.Telemetry, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = catalog.DefaultConfigPath
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = catalog.DefaultManifestPath
	}
	if len(cfg.UnloadSet) == 0 {
		cfg.UnloadSet = catalog.DefaultUnloadSet()
	}

	return &Orchestrator{
		runtime:   runtime,
		store:     store,
		session:   session,
		gate:      NewGate(store, session, tel.Logger),
		verifier:  NewVerifier(store, session, tel.Logger),
		sequencer: reload.NewSequencer(runtime, cfg.ConfigPath, tel.Logger),
		patcher:   reload.NewPatcher(runtime),
		advisor:   advisor.New(tel.Logger).WithRequired(cfg.Required),
		tel:       tel,
		log:       tel.Logger.NewComponentLogger("orchestrator"),
		cfg:       cfg,
	}
}

// RunFix executes the fix pipeline once. The gate may skip it entirely;
// otherwise the reload sequence runs, the canonical config is written,
// the gate is marked, and the verifier judges the outcome. RunFix never
// returns an error: failures are itemized on the Result.
//
// Marking precedes verification because the verifier inspects exactly
// the flag state marking leaves behind; a failed verification re-arms
// the gate so a later run can retry.
func (o *Orchestrator) RunFix(ctx context.Context, source string) *Result {
	runID := uuid.New().String()
	result := &Result{RunID: runID, Status: stores.RunStatusRunning}
	timer := telemetry.NewTimer()

	should, gateErr := o.gate.ShouldRun(ctx)
	if gateErr != nil {
		// A faulted tier reads as "not set"; it never suppresses on its own.
		o.log.WithError(gateErr).Warnf("Gate tier unreadable")
		result.Issues = append(result.Issues, gateErr.Error())
	}
	if !should {
		result.Status = stores.RunStatusSkipped
		result.Duration = timer.Duration()
		o.log.WithRunID(runID).Infof("Fix already applied, skipping")
		o.persistRunStart(ctx, runID, source)
		o.appendEvent(ctx, runID, stores.EventLevelInfo, "fix skipped: gate closed", nil)
		o.persistRunEnd(ctx, result, nil)
		_ = o.tel.Events.PublishFixSkipped(runID, "already applied")
		return result
	}

	o.persistRunStart(ctx, runID, source)
	runCtx := telemetry.WithFixContext(o.tel.WithContext(ctx), runID, source)

	steps := o.cfg.Steps
	if steps == nil {
		steps = reload.FixSequence(o.cfg.ManifestPath, o.cfg.UnloadSet)
	}
	report := o.sequencer.Run(runCtx, steps)
	result.Report = report
	o.recordSequenceOutcome(runCtx, runID, report, result)

	o.writeCanonical(runCtx, runID, result)
	o.probeValidation(runCtx, runID, result)
	o.markGate(runCtx, report, result)

	verification := o.verifier.Verify(runCtx)
	result.Verification = verification

	var errMsg *string
	if verification.Success {
		result.Status = stores.RunStatusSucceeded
	} else {
		result.Status = stores.RunStatusFailed
		issues := verification.Issues()
		for _, issue := range issues {
			result.Issues = append(result.Issues, NewVerificationFailure(issue, nil).Error())
		}
		msg := "verification failed"
		errMsg = &msg
		o.appendEvent(runCtx, runID, stores.EventLevelError, msg, verification)
		_ = o.tel.Events.PublishVerifyFailed(runID, issues)
		if err := o.gate.Reset(runCtx); err != nil {
			o.log.WithError(err).Warnf("Gate not re-armed after failed verification")
			result.Issues = append(result.Issues, err.Error())
		}
	}

	result.Duration = timer.Duration()
	o.persistRunEnd(runCtx, result, errMsg)
	telemetry.EndFixContext(runCtx, runID, string(result.Status), nil)

	o.log.WithRunID(runID).WithField("status", string(result.Status)).
		Infof("Fix run complete in %s", result.Duration)
	return result
}

// ForceReapply re-arms the gate and the runtime-loaded signal, then runs
// the fix again regardless of previous outcomes.
func (o *Orchestrator) ForceReapply(ctx context.Context, source string) *Result {
	if err := o.gate.Reset(ctx); err != nil {
		// A stuck gate is what a forced reapply exists to get past.
		o.log.WithError(err).Warnf("Gate reset failed before reapply")
	}
	return o.RunFix(ctx, source)
}

// IsTitleProblematic reports whether a title is on the known problematic
// list. Matching is a case-insensitive substring test.
func IsTitleProblematic(title string) bool {
	return catalog.IsProblematicTitle(title)
}

// recordSequenceOutcome classifies the step errors the sequence collected,
// feeds the unit counters, and itemizes the failures that belong in the
// run summary. Best-effort failures stay in the report and the event log.
func (o *Orchestrator) recordSequenceOutcome(ctx context.Context, runID string, report *reload.RunReport, result *Result) {
	o.tel.Metrics.RecordUnitsUnloaded(report.UnitsUnloaded)
	o.tel.Metrics.RecordUnitsLoaded(report.UnitsLoaded)

	for _, stepErr := range report.Errors {
		fixErr := o.classifyStepError(stepErr)
		o.tel.Metrics.RecordPatchFailure(string(fixErr.Class))
		o.appendEvent(ctx, runID, stores.EventLevelWarning, fixErr.Error(), nil)
		if IsIssue(fixErr) {
			result.Issues = append(result.Issues, fixErr.Error())
		}
	}
}

// classifyStepError maps a collected step error onto the failure taxonomy.
func (o *Orchestrator) classifyStepError(stepErr reload.StepError) *FixError {
	var openErr *reload.OpenError
	switch {
	case errors.As(stepErr.Err, &openErr):
		code := ErrCodeConfigOpen
		if openErr.Path == o.cfg.ManifestPath {
			code = ErrCodeManifestOpen
		}
		return NewOpenFailure("could not open file", stepErr.Err).
			WithPath(openErr.Path).
			WithStep(stepErr.Step).
			WithCode(code)
	case errors.Is(stepErr.Err, context.Canceled) || errors.Is(stepErr.Err, context.DeadlineExceeded):
		return NewBestEffortFailure("sequence interrupted", stepErr.Err).WithStep(stepErr.Step)
	default:
		fixErr := NewBestEffortFailure("step did not complete", stepErr.Err).WithStep(stepErr.Step)
		if strings.HasPrefix(stepErr.Step, "set ") {
			fixErr = fixErr.WithCode(ErrCodeSettingPatch)
		}
		return fixErr
	}
}

// writeCanonical replaces the config with the advisor's known-good
// document. The whole-file rewrite is the point: after a clean fix the
// config is in a state the validator scores at 100.
func (o *Orchestrator) writeCanonical(ctx context.Context, runID string, result *Result) {
	doc := o.advisor.BuildCanonical()
	if err := o.patcher.WriteDocument(ctx, o.cfg.ConfigPath, doc); err != nil {
		fixErr := NewOpenFailure("canonical config not written", err).
			WithPath(o.cfg.ConfigPath).
			WithCode(ErrCodeCanonicalWrite)
		o.log.WithError(err).Warnf("Canonical config not written")
		o.tel.Metrics.RecordPatchFailure(string(fixErr.Class))
		o.appendEvent(ctx, runID, stores.EventLevelWarning, fixErr.Error(), nil)
		result.Issues = append(result.Issues, fixErr.Error())
		return
	}

	settings := o.cfg.Required
	if len(settings) == 0 {
		settings = catalog.RequiredSettings()
	}
	for _, setting := range settings {
		o.tel.Metrics.RecordSettingPatched(setting.Key)
		_ = o.tel.Events.PublishConfigPatched(runID, o.cfg.ConfigPath, setting.Key, setting.Value)
	}
	o.appendEvent(ctx, runID, stores.EventLevelInfo, "canonical config written", nil)
}

// probeValidation reads the config back and scores it. After a clean
// canonical write this reports 100; anything less means the write was
// degraded and the itemized issues say how.
func (o *Orchestrator) probeValidation(ctx context.Context, runID string, result *Result) {
	doc, err := o.readConfig(ctx)
	if err != nil {
		// The write failure, if any, is already itemized.
		o.log.WithError(err).Warnf("Config unreadable for validation probe")
		return
	}

	validation := o.advisor.Validate(doc)
	result.Validation = validation
	o.tel.Metrics.SetValidationScore(float64(validation.Score))
	if validation.Valid {
		return
	}

	for _, issue := range validation.Issues {
		result.Issues = append(result.Issues, NewValidationIssue(issue, nil).Error())
	}
	o.appendEvent(ctx, runID, stores.EventLevelWarning, "config validation degraded", validation)
}

// markGate raises the applied flags and, when the sequence actually
// loaded units, the runtime-loaded signal.
func (o *Orchestrator) markGate(ctx context.Context, report *reload.RunReport, result *Result) {
	if err := o.gate.MarkApplied(ctx); err != nil {
		o.log.WithError(err).Warnf("Fix not marked applied")
		result.Issues = append(result.Issues, err.Error())
	}
	if report.UnitsLoaded == 0 {
		return
	}
	if err := o.gate.MarkRuntimeLoaded(ctx); err != nil {
		o.log.WithError(err).Warnf("Runtime-loaded signal not raised")
		result.Issues = append(result.Issues, err.Error())
	}
}

// readConfig loads and parses the config through the runtime store,
// bounded the same way the patcher bounds its reads.
func (o *Orchestrator) readConfig(ctx context.Context) (*configdoc.Document, error) {
	file, err := o.runtime.Open(ctx, o.cfg.ConfigPath, rawio.ReadOnly)
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

// persistRunStart records the run row. Run history is observability, so
// store faults degrade to a log line rather than blocking the fix.
func (o *Orchestrator) persistRunStart(ctx context.Context, runID, source string) {
	now := time.Now().UTC()
	run := &stores.Run{
		ID:        runID,
		Source:    source,
		Status:    stores.RunStatusRunning,
		Issues:    "[]",
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		o.log.WithError(err).Warnf("Run record not created")
	}
}

// persistRunEnd completes the run row with the final status and issues.
func (o *Orchestrator) persistRunEnd(ctx context.Context, result *Result, errMsg *string) {
	if err := o.store.CompleteRun(ctx, result.RunID, result.Status, marshalIssues(result.Issues), errMsg); err != nil {
		o.log.WithError(err).Warnf("Run record not completed")
	}
}

// appendEvent writes one event row, marshaling details when present.
func (o *Orchestrator) appendEvent(ctx context.Context, runID string, level stores.EventLevel, message string, details interface{}) {
	event := &stores.Event{
		RunID:     &runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			blob := string(data)
			event.Details = &blob
		}
	}
	if err := o.store.AppendEvent(ctx, event); err != nil {
		o.log.WithError(err).Debugf("Event not appended")
	}
}

// marshalIssues renders the issue list as the JSON array the run row
// stores. An empty list is an empty array, never null.
func marshalIssues(issues []string) string {
	if len(issues) == 0 {
		return "[]"
	}
	data, err := json.Marshal(issues)
	if err != nil {
		return "[]"
	}
	return string(data)
}
