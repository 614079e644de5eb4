package reload

import (
	"context"
	"io"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/telemetry"
)

// StepError records one collected step failure.
type StepError struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

// RunReport summarizes one sequence run. Unit-level load and unload
// failures are log-only and show up here as missing counts; config I/O
// failures are collected in Errors.
type RunReport struct {
	SettingsApplied int         `json:"settings_applied"`
	UnitsUnloaded   int         `json:"units_unloaded"`
	UnitsLoaded     int         `json:"units_loaded"`
	Errors          []StepError `json:"errors,omitempty"`
}

// Sequencer executes reload steps strictly in order against one config
// file and one unit runtime. No step failure aborts the sequence; the
// caller reads the outcome from the RunReport.
type Sequencer struct {
	runtime    rawio.Runtime
	patcher    *Patcher
	configPath string
	suffixes   []string
	log        *telemetry.Logger
}

// NewSequencer creates a sequencer for the given runtime and config
// file. The manifest suffix set defaults to the recognized unit formats.
func NewSequencer(runtime rawio.Runtime, configPath string, log *telemetry.Logger) *Sequencer {
	return &Sequencer{
		runtime:    runtime,
		patcher:    NewPatcher(runtime),
		configPath: configPath,
		suffixes:   configdoc.DefaultUnitSuffixes,
		log:        log.NewComponentLogger("reload"),
	}
}

// Run executes steps one at a time, each completed before the next
// begins. Cancellation is honored between steps and inside delays, never
// inside a step's own I/O.
func (s *Sequencer) Run(ctx context.Context, steps []Step) *RunReport {
	report := &RunReport{}

	for _, step := range steps {
		if ctx.Err() != nil {
			s.log.Warnf("sequence interrupted before %q", step.Describe())
			report.Errors = append(report.Errors, StepError{Step: step.Describe(), Err: ctx.Err()})
			break
		}

		s.log.Debugf("step: %s", step.Describe())

		switch st := step.(type) {
		case SetSetting:
			if err := s.patcher.ApplySetting(ctx, s.configPath, st.Key, st.Value); err != nil {
				// Config I/O failures are worth surfacing, but a later
				// step can still improve things, so keep going.
				s.log.WithError(err).Warnf("setting %s not applied", st.Key)
				report.Errors = append(report.Errors, StepError{Step: st.Describe(), Err: err})
				continue
			}
			report.SettingsApplied++

		case Delay:
			select {
			case <-time.After(st.Duration):
			case <-ctx.Done():
			}

		case UnloadSet:
			s.unloadSet(st.Names, report)

		case ReloadFromManifest:
			s.reloadFromManifest(ctx, st.Path, report)
		}
	}

	return report
}

// unloadSet retires each named unit if present. Both the lookup miss and
// the unload error are deliberately ignored beyond logging: the unit may
// already be absent, which is the state this step wants anyway.
func (s *Sequencer) unloadSet(names []string, report *RunReport) {
	for _, name := range names {
		handle, ok := s.runtime.FindLoadedUnit(name)
		if !ok {
			s.log.Debugf("unit %s not loaded, nothing to unload", name)
			continue
		}

		if err := s.runtime.UnloadUnit(handle); err != nil {
			s.log.WithError(err).Warnf("unit %s not unloaded", name)
			continue
		}

		s.log.WithField("unit", name).Debug("unit unloaded")
		report.UnitsUnloaded++
	}
}

// reloadFromManifest reads the manifest and loads each listed unit in
// file order. A path that fails to load is logged and skipped so the
// remaining entries still get their chance.
func (s *Sequencer) reloadFromManifest(ctx context.Context, path string, report *RunReport) {
	file, err := s.runtime.Open(ctx, path, rawio.ReadOnly)
	if err != nil {
		openErr := &OpenError{Path: path, Err: err}
		s.log.WithError(openErr).Warn("manifest not readable")
		report.Errors = append(report.Errors, StepError{Step: "reload from " + path, Err: openErr})
		return
	}
	defer file.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(file, MaxConfigSize)); err != nil {
		s.log.WithError(err).Warn("manifest not readable")
		report.Errors = append(report.Errors, StepError{Step: "reload from " + path, Err: err})
		return
	}

	manifest := configdoc.ParseManifestSuffixes(buf.Bytes(), s.suffixes)
	for _, unitPath := range manifest.Paths {
		if _, err := s.runtime.LoadUnit(ctx, unitPath); err != nil {
			s.log.WithError(err).Warnf("unit %s not loaded", unitPath)
			continue
		}

		s.log.WithField("path", unitPath).Debug("unit loaded")
		report.UnitsLoaded++
	}
}
