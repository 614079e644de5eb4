package profile

import (
	"sort"
	"time"

	"github.com/replug/replug/pkg/catalog"
)

// Profile is a site-specific override set for the fix workflow. Every
// field is optional except the name; unset fields fall back to the
// catalog defaults.
type Profile struct {
	// Name identifies the profile (e.g. "kiosk-fleet").
	Name string `json:"name" validate:"required"`

	// Description is a human-readable summary of what the profile is for.
	Description string `json:"description,omitempty"`

	// Targets overrides the managed file locations.
	Targets TargetPaths `json:"targets,omitempty"`

	// Settings overrides the required and recommended setting sets.
	Settings SettingOverrides `json:"settings,omitempty"`

	// UnloadSet overrides the unit names retired before reload.
	UnloadSet []string `json:"unload_set,omitempty"`

	// Timing overrides the settle windows between fix steps.
	Timing *Timing `json:"timing,omitempty"`

	// BuildSteps is an optional Starlark script that computes a custom
	// step plan. When empty the canonical sequence is used.
	BuildSteps string `json:"build_steps,omitempty"`
}

// TargetPaths overrides where the managed runtime keeps its files.
type TargetPaths struct {
	// Config is the runtime configuration file path.
	Config string `json:"config,omitempty"`

	// Manifest is the unit manifest file path.
	Manifest string `json:"manifest,omitempty"`

	// State is the orchestrator state database path.
	State string `json:"state,omitempty"`
}

// SettingOverrides adjusts the setting sets the fix enforces. A
// non-empty map replaces the corresponding catalog set wholesale;
// there is no per-key merging.
type SettingOverrides struct {
	// Required replaces the required setting set.
	Required map[string]string `json:"required,omitempty"`

	// Recommended replaces the recommended setting set.
	Recommended map[string]string `json:"recommended,omitempty"`
}

// Timing overrides the settle windows between fix steps, in
// milliseconds. Zero fields keep the stock window.
type Timing struct {
	// DisableSettleMS is the pause after disabling the loader pair.
	DisableSettleMS int `json:"disable_settle_ms,omitempty" validate:"min=0,max=60000"`

	// SettingSettleMS is the pause after each re-enable write.
	SettingSettleMS int `json:"setting_settle_ms,omitempty" validate:"min=0,max=60000"`

	// UnloadSettleMS is the pause after retiring the unload set.
	UnloadSettleMS int `json:"unload_settle_ms,omitempty" validate:"min=0,max=60000"`

	// ReloadSettleMS is the pause after the manifest reload.
	ReloadSettleMS int `json:"reload_settle_ms,omitempty" validate:"min=0,max=60000"`
}

// ParsedProfile is the result of parsing profile sources.
type ParsedProfile struct {
	// Profile is the decoded profile.
	Profile Profile `json:"profile"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the profile was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g. "profile.timing").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

// StarlarkResult represents the result of Starlark execution.
type StarlarkResult struct {
	// Output is the output data from the script's globals.
	Output map[string]interface{} `json:"output,omitempty"`

	// ExecutionTime is how long the script took to execute.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error is any error that occurred.
	Error string `json:"error,omitempty"`
}

// ConfigPath returns the profile's config path, or the catalog default.
func (p *Profile) ConfigPath() string {
	if p.Targets.Config != "" {
		return p.Targets.Config
	}
	return catalog.DefaultConfigPath
}

// ManifestPath returns the profile's manifest path, or the catalog default.
func (p *Profile) ManifestPath() string {
	if p.Targets.Manifest != "" {
		return p.Targets.Manifest
	}
	return catalog.DefaultManifestPath
}

// StatePath returns the profile's state database path, or the catalog default.
func (p *Profile) StatePath() string {
	if p.Targets.State != "" {
		return p.Targets.State
	}
	return catalog.DefaultStatePath
}

// RequiredSettings returns the profile's required settings, or the
// catalog set when the profile does not override them. Overrides are
// returned in sorted key order so downstream writes stay deterministic.
func (p *Profile) RequiredSettings() []catalog.Setting {
	if len(p.Settings.Required) == 0 {
		return catalog.RequiredSettings()
	}
	return settingsFromMap(p.Settings.Required)
}

// RecommendedSettings returns the profile's recommended settings, or
// the catalog preferences when the profile does not override them.
func (p *Profile) RecommendedSettings() []catalog.Setting {
	if len(p.Settings.Recommended) == 0 {
		prefs := catalog.Preferences()
		settings := make([]catalog.Setting, len(prefs))
		for i, pref := range prefs {
			settings[i] = catalog.Setting{Key: pref.Key, Value: pref.Value}
		}
		return settings
	}
	return settingsFromMap(p.Settings.Recommended)
}

// Units returns the profile's unload set, or the catalog default.
func (p *Profile) Units() []string {
	if len(p.UnloadSet) == 0 {
		return catalog.DefaultUnloadSet()
	}
	return p.UnloadSet
}

// settingsFromMap converts an override map to a sorted setting slice.
func settingsFromMap(m map[string]string) []catalog.Setting {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	settings := make([]catalog.Setting, len(keys))
	for i, key := range keys {
		settings[i] = catalog.Setting{Key: key, Value: m[key]}
	}
	return settings
}
