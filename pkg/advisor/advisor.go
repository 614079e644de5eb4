// Package advisor builds, validates, and tunes plugin runtime
// configuration documents. It is pure document logic: reading and
// writing the files belongs to the caller.
package advisor

import (
	"fmt"
	"time"

	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/configdoc"
	"github.com/replug/replug/pkg/telemetry"
)

// Recommendation suggests one optional setting change.
type Recommendation struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// ValidationReport is the outcome of validating one configuration
// document. Score starts at 100 and loses 20 points per issue, floored
// at zero; a document validates clean iff it scores 100.
type ValidationReport struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
	Score  int      `json:"score"`
}

// Advisor inspects and repairs runtime configuration documents against
// the required and preferred settings in the catalog.
type Advisor struct {
	log      *telemetry.Logger
	now      func() time.Time
	required []catalog.Setting
}

// New creates an advisor.
func New(log *telemetry.Logger) *Advisor {
	return &Advisor{
		log: log.NewComponentLogger("advisor"),
		now: time.Now,
	}
}

// WithRequired replaces the required setting set and returns the advisor.
// Site profiles install their override here; an empty set keeps the
// catalog defaults.
func (a *Advisor) WithRequired(settings []catalog.Setting) *Advisor {
	a.required = settings
	return a
}

func (a *Advisor) requiredSettings() []catalog.Setting {
	if len(a.required) == 0 {
		return catalog.RequiredSettings()
	}
	return a.required
}

// BuildCanonical emits the known-good configuration: a [Settings]
// section carrying every required setting, followed by a generation
// stamp. The canonical document always validates clean.
func (a *Advisor) BuildCanonical() *configdoc.Document {
	doc := configdoc.NewDocument()
	doc.AppendSection(catalog.SettingsSection)
	for _, setting := range a.requiredSettings() {
		doc.AppendPair(setting.Key, setting.Value)
	}
	doc.AppendBlank()
	doc.AppendComment("canonical settings generated by replug")
	doc.AppendComment("generated_at: " + a.now().UTC().Format(time.RFC3339))
	return doc
}

// Validate checks a document for the required settings and the absence
// of the safe-mode blocker.
func (a *Advisor) Validate(doc *configdoc.Document) *ValidationReport {
	var issues []string

	for _, setting := range a.requiredSettings() {
		if !doc.Has(setting.Key, setting.Value) {
			issues = append(issues, fmt.Sprintf("required setting %s=%s missing", setting.Key, setting.Value))
		}
	}

	if doc.Has(catalog.KeySafeMode, catalog.SafeModeBlockedValue) {
		issues = append(issues, fmt.Sprintf("%s=%s blocks unit loading", catalog.KeySafeMode, catalog.SafeModeBlockedValue))
	}

	score := 100 - 20*len(issues)
	if score < 0 {
		score = 0
	}

	report := &ValidationReport{
		Valid:  len(issues) == 0,
		Issues: issues,
		Score:  score,
	}

	a.log.WithField("score", report.Score).Debugf("validated configuration, %d issues", len(issues))
	return report
}

// Recommend compares the document against the preferred optional
// settings, suggesting a change wherever it disagrees or is silent.
func (a *Advisor) Recommend(doc *configdoc.Document) []Recommendation {
	var recs []Recommendation
	for _, pref := range catalog.Preferences() {
		if value, ok := doc.Get(pref.Key); ok && value == pref.Value {
			continue
		}
		recs = append(recs, Recommendation{
			Key:    pref.Key,
			Value:  pref.Value,
			Reason: pref.Reason,
		})
	}
	return recs
}

// ApplyRecommendations upserts each recommended setting into the
// document, placing new pairs under the [Settings] section and creating
// that section when the document lacks one. The document is modified in
// place and returned.
func (a *Advisor) ApplyRecommendations(doc *configdoc.Document, recs []Recommendation) *configdoc.Document {
	for _, rec := range recs {
		doc.SetInSection(catalog.SettingsSection, rec.Key, rec.Value)
		a.log.Debugf("applied recommendation %s=%s", rec.Key, rec.Value)
	}
	return doc
}
