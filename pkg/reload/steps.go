package reload

import (
	"fmt"
	"strings"
	"time"

	"github.com/replug/replug/pkg/catalog"
)

// Step is one action in a reload sequence. The set is closed: the
// sequencer drives exactly these four step kinds and nothing else.
type Step interface {
	Describe() string
	sealed()
}

// SetSetting upserts one key=value pair in the managed config file.
type SetSetting struct {
	Key   string
	Value string
}

func (SetSetting) sealed() {}

// Describe implements Step.
func (s SetSetting) Describe() string {
	return fmt.Sprintf("set %s=%s", s.Key, s.Value)
}

// Delay suspends the sequence. Nothing else runs during the window.
type Delay struct {
	Duration time.Duration
}

func (Delay) sealed() {}

// Describe implements Step.
func (d Delay) Describe() string {
	return fmt.Sprintf("delay %s", d.Duration)
}

// UnloadSet unloads the named units if they are loaded. Inherently
// best-effort: a unit may already be gone.
type UnloadSet struct {
	Names []string
}

func (UnloadSet) sealed() {}

// Describe implements Step.
func (u UnloadSet) Describe() string {
	return fmt.Sprintf("unload [%s]", strings.Join(u.Names, " "))
}

// ReloadFromManifest loads every unit path listed in the manifest file,
// in file order.
type ReloadFromManifest struct {
	Path string
}

func (ReloadFromManifest) sealed() {}

// Describe implements Step.
func (r ReloadFromManifest) Describe() string {
	return fmt.Sprintf("reload from %s", r.Path)
}

// Settle windows between canonical fix steps. The runtime polls its
// config, so each transition needs time to be observed before the next
// one lands.
const (
	disableSettle = 100 * time.Millisecond
	settingSettle = 50 * time.Millisecond
	unloadSettle  = 200 * time.Millisecond
	reloadSettle  = 200 * time.Millisecond
)

// Timings holds the settle windows used between canonical fix steps.
// The zero value means no waiting at all; start from DefaultTimings
// when only some windows need adjusting.
type Timings struct {
	DisableSettle time.Duration
	SettingSettle time.Duration
	UnloadSettle  time.Duration
	ReloadSettle  time.Duration
}

// DefaultTimings returns the settle windows of the stock fix sequence.
func DefaultTimings() Timings {
	return Timings{
		DisableSettle: disableSettle,
		SettingSettle: settingSettle,
		UnloadSettle:  unloadSettle,
		ReloadSettle:  reloadSettle,
	}
}

// FixSequence builds the canonical reactivation sequence: disable the
// loader and patch engine, re-enable them, retire the stale unit set,
// then reload from the manifest. The disable-before-enable-before-reload
// ordering forces the runtime to see a transition instead of a no-op;
// reordering these steps turns the fix into a silent non-event.
func FixSequence(manifestPath string, unload []string) []Step {
	return FixSequenceWithTimings(manifestPath, unload, DefaultTimings())
}

// FixSequenceWithTimings is FixSequence with caller-supplied settle
// windows. Site profiles stretch the windows for slow storage; the
// step order itself is not tunable.
func FixSequenceWithTimings(manifestPath string, unload []string, t Timings) []Step {
	return []Step{
		SetSetting{Key: catalog.KeyLoaderEnabled, Value: "0"},
		SetSetting{Key: catalog.KeyPatchEngineEnabled, Value: "0"},
		Delay{Duration: t.DisableSettle},
		SetSetting{Key: catalog.KeyLoaderEnabled, Value: "1"},
		Delay{Duration: t.SettingSettle},
		SetSetting{Key: catalog.KeyPatchEngineEnabled, Value: "1"},
		Delay{Duration: t.SettingSettle},
		UnloadSet{Names: unload},
		Delay{Duration: t.UnloadSettle},
		ReloadFromManifest{Path: manifestPath},
		Delay{Duration: t.ReloadSettle},
	}
}
