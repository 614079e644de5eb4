package reload

import (
	"reflect"
	"testing"
	"time"

	"github.com/replug/replug/pkg/catalog"
)

func TestStepDescriptions(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{
			name: "SetSetting",
			step: SetSetting{Key: "PLUGIN_LOADER_ENABLED", Value: "1"},
			want: "set PLUGIN_LOADER_ENABLED=1",
		},
		{
			name: "Delay",
			step: Delay{Duration: 100 * time.Millisecond},
			want: "delay 100ms",
		},
		{
			name: "UnloadSet",
			step: UnloadSet{Names: []string{"patch-engine", "overlay-menu"}},
			want: "unload [patch-engine overlay-menu]",
		},
		{
			name: "ReloadFromManifest",
			step: ReloadFromManifest{Path: "ux0:plugins/manifest.txt"},
			want: "reload from ux0:plugins/manifest.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.step.Describe(); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFixSequence(t *testing.T) {
	manifest := "ux0:plugins/manifest.txt"
	unload := []string{"patch-engine", "overlay-menu"}

	got := FixSequence(manifest, unload)

	// The disable/enable transitions and the unload-before-reload order
	// are what make the runtime actually re-observe its configuration.
	want := []Step{
		SetSetting{Key: catalog.KeyLoaderEnabled, Value: "0"},
		SetSetting{Key: catalog.KeyPatchEngineEnabled, Value: "0"},
		Delay{Duration: 100 * time.Millisecond},
		SetSetting{Key: catalog.KeyLoaderEnabled, Value: "1"},
		Delay{Duration: 50 * time.Millisecond},
		SetSetting{Key: catalog.KeyPatchEngineEnabled, Value: "1"},
		Delay{Duration: 50 * time.Millisecond},
		UnloadSet{Names: unload},
		Delay{Duration: 200 * time.Millisecond},
		ReloadFromManifest{Path: manifest},
		Delay{Duration: 200 * time.Millisecond},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("FixSequence() mismatch\ngot:  %v\nwant: %v", got, want)
	}
}

func TestFixSequenceDisablesBeforeEnabling(t *testing.T) {
	steps := FixSequence("manifest.txt", nil)

	seen := make(map[string][]string)
	for _, step := range steps {
		if set, ok := step.(SetSetting); ok {
			seen[set.Key] = append(seen[set.Key], set.Value)
		}
	}

	for _, key := range []string{catalog.KeyLoaderEnabled, catalog.KeyPatchEngineEnabled} {
		values := seen[key]
		if len(values) != 2 || values[0] != "0" || values[1] != "1" {
			t.Errorf("Setting %s transitions = %v, want [0 1]", key, values)
		}
	}
}
