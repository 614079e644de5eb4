package catalog

import "testing"

func TestIsProblematicTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"exact entry", "Neon Drift", true},
		{"case insensitive", "neon drift", true},
		{"entry inside longer title", "Neon Drift: Reloaded (EU v1.02)", true},
		{"unknown title", "Quiet Meadow", false},
		{"empty title", "", false},
		{"partial word only", "Neon", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProblematicTitle(tt.title); got != tt.want {
				t.Errorf("IsProblematicTitle(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestProblematicTitlesReturnsCopy(t *testing.T) {
	titles := ProblematicTitles()
	if len(titles) == 0 {
		t.Fatal("Expected non-empty catalog")
	}
	titles[0] = "mutated"
	if ProblematicTitles()[0] == "mutated" {
		t.Error("Catalog must not be mutable through the returned slice")
	}
}

func TestRequiredSettingsOrder(t *testing.T) {
	settings := RequiredSettings()
	if len(settings) != 3 {
		t.Fatalf("Expected 3 required settings, got %d", len(settings))
	}
	if settings[0].Key != KeyLoaderEnabled {
		t.Errorf("Expected loader setting first, got %s", settings[0].Key)
	}
	for _, s := range settings {
		if s.Value != "1" {
			t.Errorf("Required setting %s should be enabled, got %q", s.Key, s.Value)
		}
	}
}
