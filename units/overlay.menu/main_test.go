package main

import (
	"strings"
	"testing"
)

func TestMenuNavigationWraps(t *testing.T) {
	menu := NewMenu("test")
	menu.Add("a", "act-a")
	menu.Add("b", "act-b")
	menu.Add("c", "act-c")

	if got := menu.Select(); got != "act-a" {
		t.Errorf("initial selection = %q, want act-a", got)
	}

	menu.Next()
	menu.Next()
	menu.Next()
	if got := menu.Select(); got != "act-a" {
		t.Errorf("selection after full cycle = %q, want act-a", got)
	}

	menu.Prev()
	if got := menu.Select(); got != "act-c" {
		t.Errorf("selection after wrap up = %q, want act-c", got)
	}
}

func TestEmptyMenuNavigation(t *testing.T) {
	menu := NewMenu("empty")
	menu.Next()
	menu.Prev()
	if got := menu.Select(); got != "" {
		t.Errorf("empty menu selection = %q, want empty", got)
	}
}

func TestParseItems(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want []MenuItem
	}{
		{
			name: "empty spec",
			spec: "",
			want: nil,
		},
		{
			name: "labels with actions",
			spec: "Reload units:reapply,Show status:report",
			want: []MenuItem{
				{Label: "Reload units", Action: "reapply"},
				{Label: "Show status", Action: "report"},
			},
		},
		{
			name: "label without action reuses lowercased label",
			spec: "Close",
			want: []MenuItem{{Label: "Close", Action: "close"}},
		},
		{
			name: "blank entries dropped",
			spec: " , Reload:reapply ,, ",
			want: []MenuItem{{Label: "Reload", Action: "reapply"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseItems(tt.spec)
			if len(got) != len(tt.want) {
				t.Fatalf("parseItems(%q) = %v, want %v", tt.spec, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("item %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRenderMarksSelection(t *testing.T) {
	menu := NewMenu("plugind maintenance")
	menu.Add("Reload units", "reapply")
	menu.Add("Close overlay", "close")
	menu.Next()

	rendered := menu.Render()
	if !strings.Contains(rendered, "== plugind maintenance ==") {
		t.Errorf("title missing from render:\n%s", rendered)
	}
	if !strings.Contains(rendered, "  Reload units\n") {
		t.Errorf("unselected row marked:\n%s", rendered)
	}
	if !strings.Contains(rendered, "> Close overlay\n") {
		t.Errorf("selected row not marked:\n%s", rendered)
	}
}

func TestMenuFromEnvDefaults(t *testing.T) {
	t.Setenv("OVERLAY_MENU_TITLE", "")
	t.Setenv("OVERLAY_MENU_ITEMS", "")

	menu := menuFromEnv()
	if menu.Title != "plugind maintenance" {
		t.Errorf("default title = %q", menu.Title)
	}
	if len(menu.Items) != 3 {
		t.Fatalf("default menu has %d items, want 3", len(menu.Items))
	}
	if menu.Items[0].Action != "reapply" {
		t.Errorf("first default action = %q, want reapply", menu.Items[0].Action)
	}
}

func TestMenuFromEnvOverrides(t *testing.T) {
	t.Setenv("OVERLAY_MENU_TITLE", "kiosk")
	t.Setenv("OVERLAY_MENU_ITEMS", "Fix now:fix")

	menu := menuFromEnv()
	if menu.Title != "kiosk" {
		t.Errorf("title = %q, want kiosk", menu.Title)
	}
	if len(menu.Items) != 1 || menu.Items[0].Action != "fix" {
		t.Errorf("items = %+v", menu.Items)
	}
}
