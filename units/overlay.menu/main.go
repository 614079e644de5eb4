// Package main implements the overlay.menu unit for the plugind runtime.
// The unit compiles to wasm32-wasi and is instantiated by the unit
// registry; its start function draws the overlay menu once and returns,
// leaving the instance resident until the registry unloads it.
//
// Build with:
//
//	GOOS=wasip1 GOARCH=wasm go build -o overlay.menu.wasm .
package main

import (
	"fmt"
	"os"
	"strings"
)

// MenuItem is one selectable row in the overlay.
type MenuItem struct {
	Label  string
	Action string
}

// Menu is the overlay menu model. Selection wraps at both ends.
type Menu struct {
	Title    string
	Items    []MenuItem
	Selected int
}

// NewMenu creates an empty menu.
func NewMenu(title string) *Menu {
	return &Menu{Title: title}
}

// Add appends a row to the menu.
func (m *Menu) Add(label, action string) {
	m.Items = append(m.Items, MenuItem{Label: label, Action: action})
}

// Next moves the selection down, wrapping to the top.
func (m *Menu) Next() {
	if len(m.Items) == 0 {
		return
	}
	m.Selected = (m.Selected + 1) % len(m.Items)
}

// Prev moves the selection up, wrapping to the bottom.
func (m *Menu) Prev() {
	if len(m.Items) == 0 {
		return
	}
	m.Selected = (m.Selected - 1 + len(m.Items)) % len(m.Items)
}

// Select returns the action behind the current selection.
func (m *Menu) Select() string {
	if m.Selected < 0 || m.Selected >= len(m.Items) {
		return ""
	}
	return m.Items[m.Selected].Action
}

// Render draws the menu as text, marking the selected row.
func (m *Menu) Render() string {
	var b strings.Builder
	b.WriteString("== " + m.Title + " ==\n")
	for i, item := range m.Items {
		marker := "  "
		if i == m.Selected {
			marker = "> "
		}
		b.WriteString(marker + item.Label + "\n")
	}
	return b.String()
}

// menuFromEnv builds the menu from the unit environment. Without
// overrides the menu carries the stock maintenance actions.
func menuFromEnv() *Menu {
	title := os.Getenv("OVERLAY_MENU_TITLE")
	if title == "" {
		title = "plugind maintenance"
	}

	menu := NewMenu(title)
	items := parseItems(os.Getenv("OVERLAY_MENU_ITEMS"))
	if len(items) == 0 {
		menu.Add("Reload units", "reapply")
		menu.Add("Show status", "report")
		menu.Add("Close overlay", "close")
		return menu
	}

	menu.Items = items
	return menu
}

// parseItems decodes a "label:action,label:action" item list.
// Entries without an action reuse the label, lowercased; empty entries
// are dropped.
func parseItems(spec string) []MenuItem {
	if spec == "" {
		return nil
	}

	var items []MenuItem
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		label, action, ok := strings.Cut(entry, ":")
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if !ok || strings.TrimSpace(action) == "" {
			action = strings.ToLower(label)
		}
		items = append(items, MenuItem{Label: label, Action: strings.TrimSpace(action)})
	}
	return items
}

func main() {
	menu := menuFromEnv()
	fmt.Print(menu.Render())
}
