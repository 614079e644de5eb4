package commands

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"
)

// timePrecision rounds durations in human-readable output.
const timePrecision = time.Millisecond

// timestampLayout formats timestamps in human-readable output.
const timestampLayout = "2006-01-02 15:04:05"

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// indentBlock indents every line of a block by two spaces.
func indentBlock(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

// sortedKeys returns the map keys in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
