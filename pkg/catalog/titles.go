package catalog

import "strings"

// problematicTitles lists titles known to misbehave while the patch engine
// is active. Entries are matched case-insensitively as substrings, so a
// versioned or region-suffixed title still matches its base entry.
var problematicTitles = []string{
	"Aurora Chronicles",
	"Neon Drift",
	"Starfall Tactics",
	"Iron Bastion",
	"Mistwood Saga",
	"Velocity Zero",
	"Crimson Meridian",
	"Hollow Satellite",
}

// ProblematicTitles returns a copy of the known problematic-title list.
func ProblematicTitles() []string {
	return append([]string(nil), problematicTitles...)
}

// IsProblematicTitle reports whether the given title mentions any entry of
// the problematic-title catalog. Matching is a case-insensitive substring
// test; an empty title never matches.
func IsProblematicTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, entry := range problematicTitles {
		if strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
