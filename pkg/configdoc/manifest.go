package configdoc

import (
	"strings"
)

// DefaultUnitSuffixes lists the file suffixes recognized as loadable plugin
// units inside a manifest. A manifest line must contain one of these to be
// treated as a unit path.
var DefaultUnitSuffixes = []string{".prx", ".suprx", ".skprx", ".wasm"}

// Manifest is the ordered list of unit paths extracted from a manifest
// document. Section headers, comments, and blank lines are ignorable
// grouping; only qualifying path lines are retained, in file order.
type Manifest struct {
	Paths []string
}

// ParseManifest extracts unit paths using the default suffix set.
func ParseManifest(data []byte) *Manifest {
	return ParseManifestSuffixes(data, DefaultUnitSuffixes)
}

// ParseManifestSuffixes extracts unit paths from manifest bytes. A line
// qualifies iff it is non-blank after trimming, does not start with '[' or
// '#', and contains one of the given suffixes. Paths are returned trimmed,
// in file order.
func ParseManifestSuffixes(data []byte, suffixes []string) *Manifest {
	m := &Manifest{}
	for _, raw := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !containsSuffix(trimmed, suffixes) {
			continue
		}
		m.Paths = append(m.Paths, trimmed)
	}
	return m
}

// containsSuffix reports whether the line mentions any recognized suffix.
// This is deliberately a containment test rather than a HasSuffix test: real
// manifests carry arguments and flags after the path on the same line.
func containsSuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.Contains(s, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of unit paths in the manifest.
func (m *Manifest) Len() int {
	return len(m.Paths)
}
