package configdoc

import (
	"strings"
)

// lineKind classifies a single document line.
type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineSection
	linePair
	lineOther
)

// line is one document line. raw is stored without its terminating newline
// and is written back verbatim for content the document did not modify.
type line struct {
	raw  string
	kind lineKind

	// key/value are populated for linePair, trimmed of surrounding space.
	key   string
	value string

	// name is populated for lineSection.
	name string
}

// Document is an ordered sequence of configuration lines. The zero value is
// an empty document; use Parse or NewDocument to construct one.
type Document struct {
	lines []line
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{}
}

// Parse builds a document from raw bytes. Every line is preserved, including
// ones the parser does not understand, so that serialization round-trips
// unchanged content byte-for-byte. A missing trailing newline is tolerated;
// the writer always terminates the last line.
func Parse(data []byte) *Document {
	doc := &Document{}
	if len(data) == 0 {
		return doc
	}

	raw := strings.Split(string(data), "\n")
	// A trailing newline yields one empty trailing element; drop it so the
	// writer does not accumulate blank lines across cycles.
	if raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}

	doc.lines = make([]line, 0, len(raw))
	for _, r := range raw {
		doc.lines = append(doc.lines, classify(r))
	}
	return doc
}

// classify parses a single raw line into its kind and fields.
func classify(raw string) line {
	trimmed := strings.TrimSpace(raw)

	switch {
	case trimmed == "":
		return line{raw: raw, kind: lineBlank}
	case strings.HasPrefix(trimmed, "#"):
		return line{raw: raw, kind: lineComment}
	case strings.HasPrefix(trimmed, "["):
		name := strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
		return line{raw: raw, kind: lineSection, name: name}
	}

	if eq := strings.Index(raw, "="); eq > 0 {
		key := strings.TrimSpace(raw[:eq])
		if key != "" {
			return line{
				raw:   raw,
				kind:  linePair,
				key:   key,
				value: strings.TrimSpace(raw[eq+1:]),
			}
		}
	}

	return line{raw: raw, kind: lineOther}
}

// pairLine builds a normalized key=value line.
func pairLine(key, value string) line {
	return line{
		raw:   key + "=" + value,
		kind:  linePair,
		key:   key,
		value: value,
	}
}

// Serialize writes the document back out. Each line is terminated with a
// newline; unchanged lines are emitted exactly as parsed.
func (d *Document) Serialize() []byte {
	var b strings.Builder
	for _, ln := range d.lines {
		b.WriteString(ln.raw)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Len returns the number of lines in the document.
func (d *Document) Len() int {
	return len(d.lines)
}

// Get returns the value for key. When a document carries duplicate
// definitions the last one wins, matching how the runtime reads its
// configuration.
func (d *Document) Get(key string) (string, bool) {
	value, found := "", false
	for _, ln := range d.lines {
		if ln.kind == linePair && ln.key == key {
			value, found = ln.value, true
		}
	}
	return value, found
}

// Has reports whether key is present with exactly the given value.
func (d *Document) Has(key, value string) bool {
	v, ok := d.Get(key)
	return ok && v == value
}

// Keys returns every distinct key in document order of first definition.
func (d *Document) Keys() []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0, len(d.lines))
	for _, ln := range d.lines {
		if ln.kind != linePair {
			continue
		}
		if _, dup := seen[ln.key]; dup {
			continue
		}
		seen[ln.key] = struct{}{}
		keys = append(keys, ln.key)
	}
	return keys
}

// Set upserts a key=value pair. An existing definition is replaced in place,
// keeping its position; without one the pair is appended at the end of the
// document. Keys match on the exact token before '=', never by substring, so
// a key that prefixes another key cannot be clobbered. Duplicate definitions
// collapse onto the first occurrence.
func (d *Document) Set(key, value string) {
	replaced := false
	kept := d.lines[:0]
	for _, ln := range d.lines {
		if ln.kind == linePair && ln.key == key {
			if replaced {
				continue
			}
			ln = pairLine(key, value)
			replaced = true
		}
		kept = append(kept, ln)
	}
	d.lines = kept

	if !replaced {
		d.lines = append(d.lines, pairLine(key, value))
	}
}

// SetInSection upserts a pair, preferring placement inside the named
// section. An existing definition anywhere in the document is replaced in
// place; otherwise the pair is inserted directly under the section header,
// creating the section at the end of the document when it does not exist.
func (d *Document) SetInSection(section, key, value string) {
	if _, exists := d.Get(key); exists {
		d.Set(key, value)
		return
	}

	for i, ln := range d.lines {
		if ln.kind == lineSection && ln.name == section {
			d.lines = append(d.lines, line{})
			copy(d.lines[i+2:], d.lines[i+1:])
			d.lines[i+1] = pairLine(key, value)
			return
		}
	}

	if len(d.lines) > 0 {
		d.AppendBlank()
	}
	d.AppendSection(section)
	d.lines = append(d.lines, pairLine(key, value))
}

// AppendSection appends a [name] header line.
func (d *Document) AppendSection(name string) {
	d.lines = append(d.lines, line{
		raw:  "[" + name + "]",
		kind: lineSection,
		name: name,
	})
}

// AppendPair appends a key=value line without upsert semantics. Intended for
// building documents from scratch; prefer Set when mutating parsed content.
func (d *Document) AppendPair(key, value string) {
	d.lines = append(d.lines, pairLine(key, value))
}

// AppendComment appends a comment line. The leading # is added when missing.
func (d *Document) AppendComment(text string) {
	raw := text
	if !strings.HasPrefix(raw, "#") {
		raw = "# " + raw
	}
	d.lines = append(d.lines, line{raw: raw, kind: lineComment})
}

// AppendBlank appends an empty line.
func (d *Document) AppendBlank() {
	d.lines = append(d.lines, line{kind: lineBlank})
}
