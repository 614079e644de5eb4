package configdoc

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseEmpty(t *testing.T) {
	doc := Parse(nil)
	if doc.Len() != 0 {
		t.Errorf("Expected empty document, got %d lines", doc.Len())
	}
	if len(doc.Serialize()) != 0 {
		t.Errorf("Expected empty serialization, got %q", doc.Serialize())
	}
}

func TestRoundTripStable(t *testing.T) {
	input := "[Settings]\nPLUGIN_LOADER_ENABLED=1\n\n# trailing comment\nweird line without pair\n"

	doc := Parse([]byte(input))
	once := doc.Serialize()
	twice := Parse(once).Serialize()

	if !bytes.Equal(once, []byte(input)) {
		t.Errorf("First serialization changed content:\n%q\nwant:\n%q", once, input)
	}
	if !bytes.Equal(once, twice) {
		t.Errorf("Round trip is not stable:\n%q\nvs:\n%q", once, twice)
	}
}

func TestRoundTripAddsFinalNewline(t *testing.T) {
	doc := Parse([]byte("a=1\nb=2"))
	out := doc.Serialize()
	if string(out) != "a=1\nb=2\n" {
		t.Errorf("Expected terminated output, got %q", out)
	}
	// A second cycle must be byte-identical.
	if again := Parse(out).Serialize(); !bytes.Equal(out, again) {
		t.Errorf("Second cycle changed content: %q vs %q", out, again)
	}
}

func TestSetIdempotent(t *testing.T) {
	doc := Parse([]byte("[Settings]\na=0\n"))

	doc.Set("a", "1")
	once := doc.Serialize()
	doc.Set("a", "1")
	twice := doc.Serialize()

	if !bytes.Equal(once, twice) {
		t.Errorf("Applying the same setting twice changed the document:\n%q\nvs:\n%q", once, twice)
	}
}

func TestSetReplacesInPlace(t *testing.T) {
	doc := Parse([]byte("[Settings]\na=0\nb=0\n"))
	doc.Set("a", "1")

	want := "[Settings]\na=1\nb=0\n"
	if got := string(doc.Serialize()); got != want {
		t.Errorf("Expected in-place replacement:\ngot  %q\nwant %q", got, want)
	}
}

func TestSetAppendsWhenAbsent(t *testing.T) {
	doc := Parse([]byte("[Settings]\na=0\n"))
	doc.Set("new_key", "5")

	want := "[Settings]\na=0\nnew_key=5\n"
	if got := string(doc.Serialize()); got != want {
		t.Errorf("Expected append at end:\ngot  %q\nwant %q", got, want)
	}
}

func TestSetLastValueWins(t *testing.T) {
	doc := NewDocument()
	doc.Set("k", "first")
	doc.Set("k", "second")

	count := 0
	for _, ln := range strings.Split(string(doc.Serialize()), "\n") {
		if strings.HasPrefix(ln, "k=") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one line for key, got %d", count)
	}
	if v, _ := doc.Get("k"); v != "second" {
		t.Errorf("Expected value 'second', got %q", v)
	}
}

func TestSetCollapsesDuplicates(t *testing.T) {
	doc := Parse([]byte("k=1\nother=x\nk=2\n"))
	doc.Set("k", "3")

	want := "k=3\nother=x\n"
	if got := string(doc.Serialize()); got != want {
		t.Errorf("Expected duplicates collapsed onto first occurrence:\ngot  %q\nwant %q", got, want)
	}
}

func TestSetExactKeyMatch(t *testing.T) {
	// A key that prefixes a longer key must not clobber it.
	doc := Parse([]byte("enable=0\nenable_extra=0\n"))
	doc.Set("enable", "1")

	if v, _ := doc.Get("enable_extra"); v != "0" {
		t.Errorf("Longer key was clobbered, got enable_extra=%q", v)
	}
	if v, _ := doc.Get("enable"); v != "1" {
		t.Errorf("Expected enable=1, got %q", v)
	}
}

func TestGetLastOccurrenceWins(t *testing.T) {
	doc := Parse([]byte("k=1\nk=2\n"))
	if v, ok := doc.Get("k"); !ok || v != "2" {
		t.Errorf("Expected last occurrence 2, got %q (found=%v)", v, ok)
	}
}

func TestGetTrimsWhitespace(t *testing.T) {
	doc := Parse([]byte("  spaced  =  value  \n"))
	if v, ok := doc.Get("spaced"); !ok || v != "value" {
		t.Errorf("Expected trimmed lookup to find 'value', got %q (found=%v)", v, ok)
	}
}

func TestPreservesUnknownContent(t *testing.T) {
	input := "# header comment\n[Custom]\nunknown_key=kept\nnot a pair at all\n\n"
	doc := Parse([]byte(input))
	doc.Set("added", "1")

	got := string(doc.Serialize())
	if !strings.HasPrefix(got, input) {
		t.Errorf("Unknown content was altered:\ngot  %q\nwant prefix %q", got, input)
	}
	if !strings.HasSuffix(got, "added=1\n") {
		t.Errorf("Expected new pair appended, got %q", got)
	}
}

func TestSetInSection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "inserts under existing section",
			input: "[Settings]\nexisting=1\n",
			want:  "[Settings]\nk=v\nexisting=1\n",
		},
		{
			name:  "creates missing section",
			input: "other=1\n",
			want:  "other=1\n\n[Settings]\nk=v\n",
		},
		{
			name:  "creates section in empty document",
			input: "",
			want:  "[Settings]\nk=v\n",
		},
		{
			name:  "replaces existing key in place",
			input: "[Settings]\nk=old\ntrailer=1\n",
			want:  "[Settings]\nk=v\ntrailer=1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse([]byte(tt.input))
			doc.SetInSection("Settings", "k", "v")
			if got := string(doc.Serialize()); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	doc := Parse([]byte("b=2\na=1\nb=3\n"))
	keys := doc.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("Expected [b a], got %v", keys)
	}
}

func TestBuilderProducesParseableDocument(t *testing.T) {
	doc := NewDocument()
	doc.AppendSection("Settings")
	doc.AppendPair("a", "1")
	doc.AppendBlank()
	doc.AppendComment("generated block")

	out := doc.Serialize()
	want := "[Settings]\na=1\n\n# generated block\n"
	if string(out) != want {
		t.Errorf("got  %q\nwant %q", out, want)
	}
	if again := Parse(out).Serialize(); !bytes.Equal(out, again) {
		t.Errorf("Builder output does not round-trip: %q vs %q", out, again)
	}
}
