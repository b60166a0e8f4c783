package dedupe

import (
	"testing"

	"newsroll/internal/core"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name   string
		input  []core.RawItem
		titles []string
	}{
		{
			name: "same title different urls are distinct",
			input: []core.RawItem{
				{Title: "Model X Launch", URL: "https://a.example/x"},
				{Title: "Model X Launch", URL: "https://b.example/x"},
			},
			titles: []string{"Model X Launch", "Model X Launch"},
		},
		{
			name: "same url keeps first",
			input: []core.RawItem{
				{Title: "first", URL: "https://a.example/x"},
				{Title: "second", URL: "https://a.example/x"},
			},
			titles: []string{"first"},
		},
		{
			name: "title is the key when url missing",
			input: []core.RawItem{
				{Title: "Hello  world"},
				{Title: " Hello world "},
				{Title: "Other"},
			},
			titles: []string{"Hello  world", "Other"},
		},
		{
			name: "items without url and title are dropped",
			input: []core.RawItem{
				{Source: "x"},
				{Title: "kept"},
			},
			titles: []string{"kept"},
		},
		{
			name:   "empty input",
			input:  nil,
			titles: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.input)
			if len(got) != len(tt.titles) {
				t.Fatalf("got %d items, want %d", len(got), len(tt.titles))
			}
			for i, item := range got {
				if item.Title != tt.titles[i] {
					t.Errorf("item %d title = %q, want %q", i, item.Title, tt.titles[i])
				}
			}
		})
	}
}

func TestDedupeAtMostOnePerKey(t *testing.T) {
	input := []core.RawItem{
		{URL: "u1", Title: "a"},
		{URL: "u2", Title: "b"},
		{URL: " u1", Title: "c"},
		{Title: "u2"},
		{URL: "u3"},
		{URL: "u1"},
	}
	seen := map[string]bool{}
	for _, item := range Dedupe(input) {
		fp := Fingerprint(Key(item))
		if seen[fp] {
			t.Fatalf("duplicate fingerprint for %+v", item)
		}
		seen[fp] = true
	}
	// u1, u2, u3: " u1" normalizes to u1 and the title-only "u2" collides with url u2.
	if len(seen) != 3 {
		t.Errorf("got %d distinct keys, want 3", len(seen))
	}
}

func TestFingerprintIgnoresWhitespace(t *testing.T) {
	if Fingerprint("a  b\n") != Fingerprint("a b") {
		t.Error("fingerprint should not depend on incidental whitespace")
	}
	if Fingerprint("a b") == Fingerprint("ab") {
		t.Error("fingerprint should distinguish different text")
	}
	if len(Fingerprint("x")) != 64 {
		t.Error("fingerprint should be a hex sha256")
	}
}

func TestFilterDropped(t *testing.T) {
	f := NewFilter()
	f.Admit(core.RawItem{URL: "a"})
	f.Admit(core.RawItem{URL: "a"})
	f.Admit(core.RawItem{})
	if f.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", f.Dropped())
	}
}
