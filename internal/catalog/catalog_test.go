package catalog

import (
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	want := []string{"ai", "finance", "semiconductor", "ev", "realestate"}
	if strings.Join(c.Tabs, ",") != strings.Join(want, ",") {
		t.Fatalf("Tabs = %v, want %v", c.Tabs, want)
	}
	for _, tab := range want {
		if len(c.Taxonomy(tab)) == 0 {
			t.Errorf("taxonomy for %s is empty", tab)
		}
		if len(c.Keywords(tab)) == 0 {
			t.Errorf("keywords for %s are empty", tab)
		}
	}
	if c.Taxonomy("ai")[0] != "Models" {
		t.Errorf("first ai topic = %s, want Models", c.Taxonomy("ai")[0])
	}
}

func TestKeywordTableKeepsOrder(t *testing.T) {
	c := Default()
	kw := c.Keywords("ai")
	if kw[0].Key != "model" || kw[1].Key != "llm" || kw[2].Key != "foundation model" {
		t.Errorf("unexpected leading entries: %v", kw[:3])
	}
	if v, ok := kw.Lookup("gpu"); !ok || v != "Infra" {
		t.Errorf("Lookup(gpu) = %q, %v", v, ok)
	}
}

func TestUnknownTabFallsBack(t *testing.T) {
	c := Default()
	if got := c.Taxonomy("nope"); got[0] != "Models" {
		t.Errorf("fallback taxonomy starts with %s", got[0])
	}
	if c.ValidTab("nope") {
		t.Error("nope should not be a valid tab")
	}
	if !c.ValidTab("ev") {
		t.Error("ev should be a valid tab")
	}
}

func TestRSSFor(t *testing.T) {
	c := Default()
	for _, s := range c.RSSFor([]string{"finance"}) {
		if s.Tab != "finance" {
			t.Errorf("source %s has tab %s", s.Name, s.Tab)
		}
	}
	if len(c.RSSFor(nil)) != 0 {
		t.Error("no tabs should select no sources")
	}
}

func TestParseRejectsEmptyTaxonomy(t *testing.T) {
	doc := []byte("tabs: [ai]\ntaxonomies:\n  ai: []\n")
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for empty taxonomy")
	}
	if _, err := Parse([]byte("tabs: []\n")); err == nil {
		t.Fatal("expected error for empty tabs")
	}
}

func TestParseKeywordTables(t *testing.T) {
	doc := []byte(`tabs: [ai, ev]
taxonomies:
  ai: [Models, Infra]
  ev: [Battery]
keywords:
  ai:
    gpu: Infra
    llm: Models
`)
	c, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	kw := c.Keywords("ai")
	if len(kw) != 2 || kw[0].Key != "gpu" || kw[1].Value != "Models" {
		t.Errorf("Keywords(ai) = %v", kw)
	}
	if got := c.Keywords("ev"); len(got) != 2 || got[0].Key != "gpu" {
		t.Errorf("Keywords(ev) should fall back to ai, got %v", got)
	}
	if len(c.KeywordTables) != 1 {
		t.Errorf("KeywordTables = %v", c.KeywordTables)
	}
}
