// Package catalog holds the static data the pipelines consume: tabs, topic
// taxonomies, keyword tables, source lists and prefilter vocabularies.
//
// The catalog is loaded once at process start and passed explicitly to the
// components that need it. Nothing in it is mutated after Load.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Entry is one row of an ordered keyword table.
type Entry struct {
	Key   string
	Value string
}

// Table is an ordered string→string mapping. Document order is preserved so
// that "first match wins" lookups are deterministic.
type Table []Entry

// UnmarshalYAML decodes a mapping node, keeping key order.
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", node.Line)
	}
	out := make(Table, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Entry{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	*t = out
	return nil
}

// Lookup returns the value for an exact key.
func (t Table) Lookup(key string) (string, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Source is an RSS/Atom feed bound to a tab.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Tab  string `yaml:"tab"`
}

// FinancePrefilter is the vocabulary for the korea.kr finance policy filter.
type FinancePrefilter struct {
	Source     string   `yaml:"source"`
	Anchors    []string `yaml:"anchors"`
	Qualifiers []string `yaml:"qualifiers"`
	Always     []string `yaml:"always"`
}

// RealEstatePrefilter is the vocabulary for the real-estate policy filter.
type RealEstatePrefilter struct {
	Anchors       []string `yaml:"anchors"`
	Signals       []string `yaml:"signals"`
	MediaSources  []string `yaml:"mediaSources"`
	MediaExcludes []string `yaml:"mediaExcludes"`
}

// Prefilters groups the RSS prefilter vocabularies.
type Prefilters struct {
	CutMarkers []string            `yaml:"cutMarkers"`
	BodyLimit  int                 `yaml:"bodyLimit"`
	Finance    FinancePrefilter    `yaml:"finance"`
	RealEstate RealEstatePrefilter `yaml:"realestate"`
}

// Developer holds the tag vocabulary for the developer radar.
type Developer struct {
	CanonicalTags []string `yaml:"canonicalTags"`
	TagAliases    Table    `yaml:"tagAliases"`
}

// App is an App Store listing tracked for a company.
type App struct {
	Company string `yaml:"company"`
	AppName string `yaml:"appName"`
	TrackID int64  `yaml:"trackId"`
}

// NewsSource is a market news feed.
type NewsSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// UpdateKeywords drive the securities-updates candidate filter.
type UpdateKeywords struct {
	Strong []string `yaml:"strong"`
	Soft   []string `yaml:"soft"`
}

// Market holds the securities pipeline vocabulary.
type Market struct {
	StrongKeywords []string            `yaml:"strongKeywords"`
	SoftKeywords   []string            `yaml:"softKeywords"`
	UpdateKeywords UpdateKeywords      `yaml:"updateKeywords"`
	Types          []string            `yaml:"types"`
	Areas          []string            `yaml:"areas"`
	TypeGroups     Table               `yaml:"typeGroups"`
	AreaGroups     Table               `yaml:"areaGroups"`
	Companies      []string            `yaml:"companies"`
	CompanyAliases map[string][]string `yaml:"companyAliases"`
	Apps           []App               `yaml:"apps"`
	NewsSources    []NewsSource        `yaml:"newsSources"`
}

// Catalog is the root document.
type Catalog struct {
	Tabs          []string            `yaml:"tabs"`
	Taxonomies    map[string][]string `yaml:"taxonomies"`
	KeywordTables map[string]Table    `yaml:"keywords"`
	Sources       struct {
		RSS []Source `yaml:"rss"`
	} `yaml:"sources"`
	Prefilters Prefilters `yaml:"prefilters"`
	Developer  Developer  `yaml:"developer"`
	Market     Market     `yaml:"market"`
}

// Load returns the embedded catalog, or the file at path when one is given.
func Load(path string) (*Catalog, error) {
	data := embedded
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Tabs) == 0 {
		return nil, fmt.Errorf("catalog defines no tabs")
	}
	for _, tab := range c.Tabs {
		if len(c.Taxonomies[tab]) == 0 {
			return nil, fmt.Errorf("catalog: tab %q has an empty taxonomy", tab)
		}
	}
	return &c, nil
}

// Default returns the embedded catalog and panics if it is malformed.
func Default() *Catalog {
	c, err := Parse(embedded)
	if err != nil {
		panic(err)
	}
	return c
}

// ValidTab reports whether tab is one of the configured tabs.
func (c *Catalog) ValidTab(tab string) bool {
	for _, t := range c.Tabs {
		if t == tab {
			return true
		}
	}
	return false
}

// Taxonomy returns the topic list for tab, falling back to the first tab's.
func (c *Catalog) Taxonomy(tab string) []string {
	if tax, ok := c.Taxonomies[tab]; ok && len(tax) > 0 {
		return tax
	}
	return c.Taxonomies[c.Tabs[0]]
}

// Keywords returns the keyword table for tab, falling back to the first tab's.
func (c *Catalog) Keywords(tab string) Table {
	if kw, ok := c.KeywordTables[tab]; ok {
		return kw
	}
	return c.KeywordTables[c.Tabs[0]]
}

// RSSFor returns the RSS sources bound to any of the given tabs, in catalog order.
func (c *Catalog) RSSFor(tabs []string) []Source {
	want := make(map[string]bool, len(tabs))
	for _, t := range tabs {
		want[t] = true
	}
	var out []Source
	for _, s := range c.Sources.RSS {
		tab := s.Tab
		if tab == "" {
			tab = c.Tabs[0]
		}
		if want[tab] {
			out = append(out, s)
		}
	}
	return out
}
