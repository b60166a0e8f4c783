// Package topics maps free-form labels onto a tab's fixed taxonomy, and
// developer-radar tags onto the canonical tag list.
package topics

import (
	"strings"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
)

// MaxTopics caps the topics attached to one item.
const MaxTopics = 5

// Normalizer resolves labels against one tab's taxonomy and keyword table.
type Normalizer struct {
	taxonomy []string
	keywords catalog.Table
}

// NewNormalizer builds a normalizer. taxonomy must not be empty.
func NewNormalizer(taxonomy []string, keywords catalog.Table) *Normalizer {
	return &Normalizer{taxonomy: taxonomy, keywords: keywords}
}

// ForTab builds the normalizer for tab from the catalog.
func ForTab(c *catalog.Catalog, tab string) *Normalizer {
	return NewNormalizer(c.Taxonomy(tab), c.Keywords(tab))
}

// Taxonomy returns the ordered topic list.
func (n *Normalizer) Taxonomy() []string { return n.taxonomy }

// Topic maps one candidate label onto the taxonomy: exact case-insensitive
// match, then taxonomy entry contained in the candidate, then keyword table.
func (n *Normalizer) Topic(candidate string) (string, bool) {
	cleaned := strings.ToLower(core.NormalizeText(candidate))
	if cleaned == "" {
		return "", false
	}
	for _, category := range n.taxonomy {
		if cleaned == strings.ToLower(category) {
			return category, true
		}
	}
	for _, category := range n.taxonomy {
		if strings.Contains(cleaned, strings.ToLower(category)) {
			return category, true
		}
	}
	for _, e := range n.keywords {
		if strings.Contains(cleaned, strings.ToLower(e.Key)) {
			return e.Value, true
		}
	}
	return "", false
}

// FromText scans text with the keyword table and returns labels in table order.
func (n *Normalizer) FromText(text string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for _, e := range n.keywords {
		if strings.Contains(lowered, strings.ToLower(e.Key)) && !contains(found, e.Value) {
			found = append(found, e.Value)
		}
	}
	return found
}

// Default returns the text-derived topics, or the first taxonomy entry when
// the text matches nothing. The result is never empty.
func (n *Normalizer) Default(text string) []string {
	found := n.FromText(text)
	if len(found) == 0 {
		return []string{n.taxonomy[0]}
	}
	return capList(found, MaxTopics)
}

// Topics normalizes candidates in insertion order, dropping duplicates and
// unmappable labels, then falls back to Default(fallbackText).
func (n *Normalizer) Topics(candidates []string, fallbackText string) []string {
	var out []string
	for _, c := range candidates {
		if mapped, ok := n.Topic(c); ok && !contains(out, mapped) {
			out = append(out, mapped)
		}
	}
	if len(out) == 0 {
		return n.Default(fallbackText)
	}
	return capList(out, MaxTopics)
}

// MaxTags caps the tags attached to one cluster.
const MaxTags = 2

// TagNormalizer canonicalizes developer-radar tags. Unlike Normalizer, its
// output follows the canonical list order, not insertion order.
type TagNormalizer struct {
	canonical []string
	aliases   catalog.Table
	max       int
}

// NewTagNormalizer builds a tag normalizer capped at MaxTags.
func NewTagNormalizer(canonical []string, aliases catalog.Table) *TagNormalizer {
	return &TagNormalizer{canonical: canonical, aliases: aliases, max: MaxTags}
}

// Tags maps raw tags by exact alias and text by keyword scan.
func (t *TagNormalizer) Tags(raw []string, text string) []string {
	var matched []string
	for _, tag := range raw {
		cleaned := strings.ToLower(core.NormalizeText(tag))
		if mapped, ok := t.aliases.Lookup(cleaned); ok && !contains(matched, mapped) {
			matched = append(matched, mapped)
		}
	}
	if text != "" {
		lowered := strings.ToLower(text)
		for _, e := range t.aliases {
			if strings.Contains(lowered, e.Key) && !contains(matched, e.Value) {
				matched = append(matched, e.Value)
			}
		}
	}

	var ordered []string
	for _, tag := range t.canonical {
		if contains(matched, tag) {
			ordered = append(ordered, tag)
		}
	}
	return capList(ordered, t.max)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func capList(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	return list
}
