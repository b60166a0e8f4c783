package pipeline

import (
	"strings"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/feeds"
)

// Prefilter drops off-topic RSS items from the finance and realestate tabs
// before they reach dedupe and enrichment.
type Prefilter struct {
	rules catalog.Prefilters
	tabs  map[string]bool
}

// PrefilterReport counts items subject to each filter and how many survived.
type PrefilterReport struct {
	FinanceTotal    int
	FinanceKept     int
	RealEstateTotal int
	RealEstateKept  int
}

// NewPrefilter returns a filter active only for the selected tabs.
func NewPrefilter(rules catalog.Prefilters, tabs []string) *Prefilter {
	set := make(map[string]bool, len(tabs))
	for _, t := range tabs {
		set[t] = true
	}
	return &Prefilter{rules: rules, tabs: set}
}

func (p *Prefilter) isFinancePolicy(item core.RawItem) bool {
	return item.Kind == core.KindRSS && item.Tab == "finance" && item.Source == p.rules.Finance.Source
}

func (p *Prefilter) isRealEstate(item core.RawItem) bool {
	return item.Kind == core.KindRSS && item.Tab == "realestate"
}

// Apply filters items, keeping input order.
func (p *Prefilter) Apply(items []core.RawItem) ([]core.RawItem, PrefilterReport) {
	var report PrefilterReport
	out := make([]core.RawItem, 0, len(items))
	for _, item := range items {
		switch {
		case p.tabs["finance"] && p.isFinancePolicy(item):
			report.FinanceTotal++
			if !p.FinanceMatch(item) {
				continue
			}
			report.FinanceKept++
		case p.tabs["realestate"] && p.isRealEstate(item):
			report.RealEstateTotal++
			if !p.RealEstateMatch(item) {
				continue
			}
			report.RealEstateKept++
		}
		out = append(out, item)
	}
	return out, report
}

// body cleans a snippet, cuts it at the first contact/attachment footer
// marker and limits its length.
func (p *Prefilter) body(snippet string) string {
	text := feeds.CleanBody(snippet)
	cut := -1
	for _, marker := range p.rules.CutMarkers {
		if idx := strings.Index(text, marker); idx >= 0 && (cut < 0 || idx < cut) {
			cut = idx
		}
	}
	if cut >= 0 {
		text = text[:cut]
	}
	limit := p.rules.BodyLimit
	if limit <= 0 {
		limit = 800
	}
	return core.Truncate(text, limit)
}

// FinanceMatch keeps a policy-briefing item when its title names a finance
// anchor, its text names an always-keep keyword, or its text has both an
// anchor and a regulatory qualifier.
func (p *Prefilter) FinanceMatch(item core.RawItem) bool {
	title := strings.ToLower(item.Title)
	text := strings.ToLower(item.Title + " " + p.body(item.Snippet))
	f := p.rules.Finance

	if containsAny(title, f.Anchors) || containsAny(text, f.Always) {
		return true
	}
	return containsAny(text, f.Anchors) && containsAny(text, f.Qualifiers)
}

// RealEstateMatch keeps an item that has both a housing anchor and a policy
// signal. Listings-style headlines from media feeds are dropped first.
func (p *Prefilter) RealEstateMatch(item core.RawItem) bool {
	title := strings.ToLower(item.Title)
	text := strings.ToLower(item.Title + " " + p.body(item.Snippet))
	r := p.rules.RealEstate

	if containsFold(r.MediaSources, item.Source) && containsAny(title, r.MediaExcludes) {
		return false
	}
	hasAnchor := containsAny(title, r.Anchors) || containsAny(text, r.Anchors)
	return hasAnchor && containsAny(text, r.Signals)
}

// containsAny reports whether lowered contains any keyword, case-insensitively.
func containsAny(lowered string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(lowered, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
