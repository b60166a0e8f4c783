package market

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/feeds"
	"newsroll/internal/sources"
)

const (
	appSnippetLimit  = 1000
	newsSnippetLimit = 400
)

// DART filters applied to every disclosure listing.
var (
	DARTTypes      = []string{"B", "E", "I"}
	DARTLastReport = "Y"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AppItem turns an App Store listing into an item when its current version
// was released inside rng. ok is false otherwise.
func AppItem(app catalog.App, info *sources.AppInfo, rng Range, loc *time.Location) (Item, bool) {
	released, err := time.Parse(time.RFC3339, info.CurrentVersionReleaseDate)
	if err != nil {
		return Item{}, false
	}
	released = released.In(loc)
	if !rng.Contains(released) {
		return Item{}, false
	}

	version := core.NormalizeText(info.Version)
	date := core.FormatDate(released)
	name := core.NormalizeText(info.TrackName)
	if name == "" {
		name = core.NormalizeText(app.AppName)
	}
	title := app.Company + " iOS 앱 업데이트"
	if version != "" {
		title += " v" + version
	}
	return Item{
		ID:         sha1Hex(fmt.Sprintf("%s-appstore-%d-%s-%s", app.Company, app.TrackID, version, date)),
		Company:    app.Company,
		Title:      title,
		Snippet:    core.Truncate(core.NormalizeText(info.ReleaseNotes), appSnippetLimit),
		Source:     "App Store",
		SourceType: core.KindAppStore,
		Date:       date,
		URL:        info.TrackViewURL,
		TrackID:    app.TrackID,
		AppName:    name,
		Version:    version,
	}, true
}

// DARTItem turns a disclosure row into an item. ok is false when the
// receipt date cannot be parsed.
func DARTItem(company, corpCode string, d sources.Disclosure, loc *time.Location) (Item, bool) {
	received, err := time.ParseInLocation("20060102", strings.TrimSpace(d.RceptDt), loc)
	if err != nil {
		return Item{}, false
	}
	date := core.FormatDate(received)
	key := company + "-" + d.RceptNo
	if d.RceptNo == "" {
		key = company + "-" + d.ReportNm + "-" + date
	}
	return Item{
		ID:         sha1Hex(key),
		Company:    company,
		Title:      d.ReportNm,
		Snippet:    d.Rm,
		Source:     "DART",
		SourceType: core.KindDART,
		Date:       date,
		URL:        sources.DisclosureURL(d.RceptNo),
		CorpCode:   corpCode,
		RceptNo:    d.RceptNo,
		GroupType:  d.GroupType,
	}, true
}

// CompanyMatcher finds the first company whose name or alias appears in a text.
type CompanyMatcher struct {
	companies []string
	aliases   map[string][]string
}

// NewCompanyMatcher matches companies in order, each by name then aliases.
func NewCompanyMatcher(companies []string, aliases map[string][]string) *CompanyMatcher {
	return &CompanyMatcher{companies: companies, aliases: aliases}
}

// Match returns the matching company or "".
func (m *CompanyMatcher) Match(text string) string {
	lowered := strings.ToLower(text)
	for _, company := range m.companies {
		for _, alias := range append([]string{company}, m.aliases[company]...) {
			if alias != "" && strings.Contains(lowered, strings.ToLower(alias)) {
				return company
			}
		}
	}
	return ""
}

// NewsStats counts the feed entries seen before filtering.
type NewsStats struct {
	RSSLimit       int         `json:"rssLimit"`
	EntriesFetched int         `json:"entriesFetched"`
	BySource       core.Counts `json:"bySource"`
}

// NewsItems keeps dated, linked feed entries in rng that mention a company.
func NewsItems(entries []core.RawItem, rng Range, matcher *CompanyMatcher) []Item {
	var items []Item
	for _, e := range entries {
		if !rng.Contains(e.PublishedAt) || e.URL == "" {
			continue
		}
		title := core.NormalizeText(e.Title)
		snippet := core.Truncate(core.NormalizeText(e.Snippet), newsSnippetLimit)
		company := matcher.Match(title + " " + snippet)
		if company == "" {
			continue
		}
		source := e.Source
		if source == "" {
			source = "News"
		}
		items = append(items, Item{
			ID:         "news:" + company + ":" + e.URL,
			Company:    company,
			Title:      title,
			Snippet:    snippet,
			Source:     source,
			SourceType: core.KindNews,
			Date:       core.FormatDate(e.PublishedAt),
			URL:        e.URL,
		})
	}
	return items
}

// FetchNews reads every news feed. Failed feeds are reported through onError
// and contribute nothing.
func FetchNews(ctx context.Context, reader *feeds.Reader, list []catalog.NewsSource, onError func(source string, err error)) []core.RawItem {
	var all []core.RawItem
	for _, src := range list {
		items, err := reader.Fetch(ctx, feeds.Feed{Name: src.Name, URL: src.URL})
		if err != nil {
			if onError != nil {
				onError(src.Name, err)
			}
			continue
		}
		all = append(all, items...)
	}
	return all
}

// DedupeByID keeps the last item for each id at the position of its first occurrence.
func DedupeByID(items []Item) []Item {
	index := make(map[string]int, len(items))
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// Filter decides which items are worth classifying for a dataset.
type Filter struct {
	vocab catalog.Market
}

// NewFilter uses the market vocabulary of the catalog.
func NewFilter(vocab catalog.Market) *Filter {
	return &Filter{vocab: vocab}
}

func matchText(text string) string {
	return strings.ToLower(core.NormalizeText(text))
}

func hasAny(lowered string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(lowered, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// IsAI reports whether text names an AI keyword.
func (f *Filter) IsAI(text string) bool {
	return hasAny(matchText(text), f.vocab.StrongKeywords)
}

// IsUpdate reports whether text reads like a product or service update and
// is not AI or generic digital news.
func (f *Filter) IsUpdate(text string) bool {
	lowered := matchText(text)
	if lowered == "" {
		return false
	}
	if hasAny(lowered, f.vocab.StrongKeywords) || hasAny(lowered, f.vocab.SoftKeywords) {
		return false
	}
	return hasAny(lowered, f.vocab.UpdateKeywords.Strong) || hasAny(lowered, f.vocab.UpdateKeywords.Soft)
}

// Candidates filters items for dataset. Updates never include AI items;
// DART disclosures always qualify for updates.
func (f *Filter) Candidates(dataset string, items []Item) []Item {
	var out []Item
	for _, item := range items {
		text := strings.TrimSpace(item.Title + " " + item.Snippet)
		ai := f.IsAI(text)
		switch dataset {
		case DatasetUpdates:
			if ai {
				continue
			}
			if item.SourceType == core.KindDART || f.IsUpdate(text) {
				out = append(out, item)
			}
		default:
			if ai {
				out = append(out, item)
			}
		}
	}
	return out
}
