// Package enrich turns raw items into enriched items through a summarizer,
// degrading to deterministic fallbacks whenever the summarizer fails.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/topics"
)

const (
	// NeutralImportance is assigned to items the summarizer could not score.
	NeutralImportance = 5

	fallbackPad      = "관련 업데이트가 이어지고 있음"
	fallbackWhy      = "개발 현황 파악에 직접적인 영향을 주는 업데이트"
	fallbackIssueSub = "AI"
	fallbackIssueSum = "최근 업데이트가 이어지고 있음"
	snippetLineLimit = 120
)

// Summarizer is the generative capability the Enricher depends on.
type Summarizer interface {
	SummarizeItem(ctx context.Context, item core.RawItem, taxonomy []string) (core.Enrichment, error)
	SummarizeIssues(ctx context.Context, items []core.EnrichedItem, tab string, maxIssues int) ([]core.Issue, error)
	SummarizeHighlights(ctx context.Context, items []core.EnrichedItem, tab string, lines int) ([]string, error)
}

// Enricher applies a Summarizer to items and issue pools.
type Enricher struct {
	summarizer Summarizer
	catalog    *catalog.Catalog
	log        *slog.Logger

	fallbacks int
	calls     int
}

// New creates an Enricher. summarizer may be nil, in which case every call
// uses the fallback path.
func New(summarizer Summarizer, c *catalog.Catalog, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{summarizer: summarizer, catalog: c, log: log}
}

// Fallbacks returns how many items were enriched by the fallback path.
func (e *Enricher) Fallbacks() int { return e.fallbacks }

// ItemCalls returns how many items were sent to the summarizer.
func (e *Enricher) ItemCalls() int { return e.calls }

// Enrich produces the derived fields for one item.
func (e *Enricher) Enrich(ctx context.Context, item core.RawItem) core.EnrichedItem {
	norm := topics.ForTab(e.catalog, item.TabOrDefault())
	if e.summarizer == nil {
		e.fallbacks++
		return core.EnrichedItem{RawItem: item, Enrichment: Fallback(item, norm)}
	}

	e.calls++
	result, err := e.summarizer.SummarizeItem(ctx, item, norm.Taxonomy())
	if err != nil {
		e.fallbacks++
		e.log.Warn("Item summary failed, using fallback", "title", item.Title, "tab", item.TabOrDefault(), "error", err)
		return core.EnrichedItem{RawItem: item, Enrichment: Fallback(item, norm)}
	}

	text := core.NormalizeText(item.Title) + " " + core.NormalizeText(item.Snippet)
	result.Topics = norm.Topics(result.Topics, text)
	if result.ImportanceScore == 0 {
		result.ImportanceScore = NeutralImportance
	}
	if result.Status == "" {
		result.Status = core.StatusNew
	}
	return core.EnrichedItem{RawItem: item, Enrichment: result}
}

// EnrichAll enriches items in order.
func (e *Enricher) EnrichAll(ctx context.Context, items []core.RawItem) []core.EnrichedItem {
	out := make([]core.EnrichedItem, 0, len(items))
	for _, item := range items {
		out = append(out, e.Enrich(ctx, item))
	}
	return out
}

// Fallback builds a deterministic enrichment from the item's own text.
func Fallback(item core.RawItem, norm *topics.Normalizer) core.Enrichment {
	title := core.NormalizeText(item.Title)
	snippet := core.NormalizeText(item.Snippet)

	summary := []string{title}
	if snippet != "" {
		summary = append(summary, core.Truncate(snippet, snippetLineLimit))
	}
	for len(summary) < 3 {
		summary = append(summary, fallbackPad)
	}

	return core.Enrichment{
		Summary:         summary[:3],
		Why:             fallbackWhy,
		Topics:          norm.Default(title + " " + snippet),
		Status:          core.StatusNew,
		ImportanceScore: NeutralImportance,
	}
}

// Issues synthesizes at most maxIssues issues from a pool, falling back to
// one issue per leading item when the summarizer is missing or fails. called
// reports whether the summarizer was asked.
func (e *Enricher) Issues(ctx context.Context, items []core.EnrichedItem, tab string, maxIssues int) (issues []core.Issue, called bool) {
	if len(items) == 0 || e.summarizer == nil {
		return FallbackIssues(items, maxIssues), false
	}
	issues, err := e.summarizer.SummarizeIssues(ctx, items, tab, maxIssues)
	if err != nil {
		e.log.Warn("Issue summary failed, using fallback", "tab", tab, "items", len(items), "error", err)
		return FallbackIssues(items, maxIssues), true
	}
	return issues, true
}

// FallbackIssues builds one issue per leading item.
func FallbackIssues(items []core.EnrichedItem, maxIssues int) []core.Issue {
	if len(items) > maxIssues {
		items = items[:max(maxIssues, 0)]
	}
	issues := make([]core.Issue, 0, len(items))
	for i, item := range items {
		subject := item.PrimaryTopic()
		if subject == "" {
			subject = fallbackIssueSub
		}
		summary := fallbackIssueSum
		if len(item.Summary) > 0 {
			summary = item.Summary[0]
		}
		status := item.Status
		if status == "" {
			status = core.StatusNew
		}
		related := []core.RelatedArticle{}
		if item.Title != "" && item.URL != "" {
			related = append(related, core.RelatedArticle{Title: item.Title, Source: item.Source, URL: item.URL})
		}
		issues = append(issues, core.Issue{
			ID:              fmt.Sprintf("issue_%03d", i+1),
			Status:          status,
			Title:           subject + " 업데이트 집중",
			Summary:         summary,
			ArticleCount:    1,
			RelatedArticles: related,
		})
	}
	return issues
}

// HighlightLines is the number of daily bullets for a given card count.
func HighlightLines(cards int) int {
	return min(max(cards, 0), 3)
}

// Highlights returns exactly lines bullets for the selected items. The
// summarizer's answer is used only when it has the right length; otherwise
// the leading base bullets are returned.
func (e *Enricher) Highlights(ctx context.Context, selected []core.EnrichedItem, tab string, base []string, lines int) ([]string, bool) {
	fallback := base
	if len(fallback) > lines {
		fallback = fallback[:lines]
	}
	if lines <= 0 {
		return []string{}, false
	}
	if e.summarizer == nil {
		return fallback, false
	}
	if len(selected) > 8 {
		selected = selected[:8]
	}
	bullets, err := e.summarizer.SummarizeHighlights(ctx, selected, tab, lines)
	if err != nil {
		e.log.Warn("Highlight summary failed, using base bullets", "tab", tab, "error", err)
		return fallback, true
	}
	if len(bullets) != lines {
		e.log.Warn("Highlight summary returned wrong line count", "tab", tab, "want", lines, "got", len(bullets))
		return fallback, true
	}
	return bullets, true
}
