// Package feeds reads RSS/Atom feeds into RawItems
package feeds

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newsroll/internal/core"
)

// Feed names one RSS/Atom endpoint and the tab its items belong to.
type Feed struct {
	Name string
	URL  string
	Tab  string
}

// Reader fetches and parses feeds
type Reader struct {
	client    *http.Client
	userAgent string
	limit     int
	loc       *time.Location
}

// NewReader creates a feed reader. limit caps the entries taken per feed
// (0 means no cap) and loc is the zone published dates are converted to.
func NewReader(client *http.Client, userAgent string, limit int, loc *time.Location) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reader{
		client:    client,
		userAgent: userAgent,
		limit:     limit,
		loc:       loc,
	}
}

// Fetch downloads and parses one feed.
func (r *Reader) Fetch(ctx context.Context, feed Feed) ([]core.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	return r.Parse(resp.Body, feed)
}

// Parse decodes an RSS or Atom document. Entries without a title are skipped.
func (r *Reader) Parse(body io.Reader, feed Feed) ([]core.RawItem, error) {
	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	tab := feed.Tab
	if tab == "" {
		tab = core.DefaultTab
	}

	var items []core.RawItem
	for _, entry := range parsed.Items {
		if r.limit > 0 && len(items) >= r.limit {
			break
		}
		if entry == nil {
			continue
		}
		title := core.NormalizeText(entry.Title)
		if title == "" {
			continue
		}
		description := entry.Description
		if description == "" {
			description = entry.Content
		}
		items = append(items, core.RawItem{
			Title:       title,
			URL:         strings.TrimSpace(entry.Link),
			Source:      feed.Name,
			PublishedAt: r.publishedAt(entry),
			Snippet:     SnippetText(description),
			Tab:         tab,
			Kind:        core.KindRSS,
		})
	}
	return items, nil
}

func (r *Reader) publishedAt(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.In(r.loc)
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.In(r.loc)
	default:
		return time.Time{}
	}
}

// SnippetText reduces an HTML fragment to its collapsed visible text.
func SnippetText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return core.NormalizeText(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return core.NormalizeText(fragment)
	}
	return core.NormalizeText(doc.Text())
}

// CleanBody unescapes entity-encoded markup before stripping tags, for feeds
// that double-encode their descriptions.
func CleanBody(fragment string) string {
	unescaped := html.UnescapeString(fragment)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return core.NormalizeText(unescaped)
	}
	doc.Find("script, style").Remove()
	return core.NormalizeText(doc.Text())
}
