package sources

import (
	"context"

	"newsroll/internal/core"
	"newsroll/internal/feeds"
)

// RSSFeed adapts one catalog feed to the Fetcher interface.
type RSSFeed struct {
	reader *feeds.Reader
	feed   feeds.Feed
}

// NewRSSFeed returns a fetcher for feed read through reader.
func NewRSSFeed(reader *feeds.Reader, feed feeds.Feed) *RSSFeed {
	return &RSSFeed{reader: reader, feed: feed}
}

func (r *RSSFeed) Name() string    { return r.feed.Name }
func (r *RSSFeed) Kind() core.Kind { return core.KindRSS }

func (r *RSSFeed) Fetch(ctx context.Context) ([]core.RawItem, error) {
	return r.reader.Fetch(ctx, r.feed)
}
