package pipeline

import (
	"time"

	"newsroll/internal/core"
	"newsroll/internal/sources"
)

// CardSource reads archived daily cards back as items for rollups.
// Implemented by archive.Store and store.CardIndex.
type CardSource interface {
	LoadDailyItems(tab string, start, end time.Time) ([]core.EnrichedItem, error)
}

// CardIndexer receives each day's published cards in addition to the archive files.
type CardIndexer interface {
	PutDaily(tab, date string, cards []core.Card) error
}

// SourceSet returns the fetchers to run for the selected tabs.
type SourceSet func(tabs []string) []sources.Fetcher

// DocumentStore writes latest and dated documents for one domain.
type DocumentStore interface {
	CardSource
	WriteLatest(tab, filename string, doc any) error
	WriteArchive(tab string, date time.Time, period string, doc any) error
	PublicDir() string
}
