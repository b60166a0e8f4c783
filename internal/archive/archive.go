// Package archive persists report documents as JSON files and reads daily
// cards back for rollups.
//
// Layout, relative to the public and archive roots:
//
//	<public>/<domain>/<tab>/<name>.json
//	<archive>/<domain>/<tab>/YYYY/MM/YYYY-MM-DD_<period>.json
//
// Files are written to a temporary sibling and renamed into place, so a
// reader never observes a half-written document.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"newsroll/internal/core"
)

// ErrInvalidTab is returned for tab names that cannot be used as a path segment.
var ErrInvalidTab = errors.New("archive: invalid tab name")

// Periods of archived documents.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Store reads and writes one domain's documents, e.g. "industry".
type Store struct {
	publicDir  string
	archiveDir string
	log        *slog.Logger
}

// NewStore returns a Store rooted at <publicRoot>/<domain> and <archiveRoot>/<domain>.
func NewStore(publicRoot, archiveRoot, domain string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		publicDir:  filepath.Join(publicRoot, domain),
		archiveDir: filepath.Join(archiveRoot, domain),
		log:        log,
	}
}

// PublicDir is the directory holding the domain's latest documents.
func (s *Store) PublicDir() string { return s.publicDir }

// ArchiveDir is the directory holding the domain's dated snapshots.
func (s *Store) ArchiveDir() string { return s.archiveDir }

func checkTab(tab string) error {
	if tab == "" || tab == "." || tab == ".." || strings.ContainsAny(tab, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidTab, tab)
	}
	return nil
}

// ArchivePath returns the dated snapshot path for tab, date and period.
func (s *Store) ArchivePath(tab string, date time.Time, period string) string {
	day := core.FormatDate(date)
	return filepath.Join(s.archiveDir, tab, day[:4], day[5:7], day+"_"+period+".json")
}

// WriteLatest replaces <public>/<domain>/<tab>/<filename> with doc.
func (s *Store) WriteLatest(tab, filename string, doc any) error {
	if err := checkTab(tab); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(s.publicDir, tab, filename), doc)
}

// WriteArchive writes the dated snapshot of doc.
func (s *Store) WriteArchive(tab string, date time.Time, period string, doc any) error {
	if err := checkTab(tab); err != nil {
		return err
	}
	return WriteJSON(s.ArchivePath(tab, date, period), doc)
}

// Marshal encodes doc as indented JSON without HTML escaping, newline terminated.
func Marshal(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON atomically replaces path with the JSON encoding of doc,
// creating parent directories as needed.
func WriteJSON(path string, doc any) error {
	data, err := Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return WriteFile(path, data)
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ItemFromCard expands an archived card back into the item shape the
// aggregators consume. Cards without a parseable publishedAt are rejected.
func ItemFromCard(card core.Card, loc *time.Location) (core.EnrichedItem, bool) {
	if card.PublishedAt == "" {
		return core.EnrichedItem{}, false
	}
	at, err := time.Parse(time.RFC3339, card.PublishedAt)
	if err != nil {
		at, err = time.ParseInLocation("2006-01-02T15:04:05", card.PublishedAt, loc)
		if err != nil {
			return core.EnrichedItem{}, false
		}
	}
	tab := card.Tab
	if tab == "" {
		tab = core.DefaultTab
	}
	return core.EnrichedItem{
		RawItem: core.RawItem{
			Title:       card.Title,
			URL:         card.URL,
			Source:      card.Source,
			PublishedAt: at.In(loc),
			Tab:         tab,
		},
		Enrichment: core.Enrichment{
			Summary:         card.Summary,
			Why:             card.WhyItMatters,
			Topics:          card.Topics,
			Status:          card.Status,
			ImportanceScore: card.ImportanceScore,
		},
		Hash: card.Hash,
	}, true
}

// LoadDailyItems reads the daily snapshots of tab for every date in
// [start, end] and returns their cards as items. Missing or unreadable
// files and undated cards are skipped.
func (s *Store) LoadDailyItems(tab string, start, end time.Time) ([]core.EnrichedItem, error) {
	if err := checkTab(tab); err != nil {
		return nil, err
	}
	loc := start.Location()
	var items []core.EnrichedItem
	for _, day := range core.DatesBetween(start, end) {
		path := s.ArchivePath(tab, day, PeriodDaily)
		var doc core.DailyReport
		if err := ReadJSON(path, &doc); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("Skipping unreadable archive", "path", path, "error", err)
			}
			continue
		}
		for _, card := range doc.Cards {
			item, ok := ItemFromCard(card, loc)
			if !ok {
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}
