package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"newsroll/internal/archive"
	"newsroll/internal/core"
)

// CardIndex is an SQLite index of daily cards keyed by (tab, date).
// The archive files stay authoritative; the index is a faster read path
// for rollups.
type CardIndex struct {
	db   *sql.DB
	path string
}

// NewCardIndex opens (and creates if needed) the index under dataDir.
func NewCardIndex(dataDir string) (*CardIndex, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "newsroll.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	idx := &CardIndex{db: db, path: dbPath}
	if err := idx.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return idx, nil
}

func (c *CardIndex) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			tab TEXT NOT NULL,
			date TEXT NOT NULL,
			id TEXT NOT NULL,
			published_at TEXT,
			payload TEXT NOT NULL,
			PRIMARY KEY (tab, date, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_date ON cards (date);`,
	}
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *CardIndex) Close() error {
	return c.db.Close()
}

// Path is the database file location.
func (c *CardIndex) Path() string { return c.path }

// PutDaily replaces the cards stored for tab on date.
func (c *CardIndex) PutDaily(tab, date string, cards []core.Card) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := sq.Delete("cards").Where(sq.Eq{"tab": tab, "date": date}).RunWith(tx).Exec(); err != nil {
		return fmt.Errorf("failed to clear %s/%s: %w", tab, date, err)
	}
	if len(cards) > 0 {
		insert := sq.Insert("cards").Columns("tab", "date", "id", "published_at", "payload")
		for _, card := range cards {
			payload, err := json.Marshal(card)
			if err != nil {
				return fmt.Errorf("failed to encode card %s: %w", card.ID, err)
			}
			insert = insert.Values(tab, date, card.ID, card.PublishedAt, string(payload))
		}
		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to insert cards for %s/%s: %w", tab, date, err)
		}
	}
	return tx.Commit()
}

// Cards returns the cards of tab whose daily date lies in [start, end],
// oldest date first.
func (c *CardIndex) Cards(tab string, start, end time.Time) ([]core.Card, error) {
	rows, err := sq.Select("payload").
		From("cards").
		Where(sq.Eq{"tab": tab}).
		Where(sq.GtOrEq{"date": core.FormatDate(start)}).
		Where(sq.LtOrEq{"date": core.FormatDate(end.In(start.Location()))}).
		OrderBy("date", "id").
		RunWith(c.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()

	var cards []core.Card
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		var card core.Card
		if err := json.Unmarshal([]byte(payload), &card); err != nil {
			continue
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// LoadDailyItems expands the indexed cards of tab in [start, end] into items.
// Undated cards are skipped.
func (c *CardIndex) LoadDailyItems(tab string, start, end time.Time) ([]core.EnrichedItem, error) {
	cards, err := c.Cards(tab, start, end)
	if err != nil {
		return nil, err
	}
	items := make([]core.EnrichedItem, 0, len(cards))
	for _, card := range cards {
		if item, ok := archive.ItemFromCard(card, start.Location()); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Prune deletes rows dated before the given YYYY-MM-DD date and reports how many went.
func (c *CardIndex) Prune(before string) (int64, error) {
	res, err := sq.Delete("cards").Where(sq.Lt{"date": before}).RunWith(c.db).Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to prune cards: %w", err)
	}
	return res.RowsAffected()
}
