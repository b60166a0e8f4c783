package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsroll/internal/core"
)

func TestNewCardIndex(t *testing.T) {
	tmpDir := t.TempDir()

	idx, err := NewCardIndex(tmpDir)
	if err != nil {
		t.Fatalf("NewCardIndex failed: %v", err)
	}
	defer func() { _ = idx.Close() }()

	if _, err := os.Stat(filepath.Join(tmpDir, "newsroll.db")); os.IsNotExist(err) {
		t.Error("Database file should be created")
	}
}

func TestNewCardIndex_InvalidDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	invalidPath := filepath.Join(tmpDir, "file.txt")
	_ = os.WriteFile(invalidPath, []byte("test"), 0644)

	if _, err := NewCardIndex(invalidPath); err == nil {
		t.Error("Expected error when creating index in invalid directory")
	}
}

func TestPutDailyReplacesDay(t *testing.T) {
	idx, err := NewCardIndex(t.TempDir())
	if err != nil {
		t.Fatalf("NewCardIndex failed: %v", err)
	}
	defer func() { _ = idx.Close() }()

	first := []core.Card{
		{ID: "ai_0001", Title: "one", PublishedAt: "2025-03-09T08:00:00+09:00"},
		{ID: "ai_0002", Title: "two", PublishedAt: "2025-03-09T09:00:00+09:00"},
	}
	if err := idx.PutDaily("ai", "2025-03-09", first); err != nil {
		t.Fatalf("PutDaily failed: %v", err)
	}
	if err := idx.PutDaily("ai", "2025-03-09", first[:1]); err != nil {
		t.Fatalf("PutDaily (rerun) failed: %v", err)
	}
	if err := idx.PutDaily("finance", "2025-03-09", first); err != nil {
		t.Fatalf("PutDaily finance failed: %v", err)
	}

	kst := time.FixedZone("KST", 9*60*60)
	start := time.Date(2025, 3, 4, 12, 0, 0, 0, kst)
	end := time.Date(2025, 3, 10, 12, 0, 0, 0, kst)
	cards, err := idx.Cards("ai", start, end)
	if err != nil {
		t.Fatalf("Cards failed: %v", err)
	}
	if len(cards) != 1 || cards[0].Title != "one" {
		t.Errorf("cards = %+v, want only the rerun's card", cards)
	}

	items, err := idx.LoadDailyItems("ai", start, end)
	if err != nil {
		t.Fatalf("LoadDailyItems failed: %v", err)
	}
	if len(items) != 1 || items[0].PublishedAt.Hour() != 8 {
		t.Errorf("items = %+v", items)
	}
}

func TestPrune(t *testing.T) {
	idx, err := NewCardIndex(t.TempDir())
	if err != nil {
		t.Fatalf("NewCardIndex failed: %v", err)
	}
	defer func() { _ = idx.Close() }()

	for _, date := range []string{"2025-01-01", "2025-02-01", "2025-03-01"} {
		if err := idx.PutDaily("ai", date, []core.Card{{ID: "ai_0001", PublishedAt: date + "T00:00:00Z"}}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := idx.Prune("2025-02-15")
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
}
