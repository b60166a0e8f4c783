package archive

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// PruneResult reports what a prune pass touched.
type PruneResult struct {
	Scanned int
	Deleted int
	Cutoff  string
}

// Prune deletes dated snapshots (YYYY-MM-DD_*.json) under <root>/<tab> that
// are older than today minus keepDays, then removes directories left empty.
// In a dry run nothing is removed but Deleted still counts the candidates.
func Prune(root string, tabs []string, keepDays int, today time.Time, dryRun bool, log *slog.Logger) (PruneResult, error) {
	if keepDays < 0 {
		return PruneResult{}, fmt.Errorf("keep-days must be >= 0, got %d", keepDays)
	}
	if log == nil {
		log = slog.Default()
	}
	cutoff := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()).AddDate(0, 0, -keepDays)
	result := PruneResult{Cutoff: cutoff.Format(time.DateOnly)}

	for _, tab := range tabs {
		if err := checkTab(tab); err != nil {
			return result, err
		}
		tabRoot := filepath.Join(root, tab)
		if _, err := os.Stat(tabRoot); err != nil {
			continue
		}

		err := filepath.WalkDir(tabRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() || filepath.Ext(name) != ".json" || !strings.Contains(name, "_") {
				return nil
			}
			result.Scanned++
			datePart, _, _ := strings.Cut(name, "_")
			if _, err := time.Parse(time.DateOnly, datePart); err != nil {
				return nil
			}
			if datePart >= result.Cutoff {
				return nil
			}
			if dryRun {
				log.Info("Would delete archive", "path", path)
				result.Deleted++
				return nil
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s: %w", path, err)
			}
			result.Deleted++
			return nil
		})
		if err != nil {
			return result, err
		}

		if !dryRun {
			if err := removeEmptyDirs(tabRoot); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// removeEmptyDirs removes empty directories below root, deepest first.
func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
	})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return nil
}
