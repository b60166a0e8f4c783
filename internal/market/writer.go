package market

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"newsroll/internal/archive"
	"newsroll/internal/core"
)

var monthFile = regexp.MustCompile(`^\d{4}-\d{2}\.json$`)

// MonthFile is public/securities/<dataset>/<YYYY-MM>.json.
type MonthFile struct {
	Month  string  `json:"month"`
	Events []Event `json:"events"`
}

// UpsertMonthFile merges events into the month file by id, later writes
// winning, and keeps events sorted newest first with ids breaking ties.
// Upserting the same events twice leaves the file unchanged.
func UpsertMonthFile(dir, month string, events []Event) (MonthFile, error) {
	path := filepath.Join(dir, month+".json")
	doc := MonthFile{Month: month}
	if err := archive.ReadJSON(path, &doc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return doc, err
	}
	if doc.Month == "" {
		doc.Month = month
	}

	index := make(map[string]int, len(doc.Events)+len(events))
	merged := make([]Event, 0, len(doc.Events)+len(events))
	for _, e := range append(doc.Events, events...) {
		if e.ID == "" {
			continue
		}
		if i, ok := index[e.ID]; ok {
			merged[i] = e
			continue
		}
		index[e.ID] = len(merged)
		merged = append(merged, e)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date > merged[j].Date
		}
		return merged[i].ID < merged[j].ID
	})
	doc.Events = merged
	return doc, archive.WriteJSON(path, doc)
}

// Quality counts events missing a displayable field.
type Quality struct {
	Total          int `json:"total"`
	MissingLink    int `json:"missingLink"`
	MissingSummary int `json:"missingSummary"`
	MissingType    int `json:"missingType"`
	MissingArea    int `json:"missingArea"`
}

// ComputeQuality scores a month's events.
func ComputeQuality(events []Event) Quality {
	q := Quality{Total: len(events)}
	for _, e := range events {
		if len(e.Sources) == 0 || e.Sources[0].URL == "" {
			q.MissingLink++
		}
		if e.OneLiner == "" {
			q.MissingSummary++
		}
		if e.Type == "" {
			q.MissingType++
		}
		if len(e.Areas) == 0 {
			q.MissingArea++
		}
	}
	return q
}

// Counts totals the events of a dataset.
type Counts struct {
	Total   int `json:"total"`
	Last30d int `json:"last30d"`
}

// Index is public/securities/<dataset>/index.json.
type Index struct {
	LastUpdated    *string            `json:"lastUpdated"`
	Months         []string           `json:"months"`
	Companies      []string           `json:"companies"`
	Counts         Counts             `json:"counts"`
	QualityByMonth map[string]Quality `json:"qualityByMonth"`
}

// BuildIndex summarises every month file in dir.
func BuildIndex(dir string, companies []string, now time.Time) (Index, error) {
	idx := Index{Months: []string{}, Companies: companies, QualityByMonth: map[string]Quality{}}
	if idx.Companies == nil {
		idx.Companies = []string{}
	}
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return idx, err
	}

	cutoff := core.FormatDate(now.AddDate(0, 0, -30))
	last, seen := "", false
	for _, entry := range entries {
		if entry.IsDir() || !monthFile.MatchString(entry.Name()) {
			continue
		}
		var doc MonthFile
		if err := archive.ReadJSON(filepath.Join(dir, entry.Name()), &doc); err != nil || doc.Month == "" {
			continue
		}
		if !contains(idx.Months, doc.Month) {
			idx.Months = append(idx.Months, doc.Month)
		}
		idx.QualityByMonth[doc.Month] = ComputeQuality(doc.Events)
		for _, e := range doc.Events {
			idx.Counts.Total++
			if e.Date != "" && e.Date >= cutoff {
				idx.Counts.Last30d++
			}
			if e.Date > last {
				last = e.Date
			}
		}
		seen = seen || len(doc.Events) > 0
	}
	if seen {
		idx.LastUpdated = &last
	}
	sort.Sort(sort.Reverse(sort.StringSlice(idx.Months)))
	return idx, nil
}

// LoadCompanies reads the company list of an existing index.json. ok is
// false when the file does not exist or lists no companies.
func LoadCompanies(dir string) ([]string, bool, error) {
	var idx Index
	err := archive.ReadJSON(filepath.Join(dir, "index.json"), &idx)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return idx.Companies, len(idx.Companies) > 0, nil
}

// Failure is one line of source_failures.jsonl.
type Failure struct {
	ID         string `json:"id"`
	TS         string `json:"ts"`
	SourceType string `json:"sourceType"`
	Message    string `json:"message"`
	Company    string `json:"company,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// FailureLog appends source failures for later inspection.
type FailureLog struct {
	Path string
	Now  func() time.Time
}

// Append records a failure with a fresh id.
func (l *FailureLog) Append(sourceType, message, company, detail string) error {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	return appendLines(l.Path, []Failure{{
		ID:         uuid.NewString(),
		TS:         now.Format("2006-01-02T15:04:05"),
		SourceType: sourceType,
		Message:    message,
		Company:    company,
		Detail:     detail,
	}})
}

// WriteUnmatched records companies that could not be mapped to a DART corp code.
func WriteUnmatched(dir string, unmatched []string) error {
	if len(unmatched) == 0 {
		return nil
	}
	return archive.WriteJSON(filepath.Join(dir, "unmatched_companies.json"), map[string][]string{"unmatched": unmatched})
}
