// Package market collects securities-firm announcements from the App Store,
// DART disclosures and news feeds, classifies them in LLM batches and
// maintains per-month event files with a summary index.
package market

import (
	"fmt"
	"time"

	"newsroll/internal/catalog"
	"newsroll/internal/core"
)

// Datasets.
const (
	DatasetAI      = "securities-ai"
	DatasetUpdates = "securities-updates"
	DatasetAll     = "all"
)

// Datasets expands a --dataset value into the datasets to run.
func Datasets(name string) ([]string, error) {
	switch name {
	case DatasetAll, "":
		return []string{DatasetAI, DatasetUpdates}, nil
	case DatasetAI, DatasetUpdates:
		return []string{name}, nil
	}
	return nil, fmt.Errorf("unknown dataset %q (want %s, %s or %s)", name, DatasetAll, DatasetAI, DatasetUpdates)
}

const (
	defaultType = "기타"
	defaultArea = "기타"
	region      = "국내"

	defaultTypeGroup = "대외/인사이트"
	defaultAreaGroup = "투자/리서치"
)

// Item is a collected announcement before classification.
type Item struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet"`
	Source     string    `json:"source"`
	SourceType core.Kind `json:"sourceType"`
	Date       string    `json:"date"` // YYYY-MM-DD
	URL        string    `json:"url"`

	CorpCode  string `json:"corp_code,omitempty"`
	RceptNo   string `json:"rcept_no,omitempty"`
	GroupType string `json:"pblntf_ty,omitempty"`
	TrackID   int64  `json:"trackId,omitempty"`
	AppName   string `json:"appName,omitempty"`
	Version   string `json:"version,omitempty"`
}

// EventSource links an event to the announcement it came from.
type EventSource struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Event is a kept, classified announcement as published in a month file.
type Event struct {
	ID         string        `json:"id"`
	Date       string        `json:"date"`
	Company    string        `json:"company"`
	Title      string        `json:"title"`
	OneLiner   string        `json:"oneLiner"`
	Type       string        `json:"type"`
	Areas      []string      `json:"areas"`
	Region     string        `json:"region"`
	SourceType string        `json:"sourceType"`
	Sources    []EventSource `json:"sources"`
	Tags       []string      `json:"tags"`
	Confidence *float64      `json:"confidence"`
	UpdatedAt  string        `json:"updatedAt"`
}

// Range is the collection window of a run.
type Range struct {
	Mode         string    `json:"mode"` // month or lookback
	LookbackDays int       `json:"lookbackDays"`
	Month        string    `json:"month,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End].
func (r Range) Contains(t time.Time) bool {
	return !t.IsZero() && !t.Before(r.Start) && !t.After(r.End)
}

// MonthRange covers the whole calendar month YYYY-MM in loc, ending one
// second before the next month starts.
func MonthRange(month string, loc *time.Location) (Range, error) {
	start, err := time.ParseInLocation("2006-01", month, loc)
	if err != nil {
		return Range{}, fmt.Errorf("invalid month %q (want YYYY-MM): %w", month, err)
	}
	return Range{
		Mode:  "month",
		Month: month,
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Second),
	}, nil
}

// LookbackRange covers the days before now.
func LookbackRange(now time.Time, days int) Range {
	return Range{Mode: "lookback", LookbackDays: days, Start: now.AddDate(0, 0, -days), End: now}
}

// TypeGroup maps a raw event type onto its display group.
func TypeGroup(m catalog.Market, t string) string {
	if g, ok := m.TypeGroups.Lookup(t); ok {
		return g
	}
	return defaultTypeGroup
}

// AreaGroups maps raw areas onto display groups, first occurrence order, no duplicates.
func AreaGroups(m catalog.Market, areas []string) []string {
	out := []string{}
	for _, a := range areas {
		g, ok := m.AreaGroups.Lookup(a)
		if !ok {
			g = defaultAreaGroup
		}
		if !contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
