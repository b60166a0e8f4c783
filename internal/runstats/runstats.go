// Package runstats records what a pipeline run did and keeps a short
// rolling history of runs next to the published documents.
package runstats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"newsroll/internal/archive"
	"newsroll/internal/core"
)

// HistoryLimit is the default number of runs kept in the history file.
const HistoryLimit = 7

const idLayout = "2006-01-02T15:04:05.000000Z07:00"

// NewID derives a run id from the run's start time.
func NewID(now time.Time) string {
	return now.Format(idLayout)
}

// ErrorEntry is one fatal error recorded against a run.
type ErrorEntry struct {
	Message string `json:"message"`
}

// SourceTotal counts the items one adapter produced.
type SourceTotal struct {
	Total int `json:"total"`
}

// RSSTotals breaks RSS items down by feed name.
type RSSTotals struct {
	Total    int         `json:"total"`
	BySource core.Counts `json:"bySource"`
}

// SourceFailure records an adapter that failed and contributed no items.
type SourceFailure struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Sources summarises the FETCH stage.
type Sources struct {
	RSS      RSSTotals       `json:"rss"`
	HF       SourceTotal     `json:"hf"`
	HN       SourceTotal     `json:"hn"`
	Failures []SourceFailure `json:"failures,omitempty"`
}

// Pipeline holds per-stage item counts.
type Pipeline struct {
	RawTotal        int `json:"rawTotal"`
	RawClamped      int `json:"rawClamped"`
	Deduped         int `json:"deduped"`
	DedupedSelected int `json:"dedupedSelected"`
	Enriched        int `json:"enriched"`
}

// LLM counts summarizer calls by kind. Token and cost figures are estimates
// from prompt and response lengths.
type LLM struct {
	ItemCalls        int     `json:"itemCalls"`
	HighlightsCalls  int     `json:"highlightsCalls"`
	IssueCalls       int     `json:"issueCalls"`
	Fallbacks        int     `json:"fallbacks"`
	EstimatedTokens  int     `json:"estimatedTokens,omitempty"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd,omitempty"`
}

// DailyTab counts a tab's daily raw items and published cards.
type DailyTab struct {
	Raw   int `json:"raw"`
	Cards int `json:"cards"`
}

// PeriodTab counts a tab's rollup pool and issues.
type PeriodTab struct {
	Items  int `json:"items"`
	Issues int `json:"issues"`
}

// Tab is the per-tab breakdown of a run.
type Tab struct {
	Daily   DailyTab  `json:"daily"`
	Weekly  PeriodTab `json:"weekly"`
	Monthly PeriodTab `json:"monthly"`
}

// Run is the stats record of an industry or briefing run.
type Run struct {
	ID           string         `json:"id"`
	TS           string         `json:"ts"`
	Timezone     string         `json:"timezone"`
	SelectedTabs []string       `json:"selectedTabs"`
	Pipeline     Pipeline       `json:"pipeline"`
	Sources      Sources        `json:"sources"`
	LLM          LLM            `json:"llm"`
	Tabs         map[string]Tab `json:"tabs,omitempty"`
	Errors       []ErrorEntry   `json:"errors"`
}

// NewRun starts a stats record for a run beginning at now.
func NewRun(now time.Time, tabs []string) *Run {
	return &Run{
		ID:           NewID(now),
		TS:           NewID(now),
		Timezone:     now.Location().String(),
		SelectedTabs: tabs,
		Tabs:         make(map[string]Tab),
		Errors:       []ErrorEntry{},
	}
}

// Fail appends err to the run's error list.
func (r *Run) Fail(err error) {
	r.Errors = append(r.Errors, ErrorEntry{Message: err.Error()})
}

// Write stores run as the latest record and prepends it to the history,
// dropping any older entry with the same id and keeping at most limit entries.
func Write(latestPath, historyPath, id string, run any, limit int) error {
	if limit <= 0 {
		limit = HistoryLimit
	}
	if id == "" {
		id = "unknown"
	}
	current, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run stats: %w", err)
	}

	history := []json.RawMessage{current}
	for _, entry := range loadHistory(historyPath) {
		if len(history) >= limit {
			break
		}
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(entry, &head); err != nil {
			continue
		}
		if head.ID == id {
			continue
		}
		history = append(history, entry)
	}

	if err := archive.WriteJSON(latestPath, json.RawMessage(current)); err != nil {
		return err
	}
	return archive.WriteJSON(historyPath, history)
}

// loadHistory returns the object entries of the history file, or nil when the
// file is missing or not a JSON list.
func loadHistory(path string) []json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	out := entries[:0]
	for _, e := range entries {
		if len(e) > 0 && e[0] == '{' {
			out = append(out, e)
		}
	}
	return out
}

// Flush is Write for deferred use: failures are logged and never returned.
func Flush(log *slog.Logger, latestPath, historyPath, id string, run any, limit int) {
	if err := Write(latestPath, historyPath, id, run, limit); err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("Failed to write run stats", "path", latestPath, "error", err)
	}
}
