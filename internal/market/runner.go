package market

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"newsroll/internal/archive"
	"newsroll/internal/catalog"
	"newsroll/internal/core"
	"newsroll/internal/cost"
	"newsroll/internal/feeds"
	"newsroll/internal/metrics"
	"newsroll/internal/runstats"
	"newsroll/internal/sources"
)

// Settings tunes a market run.
type Settings struct {
	Model     string
	BatchSize int
	Country   string
	RSSLimit  int
}

// ErrorEntry is a run error attributed to a source.
type ErrorEntry struct {
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

type AppStoreStats struct {
	AppsTotal int `json:"appsTotal"`
	FetchedOK int `json:"fetchedOk"`
	Failed    int `json:"failed"`
}

type DARTFilters struct {
	Types      []string `json:"pblntf_ty"`
	LastReport string   `json:"last_reprt_at"`
}

type DARTStats struct {
	Skipped            bool        `json:"skipped,omitempty"`
	CompaniesTotal     int         `json:"companiesTotal"`
	Matched            int         `json:"matched"`
	Unmatched          int         `json:"unmatched"`
	DisclosuresFetched int         `json:"disclosuresFetched"`
	Filters            DARTFilters `json:"filters"`
}

type SourceStats struct {
	AppStore AppStoreStats `json:"app_store"`
	DART     DARTStats     `json:"dart"`
	News     NewsStats     `json:"news"`
}

type FilterStats struct {
	RawItems      int `json:"rawItems"`
	Deduped       int `json:"deduped"`
	KeywordPassed int `json:"keywordPassed"`
	Candidates    int `json:"candidates"`
}

type LLMStats struct {
	CacheHit         int     `json:"cacheHit"`
	Sent             int     `json:"sent"`
	SkippedNoKey     bool    `json:"skippedNoKey,omitempty"`
	EstimatedTokens  int     `json:"estimatedTokens,omitempty"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd,omitempty"`
}

type OutputStats struct {
	Kept          int      `json:"kept"`
	MonthsUpdated []string `json:"monthsUpdated"`
}

// Stats is the run record of one dataset.
type Stats struct {
	ID       string       `json:"id"`
	TS       string       `json:"ts"`
	Timezone string       `json:"timezone"`
	Dataset  string       `json:"dataset"`
	Range    Range        `json:"range"`
	Sources  SourceStats  `json:"sources"`
	Filters  FilterStats  `json:"filters"`
	LLM      LLMStats     `json:"llm"`
	Output   OutputStats  `json:"output"`
	Errors   []ErrorEntry `json:"errors"`
}

// Runner collects, classifies and publishes market events.
type Runner struct {
	AppStore    *sources.AppStore
	DART        *sources.DART // nil or without a key skips disclosures
	News        *feeds.Reader
	LLM         BatchGenerator // nil skips classification
	Vocab       catalog.Market
	Settings    Settings
	PublicRoot  string // <public>/securities
	ArchiveRoot string // <archive>/securities
	Metrics     *metrics.RunCollector
	Cost        *cost.Tracker // fed by the generator behind LLM
	Location    *time.Location
	Clock       func() time.Time
	Log         *slog.Logger
}

func (r *Runner) now() time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	if r.Clock != nil {
		return r.Clock().In(loc)
	}
	return time.Now().In(loc)
}

// Range returns the month range when month is set, else the lookback window.
func (r *Runner) Range(month string, lookbackDays int) (Range, error) {
	if month != "" {
		loc := r.Location
		if loc == nil {
			loc = time.UTC
		}
		rng, err := MonthRange(month, loc)
		if err != nil {
			return Range{}, err
		}
		rng.LookbackDays = lookbackDays
		return rng, nil
	}
	return LookbackRange(r.now(), lookbackDays), nil
}

// Run processes each dataset in turn and stops at the first failure.
func (r *Runner) Run(ctx context.Context, datasets []string, rng Range) ([]*Stats, error) {
	var all []*Stats
	for _, ds := range datasets {
		stats, err := r.RunDataset(ctx, ds, rng)
		all = append(all, stats)
		if err != nil {
			return all, fmt.Errorf("dataset %s: %w", ds, err)
		}
	}
	return all, nil
}

type datasetRun struct {
	*Runner
	dataset    string
	publicDir  string
	archiveDir string
	failures   *FailureLog
	stats      *Stats
	log        *slog.Logger
	started    time.Time
}

// RunDataset runs one dataset. Source and classification failures are
// logged to source_failures.jsonl and recorded in the stats; only storage
// failures abort the run. Stats are written in every case.
func (r *Runner) RunDataset(ctx context.Context, dataset string, rng Range) (*Stats, error) {
	now := r.now()
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	run := &datasetRun{
		Runner:     r,
		dataset:    dataset,
		publicDir:  filepath.Join(r.PublicRoot, dataset),
		archiveDir: filepath.Join(r.ArchiveRoot, dataset),
		log:        log.With("dataset", dataset),
		started:    now,
		stats: &Stats{
			ID:       runstats.NewID(now),
			TS:       runstats.NewID(now),
			Timezone: now.Location().String(),
			Dataset:  dataset,
			Range:    rng,
			Errors:   []ErrorEntry{},
		},
	}
	run.failures = &FailureLog{Path: filepath.Join(run.archiveDir, "source_failures.jsonl"), Now: func() time.Time { return now }}
	usageBefore := r.Cost.Summary()
	defer func() {
		usage := r.Cost.Summary().Since(usageBefore)
		run.stats.LLM.EstimatedTokens = usage.Tokens()
		run.stats.LLM.EstimatedCostUSD = usage.USD
		runstats.Flush(run.log, filepath.Join(run.publicDir, "run.json"), filepath.Join(run.publicDir, "run_history.json"), run.stats.ID, run.stats, runstats.HistoryLimit)
	}()

	if err := run.execute(ctx, rng); err != nil {
		run.stats.Errors = append(run.stats.Errors, ErrorEntry{Message: err.Error()})
		return run.stats, err
	}
	return run.stats, nil
}

func (d *datasetRun) fail(sourceType, message, company string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	d.log.Warn(message, "source", sourceType, "company", company, "error", err)
	if werr := d.failures.Append(sourceType, message, company, detail); werr != nil {
		d.log.Warn("Failed to record source failure", "error", werr)
	}
	if d.Metrics != nil {
		d.Metrics.SourceFailure(sourceType)
	}
}

func (d *datasetRun) execute(ctx context.Context, rng Range) error {
	companies, ok, err := LoadCompanies(d.publicDir)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	if !ok {
		companies = d.Vocab.Companies
	}

	var raw []Item
	raw = append(raw, d.collectApps(ctx, rng)...)
	raw = append(raw, d.collectDART(ctx, companies, rng)...)
	raw = append(raw, d.collectNews(ctx, companies, rng)...)
	if err := ctx.Err(); err != nil {
		return err
	}

	deduped := DedupeByID(raw)
	candidates := NewFilter(d.Vocab).Candidates(d.dataset, deduped)
	d.stats.Filters = FilterStats{RawItems: len(raw), Deduped: len(deduped), KeywordPassed: len(candidates), Candidates: len(candidates)}
	d.stage("raw", len(raw))
	d.stage("candidates", len(candidates))

	results, err := d.classify(ctx, candidates)
	if err != nil {
		return err
	}

	kept, cacheUpdates := d.keep(candidates, results)
	if err := AppendCache(filepath.Join(d.archiveDir, "cache.jsonl"), cacheUpdates); err != nil {
		return fmt.Errorf("failed to append cache: %w", err)
	}

	byMonth := make(map[string][]Event)
	for _, e := range kept {
		month := e.Date[:7]
		byMonth[month] = append(byMonth[month], e)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	for _, m := range months {
		if _, err := UpsertMonthFile(d.publicDir, m, byMonth[m]); err != nil {
			return fmt.Errorf("failed to update %s: %w", m, err)
		}
	}
	d.stats.Output = OutputStats{Kept: len(kept), MonthsUpdated: months}
	d.stage("kept", len(kept))

	idx, err := BuildIndex(d.publicDir, companies, d.started)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := archive.WriteJSON(filepath.Join(d.publicDir, "index.json"), idx); err != nil {
		return err
	}
	d.log.Info("Market dataset completed", "kept", len(kept), "months", months)
	return nil
}

func (d *datasetRun) stage(name string, n int) {
	if d.Metrics != nil {
		d.Metrics.StageItems(d.dataset, name, n)
	}
}

func (d *datasetRun) collectApps(ctx context.Context, rng Range) []Item {
	apps := d.Vocab.Apps
	st := AppStoreStats{AppsTotal: len(apps)}
	var items []Item
	for _, app := range apps {
		if app.TrackID == 0 || app.Company == "" {
			continue
		}
		info, err := d.AppStore.Lookup(ctx, app.TrackID, d.Settings.Country)
		if err != nil {
			st.Failed++
			d.fail(string(core.KindAppStore), "App Store fetch failed", app.Company, fmt.Errorf("trackId=%d: %w", app.TrackID, err))
			continue
		}
		st.FetchedOK++
		if item, ok := AppItem(app, info, rng, d.started.Location()); ok {
			items = append(items, item)
		}
	}
	d.stats.Sources.AppStore = st
	if d.Metrics != nil {
		d.Metrics.SourceItems("App Store", len(items))
	}
	return items
}

func (d *datasetRun) collectDART(ctx context.Context, companies []string, rng Range) []Item {
	st := DARTStats{Filters: DARTFilters{Types: DARTTypes, LastReport: DARTLastReport}}
	defer func() { d.stats.Sources.DART = st }()

	if d.DART == nil || d.DART.APIKey == "" {
		st.Skipped = true
		d.fail(string(core.KindDART), "DART_API_KEY not set; skipping DART", "", nil)
		return nil
	}

	entries, err := d.DART.CorpCodes(ctx)
	if err != nil {
		d.stats.Errors = append(d.stats.Errors, ErrorEntry{Source: "dart", Message: err.Error()})
		d.fail(string(core.KindDART), "DART fetch failed", "", err)
		return nil
	}
	codes, unmatched := sources.MatchCorpCodes(companies, entries, nil)
	if err := WriteUnmatched(d.archiveDir, unmatched); err != nil {
		d.log.Warn("Failed to write unmatched companies", "error", err)
	}
	st.CompaniesTotal, st.Matched, st.Unmatched = len(companies), len(codes), len(unmatched)

	var items []Item
	for _, company := range companies {
		code, ok := codes[company]
		if !ok {
			continue
		}
		rows, err := d.DART.ListDisclosures(ctx, code, rng.Start, rng.End, DARTTypes, DARTLastReport)
		if err != nil {
			d.fail(string(core.KindDART), "DART list failed", company, err)
		}
		for _, row := range rows {
			if item, ok := DARTItem(company, code, row, d.started.Location()); ok {
				items = append(items, item)
			}
		}
	}
	st.DisclosuresFetched = len(items)
	if d.Metrics != nil {
		d.Metrics.SourceItems("DART", len(items))
	}
	return items
}

func (d *datasetRun) collectNews(ctx context.Context, companies []string, rng Range) []Item {
	entries := FetchNews(ctx, d.News, d.Vocab.NewsSources, func(source string, err error) {
		d.fail(string(core.KindNews), "News fetch failed", "", fmt.Errorf("%s: %w", source, err))
	})
	st := NewsStats{RSSLimit: d.Settings.RSSLimit, EntriesFetched: len(entries), BySource: core.Counts{}}
	for _, e := range entries {
		name := e.Source
		if name == "" {
			name = "Unknown"
		}
		st.BySource = incr(st.BySource, name)
	}
	d.stats.Sources.News = st

	items := NewsItems(entries, rng, NewCompanyMatcher(companies, d.Vocab.CompanyAliases))
	if d.Metrics != nil {
		d.Metrics.SourceItems("News", len(items))
	}
	return items
}

func incr(c core.Counts, name string) core.Counts {
	for i := range c {
		if c[i].Name == name {
			c[i].Value++
			return c
		}
	}
	return append(c, core.Count{Name: name, Value: 1})
}

// classify returns cached results plus fresh ones for uncached candidates.
// A classification failure is recorded and yields only what was cached.
func (d *datasetRun) classify(ctx context.Context, candidates []Item) (map[string]Result, error) {
	cache, err := LoadCache(filepath.Join(d.archiveDir, "cache.jsonl"))
	if err != nil {
		return nil, err
	}
	results := make(map[string]Result, len(candidates))
	var pending []Item
	for _, item := range candidates {
		if cached, ok := cache[item.ID]; ok {
			d.stats.LLM.CacheHit++
			results[item.ID] = cached
			continue
		}
		pending = append(pending, item)
	}
	if len(pending) == 0 {
		return results, nil
	}
	if d.LLM == nil {
		d.stats.LLM.SkippedNoKey = true
		d.fail("llm", "LLM credentials not set; skipping enrichment", "", nil)
		return results, nil
	}

	d.stats.LLM.Sent = len(pending)
	batcher := &Batcher{Gen: d.LLM, Model: d.Settings.Model, Dataset: d.dataset, Vocab: d.Vocab, BatchSize: d.Settings.BatchSize}
	fresh, err := batcher.Enrich(ctx, pending)
	if d.Metrics != nil {
		d.Metrics.LLMCall("market_batch", err)
	}
	if err != nil {
		d.stats.Errors = append(d.stats.Errors, ErrorEntry{Source: "llm", Message: err.Error()})
		d.fail("llm", "LLM enrichment failed", "", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return results, nil
	}
	for id, r := range fresh {
		results[id] = r
	}
	return results, nil
}

// keep turns positive verdicts into events. Every verdict, positive or not,
// is returned for the cache.
func (d *datasetRun) keep(candidates []Item, results map[string]Result) ([]Event, []Result) {
	var kept []Event
	var updates []Result
	for _, item := range candidates {
		r, ok := results[item.ID]
		if !ok {
			continue
		}
		r.ID = item.ID
		updates = append(updates, r)
		if !r.Keep || len(item.Date) < 7 {
			continue
		}
		typ := r.TypeRaw
		if !contains(d.Vocab.Types, typ) {
			typ = defaultType
		}
		areas := []string{}
		for _, a := range r.AreasRaw {
			if contains(d.Vocab.Areas, a) {
				areas = append(areas, a)
			}
		}
		if len(areas) == 0 {
			areas = []string{defaultArea}
		}
		sourceType := string(item.SourceType)
		if sourceType == "" {
			sourceType = string(core.KindDART)
		}
		kept = append(kept, Event{
			ID:         item.ID,
			Date:       item.Date,
			Company:    item.Company,
			Title:      item.Title,
			OneLiner:   r.OneLiner,
			Type:       typ,
			Areas:      areas,
			Region:     region,
			SourceType: sourceType,
			Sources:    []EventSource{{Source: item.Source, Title: item.Title, URL: item.URL}},
			Tags:       []string{},
			Confidence: r.Confidence,
			UpdatedAt:  core.FormatDate(d.started),
		})
	}
	return kept, updates
}
