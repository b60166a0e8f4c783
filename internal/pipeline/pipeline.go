package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"newsroll/internal/aggregate"
	"newsroll/internal/archive"
	"newsroll/internal/core"
	"newsroll/internal/cost"
	"newsroll/internal/dedupe"
	"newsroll/internal/enrich"
	"newsroll/internal/metrics"
	"newsroll/internal/render"
	"newsroll/internal/runstats"
	"newsroll/internal/selection"
	"newsroll/internal/sources"
)

// Domains served by the pipeline.
const (
	DomainIndustry = "industry"
	DomainBriefing = "briefing"
)

// Stage names, used for logging and metrics.
const (
	StageFetch  = "fetch"
	StageDedupe = "dedupe"
	StageEnrich = "enrich"
	StageTabs   = "tabs"
	StageDone   = "done"
)

// Limits caps each selection step.
type Limits struct {
	Total      int // Raw items kept after fetch
	DailyCards int
	PerSource  int
	IssuePool  int
	Issues     int
}

// DefaultLimits returns the production caps.
func DefaultLimits() Limits {
	return Limits{Total: 150, DailyCards: 5, PerSource: 2, IssuePool: 8, Issues: 5}
}

// Windows sizes the report periods.
type Windows struct {
	DailyHours  int
	WeeklyDays  int
	MonthlyDays int
}

// DefaultWindows returns 24 hours, 7 days and 30 days.
func DefaultWindows() Windows {
	return Windows{DailyHours: 24, WeeklyDays: 7, MonthlyDays: 30}
}

// Options wires a Pipeline. Sources, Enricher and Store are required.
type Options struct {
	Domain          string
	Sources         SourceSet
	Prefilter       func(tabs []string) *Prefilter // nil disables prefiltering
	Enricher        *enrich.Enricher
	Store           DocumentStore
	Cards           CardSource  // Rollup read path; defaults to Store
	Index           CardIndexer // Optional secondary copy of daily cards
	Metrics         *metrics.RunCollector
	MetricsTextfile string
	Cost            *cost.Tracker // Optional LLM usage estimate
	Printer         *render.Printer
	Limits          Limits
	Windows         Windows
	Concurrency     int
	FetchTimeout    time.Duration // Bound on the whole fetch stage; 0 uses the manager default
	Location        *time.Location
	Clock           func() time.Time
	Log             *slog.Logger
}

// Pipeline runs fetch, dedupe, enrich and per-tab report generation for
// one domain.
type Pipeline struct {
	opts    Options
	manager *sources.Manager
	log     *slog.Logger
}

// NewPipeline validates opts and fills in defaults.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Sources == nil {
		return nil, fmt.Errorf("pipeline: a source set is required")
	}
	if opts.Enricher == nil {
		return nil, fmt.Errorf("pipeline: an enricher is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: a document store is required")
	}
	if opts.Domain == "" {
		opts.Domain = DomainIndustry
	}
	if opts.Cards == nil {
		opts.Cards = opts.Store
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.Windows == (Windows{}) {
		opts.Windows = DefaultWindows()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Printer == nil {
		opts.Printer = render.NewPrinter(nil, 0)
	}
	log := opts.Log.With("domain", opts.Domain)
	return &Pipeline{opts: opts, manager: sources.NewManager(log), log: log}, nil
}

func (p *Pipeline) now() time.Time {
	return p.opts.Clock().In(p.opts.Location)
}

type window struct {
	now, daily, weekly, monthly time.Time
}

func (p *Pipeline) windows(now time.Time) window {
	w := p.opts.Windows
	return window{
		now:     now,
		daily:   now.Add(-time.Duration(w.DailyHours) * time.Hour),
		weekly:  now.AddDate(0, 0, -(w.WeeklyDays - 1)),
		monthly: now.AddDate(0, 0, -(w.MonthlyDays - 1)),
	}
}

// Run executes the full pipeline for tabs and returns the run record. The
// record is written to run.json and run_history.json whether or not the run
// succeeds; a write failure there never fails the run.
func (p *Pipeline) Run(ctx context.Context, tabs []string) (*runstats.Run, error) {
	now := p.now()
	run := runstats.NewRun(now, tabs)
	usageBefore := p.opts.Cost.Summary()
	defer func() {
		p.recordCost(run, usageBefore)
		p.flush(run)
	}()

	p.log.Info("Starting pipeline run", "run_id", run.ID, "tabs", tabs)
	if err := p.run(ctx, now, tabs, run, usageBefore); err != nil {
		p.log.Error("Pipeline run failed", "run_id", run.ID, "error", err)
		run.Fail(err)
		return run, err
	}
	p.log.Info("Pipeline run completed", "run_id", run.ID)
	return run, nil
}

func (p *Pipeline) run(ctx context.Context, now time.Time, tabs []string, run *runstats.Run, usageBefore cost.Summary) error {
	out := p.opts.Printer
	selected := make(map[string]bool, len(tabs))
	for _, t := range tabs {
		selected[t] = true
	}

	// FETCH
	out.Step("Fetching sources for %d tab(s)", len(tabs))
	stop := p.stage(StageFetch)
	raw := p.fetch(ctx, tabs, run)
	stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Pipeline.RawTotal = len(raw)
	if len(raw) > p.opts.Limits.Total && p.opts.Limits.Total > 0 {
		raw = raw[:p.opts.Limits.Total]
	}
	run.Pipeline.RawClamped = len(raw)
	p.countStage("raw", len(raw))
	out.Done("%d raw items (%d after clamp)", run.Pipeline.RawTotal, run.Pipeline.RawClamped)

	// DEDUPE
	out.Step("Deduplicating")
	deduped := dedupe.Dedupe(raw)
	run.Pipeline.Deduped = len(deduped)
	kept := deduped[:0:0]
	for _, item := range deduped {
		if selected[item.TabOrDefault()] {
			kept = append(kept, item)
		}
	}
	run.Pipeline.DedupedSelected = len(kept)
	p.countStage("deduped", len(kept))
	out.Done("%d unique items, %d in selected tabs", len(deduped), len(kept))

	// ENRICH
	out.Step("Enriching %d items", len(kept))
	stop = p.stage(StageEnrich)
	fallbacksBefore, callsBefore := p.opts.Enricher.Fallbacks(), p.opts.Enricher.ItemCalls()
	enriched := p.opts.Enricher.EnrichAll(ctx, kept)
	run.LLM.ItemCalls = p.opts.Enricher.ItemCalls() - callsBefore
	stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Pipeline.Enriched = len(enriched)
	run.LLM.Fallbacks = p.opts.Enricher.Fallbacks() - fallbacksBefore
	p.countStage("enriched", len(enriched))
	out.Done("%d enriched (%d fallbacks)", len(enriched), run.LLM.Fallbacks)

	// Per tab
	out.Step("Building reports")
	stop = p.stage(StageTabs)
	defer stop()
	w := p.windows(now)
	rawByTab := make(map[string][]core.RawItem, len(tabs))
	for _, item := range raw {
		if tab := item.TabOrDefault(); selected[tab] {
			rawByTab[tab] = append(rawByTab[tab], item)
		}
	}
	enrichedByTab := selection.GroupByTab(enriched, tabs)

	for _, tab := range tabs {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats, err := p.processTab(ctx, tab, w, rawByTab[tab], enrichedByTab[tab], run)
		if err != nil {
			return fmt.Errorf("tab %s: %w", tab, err)
		}
		run.Tabs[tab] = stats
		out.Done("%s: %d cards, %d weekly / %d monthly items", tab, stats.Daily.Cards, stats.Weekly.Items, stats.Monthly.Items)
	}

	// DONE
	p.recordCost(run, usageBefore)
	p.finish(run)
	return nil
}

// fetch runs the source set, applies the prefilter and records source totals.
func (p *Pipeline) fetch(ctx context.Context, tabs []string, run *runstats.Run) []core.RawItem {
	fetchers := p.opts.Sources(tabs)
	opts := sources.DefaultAggregateOptions()
	if p.opts.Concurrency > 0 {
		opts.MaxConcurrency = p.opts.Concurrency
	}
	if p.opts.FetchTimeout > 0 {
		opts.Timeout = p.opts.FetchTimeout
	}
	result := p.manager.Aggregate(ctx, fetchers, opts)

	for _, res := range result.Results {
		if p.opts.Metrics != nil {
			p.opts.Metrics.SourceItems(res.Name, len(res.Items))
		}
		if res.Err != nil {
			run.Sources.Failures = append(run.Sources.Failures, runstats.SourceFailure{Source: res.Name, Message: res.Err.Error()})
			if p.opts.Metrics != nil {
				p.opts.Metrics.SourceFailure(res.Name)
			}
			p.opts.Printer.Warn("%s failed: %v", res.Name, res.Err)
		}
	}

	items := result.Items()
	if p.opts.Prefilter != nil {
		if pf := p.opts.Prefilter(tabs); pf != nil {
			var report PrefilterReport
			items, report = pf.Apply(items)
			if report.FinanceTotal > 0 {
				p.log.Info("Finance policy prefilter", "kept", report.FinanceKept, "total", report.FinanceTotal)
			}
			if report.RealEstateTotal > 0 {
				p.log.Info("Real-estate policy prefilter", "kept", report.RealEstateKept, "total", report.RealEstateTotal)
			}
		}
	}

	rss := runstats.RSSTotals{}
	for _, item := range items {
		switch item.Kind {
		case core.KindRSS:
			rss.Total++
			name := item.Source
			if name == "" {
				name = selection.UnknownSource
			}
			rss.BySource = incr(rss.BySource, name)
		case core.KindHuggingFace:
			run.Sources.HF.Total++
		case core.KindHN:
			run.Sources.HN.Total++
		}
	}
	run.Sources.RSS = rss
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

// processTab builds and writes the daily, weekly and monthly documents of one tab.
func (p *Pipeline) processTab(ctx context.Context, tab string, w window, raw []core.RawItem, items []core.EnrichedItem, run *runstats.Run) (runstats.Tab, error) {
	daily := selection.SortByImportance(selection.FilterByRange(items, w.daily, w.now))
	rawDaily := 0
	for _, item := range raw {
		if !item.PublishedAt.IsZero() && !item.PublishedAt.Before(w.daily) && !item.PublishedAt.After(w.now) {
			rawDaily++
		}
	}

	report, called := p.buildDaily(ctx, tab, daily, rawDaily, w.now)
	if called {
		run.LLM.HighlightsCalls++
	}
	if err := p.opts.Store.WriteLatest(tab, "daily.json", report); err != nil {
		return runstats.Tab{}, err
	}
	if err := p.opts.Store.WriteArchive(tab, w.now, archive.PeriodDaily, report); err != nil {
		return runstats.Tab{}, err
	}
	if p.opts.Index != nil {
		if err := p.opts.Index.PutDaily(tab, report.Date, report.Cards); err != nil {
			p.log.Warn("Failed to index daily cards", "tab", tab, "error", err)
		}
	}

	rollup, err := p.rollupTab(ctx, tab, w)
	if err != nil {
		return runstats.Tab{}, err
	}
	run.LLM.IssueCalls += rollup.issueCalls

	return runstats.Tab{
		Daily:   runstats.DailyTab{Raw: rawDaily, Cards: len(report.Cards)},
		Weekly:  rollup.weekly,
		Monthly: rollup.monthly,
	}, nil
}

// buildDaily selects the day's cards and their highlight bullets. called
// reports whether the summarizer was asked for the bullets.
func (p *Pipeline) buildDaily(ctx context.Context, tab string, items []core.EnrichedItem, rawCount int, now time.Time) (core.DailyReport, bool) {
	picked := selection.SelectBySourceCap(items, p.opts.Limits.DailyCards, p.opts.Limits.PerSource)
	cards := aggregate.BuildCards(picked, tab)
	highlights := aggregate.DailySummary(items, rawCount)
	bullets, called := p.opts.Enricher.Highlights(ctx, picked, tab, highlights.Bullets, enrich.HighlightLines(len(cards)))
	highlights.Bullets = bullets
	return core.DailyReport{
		Date:       core.FormatDate(now),
		Highlights: highlights,
		Cards:      cards,
	}, called
}

type rollupResult struct {
	weekly, monthly runstats.PeriodTab
	issueCalls      int
}

// rollupTab rebuilds the weekly and monthly documents from archived daily cards.
func (p *Pipeline) rollupTab(ctx context.Context, tab string, w window) (rollupResult, error) {
	var res rollupResult
	pool, err := p.opts.Cards.LoadDailyItems(tab, w.monthly, w.now)
	if err != nil {
		return res, fmt.Errorf("failed to load archived cards: %w", err)
	}
	weeklyItems := selection.SortByImportance(selection.FilterByRange(pool, w.weekly, w.now))
	monthlyItems := selection.SortByImportance(selection.FilterByRange(pool, w.monthly, w.now))
	p.log.Debug("Rollup pools loaded", "tab", tab, "weekly", len(weeklyItems), "monthly", len(monthlyItems))

	limits := p.opts.Limits
	weeklyIssues, called := p.opts.Enricher.Issues(ctx, selection.PickDiverse(weeklyItems, limits.IssuePool), tab, limits.Issues)
	if called {
		res.issueCalls++
	}
	monthlyIssues, called := p.opts.Enricher.Issues(ctx, selection.PickDiverse(monthlyItems, limits.IssuePool), tab, limits.Issues)
	if called {
		res.issueCalls++
	}

	weekly := aggregate.BuildWeekly(weeklyItems, len(weeklyItems), w.weekly, w.now, weeklyIssues)
	monthly := aggregate.BuildMonthly(monthlyItems, len(monthlyItems), w.monthly, w.now, monthlyIssues)

	writes := []struct {
		name   string
		period string
		doc    any
	}{
		{"weekly.json", archive.PeriodWeekly, weekly},
		{"monthly.json", archive.PeriodMonthly, monthly},
	}
	for _, wr := range writes {
		if err := p.opts.Store.WriteLatest(tab, wr.name, wr.doc); err != nil {
			return res, err
		}
		if err := p.opts.Store.WriteArchive(tab, w.now, wr.period, wr.doc); err != nil {
			return res, err
		}
	}

	res.weekly = runstats.PeriodTab{Items: len(weeklyItems), Issues: len(weeklyIssues)}
	res.monthly = runstats.PeriodTab{Items: len(monthlyItems), Issues: len(monthlyIssues)}
	return res, nil
}

// Rollup regenerates weekly and monthly documents from the archive alone.
func (p *Pipeline) Rollup(ctx context.Context, tabs []string) (map[string]runstats.Tab, error) {
	w := p.windows(p.now())
	out := make(map[string]runstats.Tab, len(tabs))
	p.opts.Printer.Step("Rebuilding rollups for %d tab(s)", len(tabs))
	for _, tab := range tabs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rollup, err := p.rollupTab(ctx, tab, w)
		if err != nil {
			return out, fmt.Errorf("tab %s: %w", tab, err)
		}
		out[tab] = runstats.Tab{Weekly: rollup.weekly, Monthly: rollup.monthly}
		p.opts.Printer.Done("%s: %d weekly / %d monthly items", tab, rollup.weekly.Items, rollup.monthly.Items)
	}
	return out, nil
}

func (p *Pipeline) finish(run *runstats.Run) {
	rows := []render.Row{
		{Label: "raw", Value: strconv.Itoa(run.Pipeline.RawTotal)},
		{Label: "clamped", Value: strconv.Itoa(run.Pipeline.RawClamped)},
		{Label: "deduped", Value: strconv.Itoa(run.Pipeline.DedupedSelected)},
		{Label: "enriched", Value: strconv.Itoa(run.Pipeline.Enriched)},
		{Label: "llm fallbacks", Value: strconv.Itoa(run.LLM.Fallbacks)},
	}
	if run.LLM.EstimatedTokens > 0 {
		rows = append(rows, render.Row{
			Label: "llm usage",
			Value: fmt.Sprintf("~%s tokens · ~$%.4f", humanize.Comma(int64(run.LLM.EstimatedTokens)), run.LLM.EstimatedCostUSD),
		})
	}
	for _, tab := range run.SelectedTabs {
		stats := run.Tabs[tab]
		rows = append(rows, render.Row{
			Label: tab,
			Value: fmt.Sprintf("%d cards · %d/%d issues", stats.Daily.Cards, stats.Weekly.Issues, stats.Monthly.Issues),
		})
	}
	var failures []string
	for _, f := range run.Sources.Failures {
		failures = append(failures, f.Source+": "+f.Message)
	}
	p.opts.Printer.PrintSummary(p.opts.Domain+" run "+run.ID, rows, failures)
}

// recordCost stores the usage accumulated since before in the run record.
func (p *Pipeline) recordCost(run *runstats.Run, before cost.Summary) {
	delta := p.opts.Cost.Summary().Since(before)
	run.LLM.EstimatedTokens = delta.Tokens()
	run.LLM.EstimatedCostUSD = math.Round(delta.USD*1e6) / 1e6
}

// flush writes the run record and, when configured, the metrics textfile.
func (p *Pipeline) flush(run *runstats.Run) {
	dir := p.opts.Store.PublicDir()
	runstats.Flush(p.log, filepath.Join(dir, "run.json"), filepath.Join(dir, "run_history.json"), run.ID, run, runstats.HistoryLimit)
	if p.opts.Metrics != nil {
		if err := p.opts.Metrics.WriteTextfile(p.opts.MetricsTextfile); err != nil {
			p.log.Warn("Failed to write metrics", "error", err)
		}
	}
}

func (p *Pipeline) stage(name string) func() {
	if p.opts.Metrics == nil {
		return func() {}
	}
	return p.opts.Metrics.Stage(name)
}

func (p *Pipeline) countStage(stage string, n int) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.StageItems(p.opts.Domain, stage, n)
	}
}
