package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"newsroll/internal/archive"
	"newsroll/internal/catalog"
	"newsroll/internal/config"
	"newsroll/internal/core"
	"newsroll/internal/cost"
	"newsroll/internal/enrich"
	"newsroll/internal/feeds"
	"newsroll/internal/llm"
	"newsroll/internal/metrics"
	"newsroll/internal/render"
	"newsroll/internal/sources"
	"newsroll/internal/store"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	cfg        *config.Config
	catalog    *catalog.Catalog
	log        *slog.Logger
	out        io.Writer
	summarizer enrich.Summarizer
	sources    SourceSet
	collector  *metrics.RunCollector
	clock      func() time.Time
}

// NewBuilder creates a builder for cfg and the keyword catalog c
func NewBuilder(cfg *config.Config, c *catalog.Catalog) *Builder {
	return &Builder{cfg: cfg, catalog: c, log: slog.Default()}
}

// WithLogger sets the structured logger
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// WithOutput sets where progress lines and the summary box are printed
func (b *Builder) WithOutput(w io.Writer) *Builder {
	b.out = w
	return b
}

// WithSummarizer overrides the configured LLM provider
func (b *Builder) WithSummarizer(s enrich.Summarizer) *Builder {
	b.summarizer = s
	return b
}

// WithSources overrides the network source set
func (b *Builder) WithSources(s SourceSet) *Builder {
	b.sources = s
	return b
}

// WithMetrics shares a collector instead of creating one per pipeline
func (b *Builder) WithMetrics(c *metrics.RunCollector) *Builder {
	b.collector = c
	return b
}

// WithClock fixes the pipeline's notion of now
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build constructs the pipeline for domain. The returned closer releases the
// card index, if one was opened.
func (b *Builder) Build(ctx context.Context, domain string) (*Pipeline, func() error, error) {
	if b.cfg == nil || b.catalog == nil {
		return nil, nil, fmt.Errorf("config and catalog are required")
	}
	if domain != DomainIndustry && domain != DomainBriefing {
		return nil, nil, fmt.Errorf("unknown pipeline domain %q", domain)
	}
	cfg := b.cfg
	log := b.log.With("component", "pipeline")
	closer := func() error { return nil }

	collector := b.collector
	if collector == nil {
		var err error
		if collector, err = metrics.NewRunCollector(); err != nil {
			return nil, nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
	}

	tracker := cost.NewTracker()
	summarizer := b.summarizer
	if summarizer == nil {
		client, err := NewLLMClient(ctx, cfg, collector, tracker, log)
		if err != nil {
			return nil, nil, err
		}
		if client.Enabled() {
			summarizer = client
		}
	}
	if summarizer != nil {
		summarizer = &meteredSummarizer{next: summarizer, metrics: collector}
	}

	docs := archive.NewStore(cfg.App.PublicDir, cfg.App.ArchiveDir, domain, log)
	opts := Options{
		Domain:          domain,
		Enricher:        enrich.New(summarizer, b.catalog, log),
		Store:           docs,
		Metrics:         collector,
		MetricsTextfile: cfg.Metrics.Textfile,
		Cost:            tracker,
		Printer:         render.NewPrinter(b.out, 4),
		Limits: Limits{
			Total:      cfg.Limits.Total,
			DailyCards: cfg.Limits.DailyCards,
			PerSource:  cfg.Limits.PerSource,
			IssuePool:  cfg.Limits.IssuePool,
			Issues:     cfg.Limits.Issues,
		},
		Windows: Windows{
			DailyHours:  cfg.Windows.DailyHours,
			WeeklyDays:  cfg.Windows.WeeklyDays,
			MonthlyDays: cfg.Windows.MonthlyDays,
		},
		Location: cfg.Location(),
		Clock:    b.clock,
		Log:      log,
	}

	if cfg.Index.Backend == config.BackendSQLite {
		index, err := store.NewCardIndex(cfg.App.DataDir)
		if err != nil {
			return nil, nil, err
		}
		opts.Cards = index
		opts.Index = index
		closer = index.Close
	}

	opts.Sources = b.sources
	if opts.Sources == nil {
		opts.Sources = b.networkSources(domain)
	}
	if domain == DomainIndustry {
		rules := b.catalog.Prefilters
		opts.Prefilter = func(tabs []string) *Prefilter { return NewPrefilter(rules, tabs) }
	}

	p, err := NewPipeline(opts)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return p, closer, nil
}

// networkSources returns the live adapters for domain. Industry runs pull the
// RSS feeds of the selected tabs plus the Hub when ai is selected; briefing
// runs pull every feed, the Hub and Hacker News.
func (b *Builder) networkSources(domain string) SourceSet {
	cfg := b.cfg
	loc := cfg.Location()
	httpc := sources.NewHTTP(cfg.HTTPTimeout(), cfg.HTTP.UserAgent)
	reader := feeds.NewReader(httpc.Client, cfg.HTTP.UserAgent, cfg.Limits.RSSPerSource, loc)
	hf := &sources.HuggingFace{HTTP: httpc, Limit: cfg.Limits.HuggingFace, Loc: loc}

	rssFetchers := func(list []catalog.Source) []sources.Fetcher {
		out := make([]sources.Fetcher, 0, len(list)+2)
		for _, s := range list {
			out = append(out, sources.NewRSSFeed(reader, feeds.Feed{Name: s.Name, URL: s.URL, Tab: s.Tab}))
		}
		return out
	}

	if domain == DomainBriefing {
		hn := &sources.HackerNews{
			HTTP:        httpc,
			Limit:       cfg.Limits.HN,
			Window:      time.Duration(cfg.Windows.DailyHours) * time.Hour,
			PointsMin:   cfg.Developer.HNPointsMin,
			CommentsMin: cfg.Developer.HNCommentsMin,
			Loc:         loc,
		}
		return func([]string) []sources.Fetcher {
			return append(rssFetchers(b.catalog.Sources.RSS), hf, hn)
		}
	}

	return func(tabs []string) []sources.Fetcher {
		out := rssFetchers(b.catalog.RSSFor(tabs))
		for _, t := range tabs {
			if t == "ai" {
				out = append(out, hf)
				break
			}
		}
		return out
	}
}

// NewLLMClient builds the configured provider client. Missing credentials are
// not an error: the returned client is disabled and callers fall back.
// Calls are timed into collector and costed into tracker when those are set.
func NewLLMClient(ctx context.Context, cfg *config.Config, collector *metrics.RunCollector, tracker *cost.Tracker, log *slog.Logger) (*llm.Client, error) {
	gen, err := llm.NewGenerator(ctx, cfg.LLMSettings())
	switch {
	case errors.Is(err, llm.ErrNoCredentials):
		log.Warn("No LLM credentials configured, using fallback enrichment", "provider", cfg.LLM.Provider)
		gen = nil
	case err != nil:
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	gen = cost.NewMeteredGenerator(gen, tracker)
	if gen != nil && collector != nil {
		gen = llm.NewObservedGenerator(gen, collector.ModelLatency, log)
	}
	return llm.NewClient(gen, cfg.LLMOptions()), nil
}

// meteredSummarizer counts summarizer calls by kind and outcome.
type meteredSummarizer struct {
	next    enrich.Summarizer
	metrics *metrics.RunCollector
}

func (m *meteredSummarizer) SummarizeItem(ctx context.Context, item core.RawItem, taxonomy []string) (core.Enrichment, error) {
	e, err := m.next.SummarizeItem(ctx, item, taxonomy)
	m.metrics.LLMCall("item", err)
	return e, err
}

func (m *meteredSummarizer) SummarizeIssues(ctx context.Context, items []core.EnrichedItem, tab string, maxIssues int) ([]core.Issue, error) {
	issues, err := m.next.SummarizeIssues(ctx, items, tab, maxIssues)
	m.metrics.LLMCall("issues", err)
	return issues, err
}

func (m *meteredSummarizer) SummarizeHighlights(ctx context.Context, items []core.EnrichedItem, tab string, lines int) ([]string, error) {
	bullets, err := m.next.SummarizeHighlights(ctx, items, tab, lines)
	m.metrics.LLMCall("highlights", err)
	return bullets, err
}
