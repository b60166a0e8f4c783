package developer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"newsroll/internal/archive"
	"newsroll/internal/core"
	"newsroll/internal/metrics"
	"newsroll/internal/runstats"
	"newsroll/internal/sources"
	"newsroll/internal/topics"
)

const domain = "developer"

// Settings tunes discovery and ranking.
type Settings struct {
	SearchDays  int
	MinStars    int
	PerPage     int
	Pages       int
	ReleaseDays int
	MaxClusters int
	// Concurrency bounds parallel repository lookups.
	Concurrency int
}

// DefaultSettings mirrors the production configuration.
func DefaultSettings() Settings {
	return Settings{SearchDays: 7, MinStars: 50, PerPage: 30, Pages: 2, ReleaseDays: 7, MaxClusters: 20, Concurrency: 4}
}

// Stats is the developer run record written to run.json.
type Stats struct {
	ID       string                `json:"id"`
	TS       string                `json:"ts"`
	Timezone string                `json:"timezone"`
	Sources  StatsSources          `json:"sources"`
	Filters  map[string]any        `json:"filters"`
	Output   StatsOutput           `json:"output"`
	Errors   []runstats.ErrorEntry `json:"errors"`
}

type StatsSources struct {
	HN           HNStats     `json:"hn"`
	GitHubSearch SearchStats `json:"github_search"`
}

type HNStats struct {
	Items int `json:"items"`
}

type SearchStats struct {
	Items    int    `json:"items"`
	Since    string `json:"since"`
	MinStars int    `json:"minStars"`
}

type StatsOutput struct {
	Clusters int `json:"clusters"`
	New      int `json:"new"`
}

// Runner produces public/developer/daily.json.
type Runner struct {
	HN        *sources.HackerNews
	GitHub    *sources.GitHub
	Tags      *topics.TagNormalizer
	Settings  Settings
	PublicDir string // <public>/developer
	Metrics   *metrics.RunCollector
	Location  *time.Location
	Clock     func() time.Time
	Log       *slog.Logger
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

func (r *Runner) log() *slog.Logger {
	if r.Log == nil {
		return slog.Default()
	}
	return r.Log
}

// Run fetches, ranks and writes the radar. Source failures are recorded in
// the run stats and leave that source empty; only a write failure is returned.
func (r *Runner) Run(ctx context.Context) (core.DeveloperReport, error) {
	now := r.now()
	log := r.log().With("domain", domain)
	stats := &Stats{
		ID:       runstats.NewID(now),
		TS:       runstats.NewID(now),
		Timezone: now.Location().String(),
		Filters:  map[string]any{},
		Errors:   []runstats.ErrorEntry{},
	}
	defer func() {
		runstats.Flush(log, filepath.Join(r.PublicDir, "run.json"), filepath.Join(r.PublicDir, "run_history.json"), stats.ID, stats, runstats.HistoryLimit)
	}()

	report, err := r.run(ctx, now, stats, log)
	if err != nil {
		stats.Errors = append(stats.Errors, runstats.ErrorEntry{Message: err.Error()})
		return report, err
	}
	return report, nil
}

func (r *Runner) run(ctx context.Context, now time.Time, stats *Stats, log *slog.Logger) (core.DeveloperReport, error) {
	s := r.Settings

	stories, err := r.HN.Stories(ctx)
	if err != nil {
		log.Warn("Hacker News fetch failed", "error", err)
		r.recordFailure(stats, r.HN.Name(), err)
	}
	stats.Sources.HN.Items = len(stories)
	if r.Metrics != nil {
		r.Metrics.SourceItems(r.HN.Name(), len(stories))
	}

	byRepo := make(map[string][]sources.HNStory)
	var other []sources.HNStory
	for _, story := range stories {
		if owner, name, ok := sources.ParseRepoURL(story.Item.URL); ok {
			key := owner + "/" + name
			byRepo[key] = append(byRepo[key], story)
			continue
		}
		other = append(other, story)
	}

	pages, perPage := s.Pages, s.PerPage
	if r.GitHub.Token == "" {
		// Unauthenticated search is rate limited to a handful of calls.
		pages, perPage = 1, min(10, s.PerPage)
	}
	since := core.FormatDate(now.AddDate(0, 0, -s.SearchDays))
	repos, err := r.GitHub.SearchRecent(ctx, since, s.MinStars, perPage, pages)
	if err != nil {
		log.Warn("GitHub search failed", "error", err)
		r.recordFailure(stats, "GitHub", err)
	}
	stats.Sources.GitHubSearch = SearchStats{Items: len(repos), Since: since, MinStars: s.MinStars}
	if r.Metrics != nil {
		r.Metrics.SourceItems("GitHub", len(repos))
	}

	keySet := make(map[string]bool)
	for _, repo := range repos {
		if repo.FullName != "" {
			keySet[repo.FullName] = true
		}
	}
	for key := range byRepo {
		keySet[key] = true
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clusters := r.repoClusters(ctx, keys, byRepo, now, log)
	if err := ctx.Err(); err != nil {
		return core.DeveloperReport{}, err
	}
	for _, story := range other {
		clusters = append(clusters, HNCluster(story, now, r.Tags))
	}

	dailyPath := filepath.Join(r.PublicDir, "daily.json")
	report := Build(clusters, loadPreviousIDs(dailyPath, log), s.MaxClusters, core.FormatDate(now))
	if err := archive.WriteJSON(dailyPath, report); err != nil {
		return report, fmt.Errorf("failed to write radar: %w", err)
	}
	stats.Output = StatsOutput{Clusters: report.KPIs.Clusters, New: report.KPIs.New}
	if r.Metrics != nil {
		r.Metrics.StageItems(domain, "clusters", len(report.Clusters))
	}
	log.Info("Developer radar written", "clusters", report.KPIs.Clusters, "new", report.KPIs.New, "path", dailyPath)
	return report, nil
}

// repoClusters looks up each repository and its latest release, keeping the
// order of keys. Missing repositories and failed lookups are skipped.
func (r *Runner) repoClusters(ctx context.Context, keys []string, byRepo map[string][]sources.HNStory, now time.Time, log *slog.Logger) []core.Cluster {
	slots := make([]*core.Cluster, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Settings.Concurrency))

	for i, key := range keys {
		owner, name, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		g.Go(func() error {
			repo, err := r.GitHub.Repo(gctx, owner, name)
			if err != nil {
				log.Warn("Repository lookup failed", "repo", key, "error", err)
				return nil
			}
			if repo == nil {
				return nil
			}
			release, err := r.GitHub.LatestRelease(gctx, owner, name)
			if err != nil {
				log.Debug("Release lookup failed", "repo", key, "error", err)
				release = nil
			}
			c := RepoCluster(*repo, release, byRepo[key], now, r.Settings.ReleaseDays, r.Tags)
			slots[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	out := make([]core.Cluster, 0, len(keys))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func (r *Runner) recordFailure(stats *Stats, source string, err error) {
	stats.Errors = append(stats.Errors, runstats.ErrorEntry{Message: source + ": " + err.Error()})
	if r.Metrics != nil {
		r.Metrics.SourceFailure(source)
	}
}

// loadPreviousIDs returns the cluster ids of the last published radar.
func loadPreviousIDs(path string, log *slog.Logger) map[string]bool {
	var prev core.DeveloperReport
	if err := archive.ReadJSON(path, &prev); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Ignoring unreadable previous radar", "path", path, "error", err)
		}
		return map[string]bool{}
	}
	ids := make(map[string]bool, len(prev.Clusters))
	for _, c := range prev.Clusters {
		if c.ID != "" {
			ids[c.ID] = true
		}
	}
	return ids
}
