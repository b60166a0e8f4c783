package handlers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"newsroll/internal/developer"
	"newsroll/internal/metrics"
	"newsroll/internal/sources"
	"newsroll/internal/topics"

	"github.com/spf13/cobra"
)

// NewDeveloperCmd creates the developer command
func NewDeveloperCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "developer",
		Short: "Build the developer radar from GitHub and Hacker News",
		Long: `Search GitHub for recently created, well-starred repositories, join them
with Hacker News discussion and recent releases, rank the clusters and write
public/developer/daily.json.

Set GITHUB_TOKEN to raise the search depth; without it a single reduced
page is fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runDeveloper(cmd.Context(), e)
		},
	}
}

func runDeveloper(ctx context.Context, e *env) error {
	cfg := e.cfg
	collector, err := metrics.NewRunCollector()
	if err != nil {
		return err
	}
	loc := cfg.Location()
	httpc := sources.NewHTTP(cfg.HTTPTimeout(), cfg.HTTP.UserAgent)
	d := cfg.Developer

	runner := &developer.Runner{
		HN: &sources.HackerNews{
			HTTP:        httpc,
			Limit:       cfg.Limits.HN,
			Window:      time.Duration(d.HNWindowHours) * time.Hour,
			PointsMin:   d.HNPointsMin,
			CommentsMin: d.HNCommentsMin,
			Loc:         loc,
		},
		GitHub: &sources.GitHub{HTTP: httpc, Token: d.GitHubToken},
		Tags:   topics.NewTagNormalizer(e.catalog.Developer.CanonicalTags, e.catalog.Developer.TagAliases),
		Settings: developer.Settings{
			SearchDays:  d.SearchDays,
			MinStars:    d.SearchMinStars,
			PerPage:     d.SearchPerPage,
			Pages:       d.SearchPages,
			ReleaseDays: d.ReleaseDays,
			MaxClusters: d.MaxClusters,
			Concurrency: developer.DefaultSettings().Concurrency,
		},
		PublicDir: filepath.Join(cfg.App.PublicDir, "developer"),
		Metrics:   collector,
		Location:  loc,
		Log:       e.log,
	}

	report, err := runner.Run(ctx)
	if werr := collector.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		e.log.Warn("Failed to write metrics textfile", "error", werr)
	}
	if err != nil {
		return fmt.Errorf("developer run failed: %w", err)
	}
	fmt.Printf("developer radar: %d clusters (%d new)\n", len(report.Clusters), report.KPIs.New)
	return nil
}
