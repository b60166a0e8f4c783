package handlers

import (
	"context"
	"fmt"
	"path/filepath"

	"newsroll/internal/cost"
	"newsroll/internal/feeds"
	"newsroll/internal/market"
	"newsroll/internal/metrics"
	"newsroll/internal/pipeline"
	"newsroll/internal/sources"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type marketOptions struct {
	dataset      string
	month        string
	lookbackDays int
	model        string
	batchSize    int
}

// NewMarketCmd creates the market command
func NewMarketCmd() *cobra.Command {
	var opts marketOptions
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Collect and classify securities-firm events",
		Long: `Collect App Store updates, DART disclosures and news mentioning the tracked
securities firms, classify them with the LLM and upsert the kept events into
public/securities/<dataset>/<YYYY-MM>.json with an index.json summary.

DART is skipped without DART_API_KEY and classification is skipped without
LLM credentials; both are recorded in source_failures.jsonl.

Examples:
  newsroll market
  newsroll market --dataset securities-updates --lookback-days 7
  newsroll market --month 2025-05 --batch-size 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runMarket(cmd.Context(), e, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataset, "dataset", market.DatasetAll, "securities-ai, securities-updates or all")
	cmd.Flags().StringVar(&opts.month, "month", "", "collect one calendar month (YYYY-MM) instead of the lookback window")
	cmd.Flags().IntVar(&opts.lookbackDays, "lookback-days", 0, "days to look back (default from config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "classification model (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "items per classification call (default from config)")
	return cmd
}

func runMarket(ctx context.Context, e *env, opts marketOptions) error {
	cfg := e.cfg
	datasets, err := market.Datasets(opts.dataset)
	if err != nil {
		return err
	}
	if opts.lookbackDays <= 0 {
		opts.lookbackDays = cfg.Market.LookbackDays
	}
	if opts.model == "" {
		opts.model = cfg.Market.Model
	}
	if opts.batchSize <= 0 {
		opts.batchSize = cfg.Market.BatchSize
	}

	collector, err := metrics.NewRunCollector()
	if err != nil {
		return err
	}
	tracker := cost.NewTracker()
	client, err := pipeline.NewLLMClient(ctx, cfg, collector, tracker, e.log)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	httpc := sources.NewHTTP(cfg.HTTPTimeout(), cfg.HTTP.UserAgent)
	runner := &market.Runner{
		AppStore: &sources.AppStore{HTTP: httpc},
		DART:     &sources.DART{HTTP: httpc, APIKey: cfg.Market.DartAPIKey},
		News:     feeds.NewReader(httpc.Client, cfg.HTTP.UserAgent, cfg.Market.RSSLimit, loc),
		Vocab:    e.catalog.Market,
		Settings: market.Settings{
			Model:     opts.model,
			BatchSize: opts.batchSize,
			Country:   cfg.Market.Country,
			RSSLimit:  cfg.Market.RSSLimit,
		},
		PublicRoot:  filepath.Join(cfg.App.PublicDir, "securities"),
		ArchiveRoot: filepath.Join(cfg.App.ArchiveDir, "securities"),
		Metrics:     collector,
		Cost:        tracker,
		Location:    loc,
		Log:         e.log,
	}
	if client.Enabled() {
		runner.LLM = client
	}

	rng, err := runner.Range(opts.month, opts.lookbackDays)
	if err != nil {
		return err
	}
	all, err := runner.Run(ctx, datasets, rng)
	if werr := collector.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		e.log.Warn("Failed to write metrics textfile", "error", werr)
	}
	for _, s := range all {
		fmt.Printf("%-20s candidates %3d · kept %3d · months %v · ~%s tokens\n",
			s.Dataset, s.Filters.Candidates, s.Output.Kept, s.Output.MonthsUpdated, humanize.Comma(int64(s.LLM.EstimatedTokens)))
	}
	if err != nil {
		return fmt.Errorf("market run failed: %w", err)
	}
	return nil
}
