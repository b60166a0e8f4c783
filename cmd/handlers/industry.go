package handlers

import (
	"context"
	"fmt"
	"os"

	"newsroll/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewIndustryCmd creates the industry command
func NewIndustryCmd() *cobra.Command {
	var tabs []string
	cmd := &cobra.Command{
		Use:   "industry",
		Short: "Build the industry news reports for the selected tabs",
		Long: `Fetch the RSS feeds of the selected tabs (and the Hugging Face Hub for ai),
drop off-topic finance and real-estate items, deduplicate, enrich with the
LLM and write daily, weekly and monthly reports under public/ and archive/.

Examples:
  newsroll industry
  newsroll industry --tabs ai,finance
  newsroll industry --tabs ai --tabs ev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDomain(cmd.Context(), pipeline.DomainIndustry, tabs)
		},
	}
	cmd.Flags().StringSliceVar(&tabs, "tabs", nil, "tabs to build (default: all)")
	return cmd
}

// NewBriefingCmd creates the briefing command
func NewBriefingCmd() *cobra.Command {
	var tabs []string
	cmd := &cobra.Command{
		Use:   "briefing",
		Short: "Build the general briefing from every feed, the Hub and Hacker News",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDomain(cmd.Context(), pipeline.DomainBriefing, tabs)
		},
	}
	cmd.Flags().StringSliceVar(&tabs, "tabs", nil, "tabs to build (default: all)")
	return cmd
}

func runDomain(ctx context.Context, domain string, tabValues []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	tabs, err := ParseTabs(e.catalog, tabValues)
	if err != nil {
		return err
	}
	p, closer, err := pipeline.NewBuilder(e.cfg, e.catalog).
		WithLogger(e.log).
		WithOutput(os.Stdout).
		Build(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = closer() }()

	if _, err := p.Run(ctx, tabs); err != nil {
		return fmt.Errorf("%s run failed: %w", domain, err)
	}
	return nil
}

// NewRollupCmd creates the rollup command
func NewRollupCmd() *cobra.Command {
	var (
		tabs   []string
		domain string
	)
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Rebuild weekly and monthly reports from archived daily reports",
		Long: `Rebuild the weekly and monthly reports of the selected tabs from the daily
archive without fetching anything. Useful after editing archived days or
changing the window sizes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollup(cmd.Context(), domain, tabs)
		},
	}
	cmd.Flags().StringSliceVar(&tabs, "tabs", nil, "tabs to roll up (default: all)")
	cmd.Flags().StringVar(&domain, "domain", pipeline.DomainIndustry, "domain to roll up (industry or briefing)")
	return cmd
}

func runRollup(ctx context.Context, domain string, tabValues []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	tabs, err := ParseTabs(e.catalog, tabValues)
	if err != nil {
		return err
	}
	p, closer, err := pipeline.NewBuilder(e.cfg, e.catalog).
		WithLogger(e.log).
		WithOutput(os.Stdout).
		Build(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = closer() }()

	result, err := p.Rollup(ctx, tabs)
	if err != nil {
		return err
	}
	for _, tab := range tabs {
		t := result[tab]
		fmt.Printf("%-12s weekly %3d items %d issues · monthly %3d items %d issues\n",
			tab, t.Weekly.Items, t.Weekly.Issues, t.Monthly.Items, t.Monthly.Issues)
	}
	return nil
}
