/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"newsroll/internal/catalog"
	"newsroll/internal/config"
	"newsroll/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string

// env is what every command needs once configuration has loaded.
type env struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	log     *slog.Logger
}

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsroll",
		Short: "Aggregate industry news, a developer radar and securities events into static JSON",
		Long: `newsroll collects RSS feeds, the Hugging Face Hub, Hacker News, GitHub,
the App Store, DART disclosures and news feeds, enriches the items with an
LLM and publishes daily, weekly and monthly JSON documents for a static site.

Examples:
  newsroll industry --tabs ai,finance
  newsroll briefing
  newsroll developer
  newsroll market --dataset all --lookback-days 3
  newsroll prune --keep-days 90 --dry-run
  newsroll schedule`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.newsroll.yaml or $HOME/.newsroll.yaml)")

	rootCmd.AddCommand(NewIndustryCmd())
	rootCmd.AddCommand(NewBriefingCmd())
	rootCmd.AddCommand(NewRollupCmd())
	rootCmd.AddCommand(NewDeveloperCmd())
	rootCmd.AddCommand(NewMarketCmd())
	rootCmd.AddCommand(NewPruneCmd())
	rootCmd.AddCommand(NewScheduleCmd())

	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// loadEnv reads configuration, configures logging and loads the catalog.
func loadEnv() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return nil, err
	}
	log := logger.Get()

	c, err := catalog.Load(cfg.App.Catalog)
	if err != nil {
		return nil, err
	}
	if cfg.App.Catalog != "" {
		log.Debug("Using catalog file", "path", cfg.App.Catalog)
	}
	return &env{cfg: cfg, catalog: c, log: log}, nil
}
