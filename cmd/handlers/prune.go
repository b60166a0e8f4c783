package handlers

import (
	"fmt"
	"path/filepath"
	"time"

	"newsroll/internal/archive"
	"newsroll/internal/config"
	"newsroll/internal/store"

	"github.com/spf13/cobra"
)

// NewPruneCmd creates the prune command
func NewPruneCmd() *cobra.Command {
	var (
		keepDays    int
		tabValues   []string
		dryRun      bool
		archiveRoot string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived industry snapshots older than --keep-days",
		Long: `Delete dated archive files (YYYY-MM-DD_*.json) older than today minus
--keep-days and remove the directories left empty. With the sqlite index
backend the matching index rows are deleted too.

Examples:
  newsroll prune --keep-days 90
  newsroll prune --tabs ai,ev --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			tabs, err := ParseTabs(e.catalog, tabValues)
			if err != nil {
				return err
			}
			if archiveRoot == "" {
				archiveRoot = filepath.Join(e.cfg.App.ArchiveDir, "industry")
			}
			today := time.Now().In(e.cfg.Location())

			result, err := archive.Prune(archiveRoot, tabs, keepDays, today, dryRun, e.log)
			if err != nil {
				return err
			}
			fmt.Printf("[prune] keep_days=%d cutoff=%s scanned=%d deleted=%d dry_run=%t\n",
				keepDays, result.Cutoff, result.Scanned, result.Deleted, dryRun)

			if e.cfg.Index.Backend != config.BackendSQLite || dryRun {
				return nil
			}
			index, err := store.NewCardIndex(e.cfg.App.DataDir)
			if err != nil {
				return err
			}
			defer func() { _ = index.Close() }()
			rows, err := index.Prune(result.Cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune card index: %w", err)
			}
			fmt.Printf("[prune] index rows deleted=%d\n", rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepDays, "keep-days", 90, "days of archives to keep")
	cmd.Flags().StringSliceVar(&tabValues, "tabs", nil, "tabs to prune (default: all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report deletions without removing files")
	cmd.Flags().StringVar(&archiveRoot, "archive-root", "", "archive root (default <archive_dir>/industry)")
	return cmd
}
