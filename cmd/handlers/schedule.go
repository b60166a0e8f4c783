package handlers

import (
	"context"
	"fmt"

	"newsroll/internal/market"
	"newsroll/internal/pipeline"
	"newsroll/internal/scheduler"

	"github.com/spf13/cobra"
)

// NewScheduleCmd creates the schedule command
func NewScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the industry, developer and market jobs on their cron schedules",
		Long: `Run as a long-lived process, firing each job on the cron expression from
the schedule section of the config in the configured timezone. Jobs run one
at a time. An empty expression disables a job. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runSchedule(cmd.Context(), e)
		},
	}
}

func runSchedule(ctx context.Context, e *env) error {
	s := scheduler.New(e.cfg.Location(), e.log)
	jobs := []struct {
		name     string
		schedule string
		job      scheduler.Job
	}{
		{"industry", e.cfg.Schedule.Industry, func(ctx context.Context) error {
			return runDomain(ctx, pipeline.DomainIndustry, nil)
		}},
		{"developer", e.cfg.Schedule.Developer, func(ctx context.Context) error {
			return runDeveloper(ctx, e)
		}},
		{"market", e.cfg.Schedule.Market, func(ctx context.Context) error {
			return runMarket(ctx, e, marketOptions{dataset: market.DatasetAll})
		}},
	}
	for _, j := range jobs {
		if err := s.AddJob(j.name, j.schedule, j.job); err != nil {
			return err
		}
	}
	for _, info := range s.Jobs() {
		fmt.Printf("%-10s %-14s next %s\n", info.Name, info.Schedule, info.NextRun.Format("2006-01-02 15:04"))
	}
	return s.Run(ctx)
}
