// Package scheduler runs the pipelines on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 30 * time.Minute

// Job is a scheduled task.
type Job func(ctx context.Context) error

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

// Scheduler runs named jobs on cron expressions in a fixed location. Jobs
// never overlap: a job that fires while another runs waits for it, and a
// job whose own previous run is still going is skipped.
type Scheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	jobs      map[string]cron.EntryID
	schedules map[string]string
	timeout   time.Duration
	loc       *time.Location
	log       *slog.Logger
	base      context.Context
}

// New creates a scheduler evaluating schedules in loc.
func New(loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		timeout:   DefaultTimeout,
		loc:       loc,
		log:       log,
		base:      context.Background(),
	}
}

// SetTimeout changes the per-run deadline. Non-positive values are ignored.
func (s *Scheduler) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// AddJob schedules job under name with a five-field cron expression such
// as "0 7 * * *". An empty schedule disables the job.
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	if schedule == "" {
		s.log.Info("Job disabled", "job", name)
		return nil
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := s.cron.AddFunc(schedule, func() { _ = s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = id
	s.schedules[name] = schedule
	s.log.Info("Job scheduled", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) run(name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()

	s.log.Info("Job started", "job", name)
	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("Job failed", "job", name, "error", err, "duration", time.Since(start))
		return err
	}
	s.log.Info("Job completed", "job", name, "duration", time.Since(start))
	return nil
}

// RunNow executes job immediately, outside the cron loop.
func (s *Scheduler) RunNow(name string, job Job) error {
	return s.run(name, job)
}

// Jobs lists the scheduled jobs with their next and previous fire times.
// Before Run the next fire time is computed from now.
func (s *Scheduler) Jobs() []JobInfo {
	var infos []JobInfo
	for _, entry := range s.cron.Entries() {
		for name, id := range s.jobs {
			if id != entry.ID {
				continue
			}
			next := entry.Next
			if next.IsZero() {
				next = entry.Schedule.Next(time.Now().In(s.loc))
			}
			infos = append(infos, JobInfo{Name: name, Schedule: s.schedules[name], NextRun: next, LastRun: entry.Prev})
		}
	}
	return infos
}

// Run starts the cron loop and blocks until ctx is cancelled. Running jobs
// see the cancellation and are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.base = ctx
	s.cron.Start()
	s.log.Info("Scheduler started", "jobs", len(s.jobs))
	<-ctx.Done()
	s.log.Info("Scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
