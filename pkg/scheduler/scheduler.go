package scheduler

import (
	"fmt"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/config"
	"github.com/mcclellann/saccoLoan/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *JobRunner
}

// NewScheduler creates a scheduler and registers every configured job.
func NewScheduler(cfg config.SchedulerConfig, jobRunner *JobRunner) (*Scheduler, error) {
	// UTC with seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs(cfg config.SchedulerConfig) error {
	if _, err := s.cron.AddFunc(cfg.RecomputeBonuses, s.jobs.RecomputeBonuses); err != nil {
		return fmt.Errorf("register RecomputeBonuses job %q: %w", cfg.RecomputeBonuses, err)
	}
	logger.Info("Cron jobs registered", "recompute_bonuses", cfg.RecomputeBonuses)
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Next returns when the bonus recompute will next run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
