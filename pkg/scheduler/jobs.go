package scheduler

import (
	"context"
	"time"

	"github.com/mcclellann/saccoLoan/pkg/bonus"
	"github.com/mcclellann/saccoLoan/pkg/logger"
)

// BonusRecomputer is the bonus service as seen by scheduled jobs.
type BonusRecomputer interface {
	Recompute(ctx context.Context) (*bonus.RecomputeResult, error)
}

// JobRunner holds the work the scheduler triggers.
type JobRunner struct {
	bonuses BonusRecomputer
	timeout time.Duration
}

func NewJobRunner(bonuses BonusRecomputer) *JobRunner {
	return &JobRunner{bonuses: bonuses, timeout: 5 * time.Minute}
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RecomputeBonuses rescores every approved member for the current period.
func (jr *JobRunner) RecomputeBonuses() {
	jr.runWithRecovery("RecomputeBonuses", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
		defer cancel()

		result, err := jr.bonuses.Recompute(ctx)
		if err != nil {
			logger.Error("Failed to recompute bonuses", "error", err)
			return
		}
		logger.Info("Recomputed bonuses", "calculated", len(result.Bonuses), "preserved", result.Preserved)
	})
}
