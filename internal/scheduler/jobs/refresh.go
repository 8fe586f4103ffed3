package jobs

import (
	"context"
	"fmt"

	"github.com/jmellor/marginboard/internal/refresh"
	"github.com/jmellor/marginboard/pkg/logger"
)

// RefreshJob recomputes every leaderboard on a fixed cadence
type RefreshJob struct {
	runner   *refresh.Runner
	schedule string
	logger   *logger.Logger
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(runner *refresh.Runner, schedule string, log *logger.Logger) *RefreshJob {
	return &RefreshJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "leaderboard_refresh"
}

// Schedule returns the configured cron expression
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run executes one refresh run. Partial failures are reported, not
// returned; only a run that could not start at all is an error.
func (j *RefreshJob) Run(ctx context.Context) error {
	report, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("refresh run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"updated": report.Updated,
		"failed":  report.Failed,
	}).Info("Scheduled refresh finished")

	return nil
}
