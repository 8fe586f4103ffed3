package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmellor/marginboard/internal/scheduler"
	"github.com/jmellor/marginboard/internal/scheduler/jobs"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the refresh scheduler daemon",
	Long: `Start the scheduler and recompute the leaderboards on the
configured cadence (REFRESH_SCHEDULE, default every six hours).

The first run fires immediately so a fresh deployment serves data
without waiting for the next cron tick.

Example:
  go run ./cmd/marginboard schedule`,
	RunE: runScheduleDaemon,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleDaemon(cmd *cobra.Command, args []string) error {
	rt, closeRuntime, err := buildRuntime()
	if err != nil {
		return err
	}
	defer closeRuntime()

	sched := scheduler.New(rt.log)

	job := jobs.NewRefreshJob(rt.runner, rt.cfg.Refresh.Schedule, rt.log)
	if err := sched.AddJob(job); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	// Warm the cache right away instead of waiting for the first tick
	if err := sched.RunJob(job.Name()); err != nil {
		rt.log.WithError(err).Warn("Initial refresh could not be triggered")
	}

	fmt.Println("Scheduler running, press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}
