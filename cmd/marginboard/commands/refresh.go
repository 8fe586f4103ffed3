package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute every leaderboard once",
	Long: `Run one full compute pass: fetch metrics for every symbol in every
configured universe, rank them, and write the snapshots to the cache.

Example:
  go run ./cmd/marginboard refresh`,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	rt, closeRuntime, err := buildRuntime()
	if err != nil {
		return err
	}
	defer closeRuntime()

	report, err := rt.runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("refresh run: %w", err)
	}

	fmt.Printf("Updated: %v\n", report.Updated)
	if len(report.Failed) > 0 {
		fmt.Printf("Failed:  %v\n", report.Failed)
		return fmt.Errorf("%d universe(s) failed", len(report.Failed))
	}

	return nil
}
