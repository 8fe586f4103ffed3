package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marginboard",
	Short: "Margin leaderboard service",
	Long: `Marginboard computes profitability leaderboards over configured
stock universes and serves them from a cache.

Usage:
  go run ./cmd/marginboard [command]

Examples:
  go run ./cmd/marginboard api
  go run ./cmd/marginboard refresh
  go run ./cmd/marginboard schedule`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
