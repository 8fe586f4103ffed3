package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmellor/marginboard/internal/api"
	"github.com/jmellor/marginboard/internal/api/handlers"
	"github.com/jmellor/marginboard/internal/external/gemini"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the REST API server with the live snapshot stream.

Endpoints:
  GET  /health                      - Health check
  GET  /api/leaderboard             - Cached leaderboard snapshot
  GET  /api/leaderboard/refresh     - Trigger a recompute (token protected)
  GET  /api/leaderboard/history     - Archived compute runs
  GET  /api/universes               - Configured universes
  POST /api/generate                - Text completion with credential rotation
  GET  /ws/leaderboard              - Live snapshot stream

Example:
  go run ./cmd/marginboard api
  go run ./cmd/marginboard api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	rt, closeRuntime, err := buildRuntime()
	if err != nil {
		return err
	}
	defer closeRuntime()

	if apiPort != "" {
		rt.cfg.Port = apiPort
	}

	log := rt.log

	hub := api.NewHub(rt.store, rt.registry, log)
	rt.runner.WithNotifier(hub)

	geminiClient := gemini.NewClient(rt.cfg.Gemini.APIKeys, rt.cfg.Gemini.Model, rt.cfg.Gemini.BaseURL, log)

	leaderboardHandler := handlers.NewLeaderboardHandler(rt.store, archiveOrNil(rt), rt.registry, log)
	refreshHandler := handlers.NewRefreshHandler(rt.runner, rt.cfg.Refresh.Secret, log)
	generateHandler := handlers.NewGenerateHandler(geminiClient, log)

	router := api.NewRouter(leaderboardHandler, refreshHandler, generateHandler, hub, log)
	server := api.New(rt.cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", rt.cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// archiveOrNil converts the optional archive into the handler port
// without wrapping a typed nil in the interface
func archiveOrNil(rt *runtime) handlers.RunArchive {
	if rt.archive == nil {
		return nil
	}
	return rt.archive
}
