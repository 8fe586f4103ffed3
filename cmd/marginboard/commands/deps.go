package commands

import (
	"context"
	"fmt"

	"github.com/jmellor/marginboard/internal/cache"
	"github.com/jmellor/marginboard/internal/external/fmp"
	"github.com/jmellor/marginboard/internal/history"
	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/refresh"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/config"
	"github.com/jmellor/marginboard/pkg/database"
	"github.com/jmellor/marginboard/pkg/httputil"
	"github.com/jmellor/marginboard/pkg/logger"
	"github.com/jmellor/marginboard/pkg/redis"
)

// runtime holds the wired service components shared by the commands
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *universe.Registry
	store    *cache.Store
	runner   *refresh.Runner
	archive  *history.Repository // nil when the archive is disabled

	redisClient *redis.Client
	db          *database.DB // nil when the archive is disabled
}

// buildRuntime loads config and wires the compute pipeline. The caller
// must invoke close when done.
func buildRuntime() (*runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	redisClient, err := redis.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	registry := universe.Defaults()
	store := cache.NewStore(cache.NewRedisKV(redisClient))

	httpClient := httputil.New(log)
	fmpClient := fmp.NewClient(cfg.FMP.APIKey, cfg.FMP.BaseURL, httpClient, log)

	engine := leaderboard.NewEngine(fmpClient, leaderboard.Config{
		Workers:    cfg.Refresh.Workers,
		RatePerSec: cfg.Refresh.RatePerSec,
		Timeout:    cfg.Refresh.CallTimeout,
	}, log)

	runner := refresh.NewRunner(engine, store, registry, cfg, log)

	rt := &runtime{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		store:       store,
		runner:      runner,
		redisClient: redisClient,
	}

	if cfg.HistoryEnabled() {
		db, err := database.New(cfg)
		if err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}

		archive := history.NewRepository(db, log)
		if err := archive.EnsureSchema(context.Background()); err != nil {
			db.Close()
			redisClient.Close()
			return nil, nil, err
		}

		rt.db = db
		rt.archive = archive
		runner.WithArchiver(archive)
		log.Info("Run-history archive enabled")
	}

	closer := func() {
		if rt.db != nil {
			rt.db.Close()
		}
		rt.redisClient.Close()
	}

	return rt, closer, nil
}
