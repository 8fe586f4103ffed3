package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/logger"
)

// MetricFetcher retrieves raw margin metrics for one symbol. A failed
// fetch is reported as an error and means "no sample for this symbol";
// it never aborts the batch.
type MetricFetcher interface {
	FetchMetrics(ctx context.Context, symbol string) (MetricSample, error)
}

// Config holds engine tuning
type Config struct {
	Workers    int           // concurrent fetches (bounded fan-out)
	RatePerSec float64       // provider pacing, 0 disables
	Timeout    time.Duration // per-symbol fetch timeout, 0 disables
}

// Engine fans metric fetches out over a universe and ranks the
// surviving samples into three leaderboards.
type Engine struct {
	fetcher MetricFetcher
	limiter *rate.Limiter
	config  Config
	logger  *logger.Logger
}

// NewEngine creates a new leaderboard engine
func NewEngine(fetcher MetricFetcher, cfg Config, log *logger.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	return &Engine{
		fetcher: fetcher,
		limiter: limiter,
		config:  cfg,
		logger:  log.WithField("module", "leaderboard"),
	}
}

// Compute fetches metrics for every symbol in the universe under
// bounded parallelism and returns the ranked snapshot. Per-symbol
// failures are skipped; a batch where every fetch failed degrades to an
// empty snapshot rather than an error.
func (e *Engine) Compute(ctx context.Context, u universe.Universe, limit int) (*Snapshot, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if len(u.Symbols) == 0 {
		return nil, fmt.Errorf("universe %s has no symbols", u.Name)
	}

	e.logger.WithFields(map[string]interface{}{
		"universe": u.Name,
		"symbols":  len(u.Symbols),
		"workers":  e.config.Workers,
	}).Info("Leaderboard computation started")

	samples := e.fetchAll(ctx, u.Symbols)

	// A cancelled batch is not a valid observation of the universe; an
	// empty or truncated snapshot must never overwrite a good cached one.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("computation cancelled for %s: %w", u.Name, err)
	}

	// Quality is derived here, not in the fetcher, so every sample goes
	// through the same formula.
	for i := range samples {
		samples[i].Quality = QualityScore(samples[i].NetMargin, samples[i].GrossMargin)
	}

	snapshot := e.rank(u.Name, samples, limit)
	now := time.Now().UTC()
	snapshot.UpdatedAt = &now

	e.logger.WithFields(map[string]interface{}{
		"universe": u.Name,
		"samples":  len(samples),
		"failed":   len(u.Symbols) - len(samples),
		"period":   snapshot.PeriodHint,
	}).Info("Leaderboard computation completed")

	return snapshot, nil
}

// fetchAll runs the worker pool and joins before returning; aggregation
// never overlaps with fetching.
func (e *Engine) fetchAll(ctx context.Context, symbols []string) []MetricSample {
	symbolCh := make(chan string, len(symbols))
	resultCh := make(chan MetricSample, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.fetchWorker(ctx, workerID, symbolCh, resultCh)
		}(i)
	}

	for _, symbol := range symbols {
		symbolCh <- symbol
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	samples := make([]MetricSample, 0, len(symbols))
	for sample := range resultCh {
		samples = append(samples, sample)
	}
	return samples
}

// fetchWorker pulls symbols until the channel drains or the batch
// context is cancelled
func (e *Engine) fetchWorker(ctx context.Context, workerID int, symbolCh <-chan string, resultCh chan<- MetricSample) {
	for symbol := range symbolCh {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return
			}
		}

		fetchCtx := ctx
		var cancel context.CancelFunc
		if e.config.Timeout > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		}

		sample, err := e.fetcher.FetchMetrics(fetchCtx, symbol)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": symbol,
			}).Warn("Metric fetch failed, symbol skipped")
			continue
		}

		resultCh <- sample
	}
}

// rank sorts the samples three independent times and truncates each
// board to limit
func (e *Engine) rank(universeName string, samples []MetricSample, limit int) *Snapshot {
	snapshot := EmptySnapshot(universeName)
	if len(samples) == 0 {
		return snapshot
	}

	snapshot.TopNet = topBy(samples, limit, func(s MetricSample) float64 { return s.NetMargin })
	snapshot.TopGross = topBy(samples, limit, func(s MetricSample) float64 { return s.GrossMargin })
	snapshot.TopQuality = topBy(samples, limit, func(s MetricSample) float64 { return s.Quality })
	snapshot.PeriodHint = periodHint(samples)

	return snapshot
}

// topBy returns the samples sorted descending by key, ties broken by
// symbol so the ordering is deterministic
func topBy(samples []MetricSample, limit int, key func(MetricSample) float64) []MetricSample {
	sorted := make([]MetricSample, len(samples))
	copy(sorted, samples)

	sort.Slice(sorted, func(i, j int) bool {
		ki, kj := key(sorted[i]), key(sorted[j])
		if ki != kj {
			return ki > kj
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// periodHint returns the strict plurality of sample periods; a tie for
// the top count yields PeriodUnknown
func periodHint(samples []MetricSample) string {
	counts := make(map[string]int)
	for _, s := range samples {
		if s.Period != "" {
			counts[s.Period]++
		}
	}

	best := ""
	bestCount := 0
	tied := false
	for period, count := range counts {
		switch {
		case count > bestCount:
			best = period
			bestCount = count
			tied = false
		case count == bestCount:
			tied = true
		}
	}

	if best == "" || tied {
		return PeriodUnknown
	}
	return best
}
