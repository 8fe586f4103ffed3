package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/config"
	"github.com/jmellor/marginboard/pkg/logger"
)

// Computer produces a ranked snapshot for one universe
type Computer interface {
	Compute(ctx context.Context, u universe.Universe, limit int) (*leaderboard.Snapshot, error)
}

// SnapshotWriter persists snapshots and the run marker
type SnapshotWriter interface {
	PutSnapshot(ctx context.Context, snapshot *leaderboard.Snapshot) error
	SetLastRun(ctx context.Context, t time.Time) error
}

// Archiver records completed runs; best effort, failures are logged only
type Archiver interface {
	SaveSnapshot(ctx context.Context, snapshot *leaderboard.Snapshot) error
}

// Notifier pushes a fresh snapshot to connected stream clients
type Notifier interface {
	Broadcast(snapshot *leaderboard.Snapshot)
}

// Report summarizes one run. Skipped universes were never attempted
// because the run budget expired; their cached snapshots stand.
type Report struct {
	Updated []string   `json:"updated"`
	Failed  []string   `json:"failed"`
	Skipped []string   `json:"skipped"`
	LastRun *time.Time `json:"lastRun,omitempty"`
}

// Runner executes a full compute run: every configured universe is
// recomputed and written to the cache, with per-universe failure
// isolation. One broken universe never blocks the others.
type Runner struct {
	computer Computer
	store    SnapshotWriter
	registry *universe.Registry
	config   config.RefreshConfig
	logger   *logger.Logger

	providerKey string

	archiver Archiver // nil when the archive is disabled
	notifier Notifier // nil when streaming is disabled
}

// NewRunner creates a refresh runner
func NewRunner(computer Computer, store SnapshotWriter, registry *universe.Registry, cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		computer:    computer,
		store:       store,
		registry:    registry,
		config:      cfg.Refresh,
		logger:      log.WithField("module", "refresh"),
		providerKey: cfg.FMP.APIKey,
	}
}

// WithArchiver attaches the optional run-history archive
func (r *Runner) WithArchiver(a Archiver) *Runner {
	r.archiver = a
	return r
}

// WithNotifier attaches the optional stream fan-out
func (r *Runner) WithNotifier(n Notifier) *Runner {
	r.notifier = n
	return r
}

// Run recomputes every configured universe. A missing provider
// credential is a configuration error and aborts before any work;
// everything after that point is isolated per universe and reported
// rather than returned as an error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r.providerKey == "" {
		return nil, fmt.Errorf("provider API key not configured")
	}

	if r.config.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Budget)
		defer cancel()
	}

	started := time.Now()
	report := &Report{
		Updated: []string{},
		Failed:  []string{},
		Skipped: []string{},
	}

	for _, u := range r.registry.All() {
		if ctx.Err() != nil {
			r.logger.WithField("universe", u.Name).Warn("Run budget exhausted, universe skipped")
			report.Skipped = append(report.Skipped, u.Name)
			continue
		}

		if err := r.runUniverse(ctx, u); err != nil {
			// Budget expiry mid-universe is a skip, not a failure: the
			// previously cached snapshot stays and the next run picks it up.
			if ctx.Err() != nil {
				r.logger.WithField("universe", u.Name).Warn("Run budget exhausted, universe skipped")
				report.Skipped = append(report.Skipped, u.Name)
				continue
			}
			r.logger.WithError(err).WithField("universe", u.Name).Error("Universe refresh failed")
			report.Failed = append(report.Failed, u.Name)
			continue
		}
		report.Updated = append(report.Updated, u.Name)
	}

	now := time.Now().UTC()
	// The marker write must survive budget expiry; partial runs still ran
	markerCtx := context.WithoutCancel(ctx)
	if err := r.store.SetLastRun(markerCtx, now); err != nil {
		r.logger.WithError(err).Warn("Failed to record run marker")
	} else {
		report.LastRun = &now
	}

	r.logger.WithFields(map[string]interface{}{
		"updated":  len(report.Updated),
		"failed":   len(report.Failed),
		"skipped":  len(report.Skipped),
		"duration": time.Since(started).Round(time.Millisecond).String(),
	}).Info("Refresh run completed")

	return report, nil
}

// runUniverse computes, caches, archives, and streams one universe
func (r *Runner) runUniverse(ctx context.Context, u universe.Universe) error {
	snapshot, err := r.computer.Compute(ctx, u, r.config.Limit)
	if err != nil {
		return fmt.Errorf("compute: %w", err)
	}

	if err := r.store.PutSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}

	if r.archiver != nil {
		if err := r.archiver.SaveSnapshot(ctx, snapshot); err != nil {
			r.logger.WithError(err).WithField("universe", u.Name).Warn("Run archive write failed")
		}
	}

	if r.notifier != nil {
		r.notifier.Broadcast(snapshot)
	}

	return nil
}
