package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/pkg/database"
	"github.com/jmellor/marginboard/pkg/logger"
)

// Repository archives compute runs in Postgres. The archive is an
// optional sidecar to the cache: a failed insert never fails a run.
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// Run is one archived compute run for a universe
type Run struct {
	ID         int64                 `json:"id"`
	Universe   string                `json:"universe"`
	RunAt      time.Time             `json:"runAt"`
	PeriodHint string                `json:"periodHint"`
	Snapshot   *leaderboard.Snapshot `json:"snapshot"`
}

// NewRepository creates a run archive over a Postgres pool
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

// EnsureSchema creates the archive table when it does not exist yet
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS leaderboard_runs (
			id          BIGSERIAL PRIMARY KEY,
			universe    TEXT        NOT NULL,
			run_at      TIMESTAMPTZ NOT NULL,
			period_hint TEXT        NOT NULL,
			snapshot    JSONB       NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_leaderboard_runs_universe_run_at
			ON leaderboard_runs (universe, run_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// SaveSnapshot archives one computed snapshot
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *leaderboard.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("nil snapshot")
	}

	runAt := time.Now().UTC()
	if snapshot.UpdatedAt != nil {
		runAt = snapshot.UpdatedAt.UTC()
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot for archive: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO leaderboard_runs (universe, run_at, period_hint, snapshot)
		VALUES ($1, $2, $3, $4)
	`, snapshot.Universe, runAt, snapshot.PeriodHint, payload)
	if err != nil {
		return fmt.Errorf("archive run for %s: %w", snapshot.Universe, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"universe": snapshot.Universe,
		"run_at":   runAt,
	}).Debug("Run archived")
	return nil
}

// RecentRuns returns the newest archived runs for a universe, newest first
func (r *Repository) RecentRuns(ctx context.Context, universeName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, universe, run_at, period_hint, snapshot
		FROM leaderboard_runs
		WHERE universe = $1
		ORDER BY run_at DESC
		LIMIT $2
	`, universeName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", universeName, err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var run Run
		var payload []byte
		if err := rows.Scan(&run.ID, &run.Universe, &run.RunAt, &run.PeriodHint, &payload); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if err := json.Unmarshal(payload, &run.Snapshot); err != nil {
			return nil, fmt.Errorf("decode archived snapshot: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}
