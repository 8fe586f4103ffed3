package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jmellor/marginboard/internal/history"
	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/logger"
)

// SnapshotReader reads cached snapshots and the run marker
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, universeName string) (*leaderboard.Snapshot, bool, error)
	GetLastRun(ctx context.Context) (*time.Time, error)
}

// RunArchive lists archived compute runs
type RunArchive interface {
	RecentRuns(ctx context.Context, universeName string, limit int) ([]history.Run, error)
}

// LeaderboardHandler serves the read side of the leaderboard API
type LeaderboardHandler struct {
	store    SnapshotReader
	archive  RunArchive // nil when the archive is disabled
	registry *universe.Registry
	logger   *logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(store SnapshotReader, archive RunArchive, registry *universe.Registry, log *logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		store:    store,
		archive:  archive,
		registry: registry,
		logger:   log,
	}
}

// snapshotResponse wraps a snapshot with the process-wide run marker
type snapshotResponse struct {
	*leaderboard.Snapshot
	LastRun *time.Time `json:"lastRun,omitempty"`
	Note    string     `json:"note,omitempty"`
}

// Get returns the cached snapshot for a universe. This endpoint never
// fails: unknown universes fall back to the default, and a cold or
// unreachable cache degrades to an empty snapshot with a note.
// GET /api/leaderboard?universe=DOW30
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := h.registry.Resolve(r.URL.Query().Get("universe"))

	response := snapshotResponse{}

	snapshot, found, err := h.store.GetSnapshot(ctx, u.Name)
	switch {
	case err != nil:
		h.logger.WithError(err).WithField("universe", u.Name).Error("Cache read failed, serving empty snapshot")
		response.Snapshot = leaderboard.EmptySnapshot(u.Name)
		response.Note = "leaderboard temporarily unavailable"
	case !found:
		response.Snapshot = leaderboard.EmptySnapshot(u.Name)
		response.Note = "no data yet, refresh pending"
	default:
		response.Snapshot = snapshot
	}

	if lastRun, err := h.store.GetLastRun(ctx); err == nil {
		response.LastRun = lastRun
		// Snapshots without their own stamp inherit the run marker
		if response.Snapshot.UpdatedAt == nil {
			response.Snapshot.UpdatedAt = lastRun
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// History returns archived compute runs for a universe.
// GET /api/leaderboard/history?universe=DOW30&limit=10
func (h *LeaderboardHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := h.registry.Resolve(r.URL.Query().Get("universe"))

	if h.archive == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"universe": u.Name,
			"runs":     []history.Run{},
			"note":     "run archive disabled",
		})
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	runs, err := h.archive.RecentRuns(ctx, u.Name, limit)
	if err != nil {
		h.logger.WithError(err).WithField("universe", u.Name).Error("Failed to read run archive")
		respondError(w, http.StatusInternalServerError, "Failed to read run archive")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"universe": u.Name,
		"runs":     runs,
	})
}

// Universes lists the configured universes.
// GET /api/universes
func (h *LeaderboardHandler) Universes(w http.ResponseWriter, r *http.Request) {
	type universeInfo struct {
		Name    string `json:"name"`
		Symbols int    `json:"symbols"`
		Default bool   `json:"default"`
	}

	all := h.registry.All()
	out := make([]universeInfo, 0, len(all))
	for _, u := range all {
		out = append(out, universeInfo{
			Name:    u.Name,
			Symbols: len(u.Symbols),
			Default: u.Name == h.registry.DefaultName(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"universes": out,
	})
}
