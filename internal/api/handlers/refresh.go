package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/jmellor/marginboard/internal/refresh"
	"github.com/jmellor/marginboard/pkg/logger"
)

// RefreshRunner executes one full compute run
type RefreshRunner interface {
	Run(ctx context.Context) (*refresh.Report, error)
}

// RefreshHandler triggers an on-demand compute run
type RefreshHandler struct {
	runner RefreshRunner
	secret string
	logger *logger.Logger
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(runner RefreshRunner, secret string, log *logger.Logger) *RefreshHandler {
	return &RefreshHandler{
		runner: runner,
		secret: secret,
		logger: log,
	}
}

// Trigger runs a refresh synchronously and reports the outcome. A bad
// token is the only non-200 response; run failures come back in the
// body so callers and uptime probes never see a 5xx from this path.
// An unset shared secret locks the endpoint entirely: a misconfigured
// deployment must not leave the trigger open to anyone.
// GET /api/leaderboard/refresh?token=...
func (h *RefreshHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.logger.Error("Refresh secret not configured, trigger locked")
		respondError(w, http.StatusUnauthorized, "refresh trigger not configured")
		return
	}

	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	report, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Refresh run could not start")
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     len(report.Failed) == 0,
		"report": report,
	})
}
