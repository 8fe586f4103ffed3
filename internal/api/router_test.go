package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmellor/marginboard/internal/api/handlers"
)

func testRouter() http.Handler {
	log := testLogger()
	registry := testRegistry()
	return NewRouter(
		handlers.NewLeaderboardHandler(nil, nil, registry, log),
		handlers.NewRefreshHandler(nil, "", log),
		handlers.NewGenerateHandler(nil, log),
		nil,
		log,
	)
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestMethodNotAllowed(t *testing.T) {
	router := testRouter()

	// Method mismatches on both the subrouter and the root router
	for _, tc := range []struct{ method, path string }{
		{"POST", "/api/leaderboard"},
		{"GET", "/api/generate"},
		{"DELETE", "/health"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, rec.Body.String(), "method not allowed")
	}
}

func TestUnknownRoute(t *testing.T) {
	router := testRouter()

	req := httptest.NewRequest("GET", "/api/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	log := testLogger()
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := recoveryMiddleware(log)(panicking)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
