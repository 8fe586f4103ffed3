package fmp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmellor/marginboard/pkg/config"
	"github.com/jmellor/marginboard/pkg/httputil"
	"github.com/jmellor/marginboard/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error"})
}

func newTestClient(serverURL string) *Client {
	log := testLogger()
	return NewClient("test-key", serverURL, httputil.New(log), log)
}

func TestFetchMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/income-statement/AAPL", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `[{
			"symbol": "AAPL",
			"period": "FY",
			"calendarYear": "2025",
			"revenue": 1000,
			"grossProfit": 450,
			"netIncome": 250
		}]`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	sample, err := client.FetchMetrics(context.Background(), "NASDAQ:AAPL")
	require.NoError(t, err)

	// Sample keeps the universe's symbol form, not the bare ticker
	assert.Equal(t, "NASDAQ:AAPL", sample.Symbol)
	assert.InDelta(t, 25.0, sample.NetMargin, 1e-9)
	assert.InDelta(t, 45.0, sample.GrossMargin, 1e-9)
	assert.Equal(t, "FY2025", sample.Period)
}

func TestFetchMetricsQuarterlyPeriod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"period": "Q2", "calendarYear": "2025", "revenue": 200, "grossProfit": 80, "netIncome": 20}]`)
	}))
	defer server.Close()

	sample, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:KO")
	require.NoError(t, err)

	assert.Equal(t, "Q2 2025", sample.Period)
}

func TestFetchMetricsUnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Provider answers unknown tickers with an empty array, not a 404
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchMetricsRateLimited(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:KO")
	assert.ErrorIs(t, err, ErrRateLimited)

	// No retries at this layer
	assert.Equal(t, 1, attempts)
}

func TestFetchMetricsServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:KO")
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchMetricsMalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "not an array"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:KO")
	assert.Error(t, err)
}

func TestFetchMetricsZeroRevenue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"period": "FY", "calendarYear": "2025", "revenue": 0, "grossProfit": 0, "netIncome": 0}]`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchMetrics(context.Background(), "NYSE:KO")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
