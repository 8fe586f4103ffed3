package fmp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/httputil"
	"github.com/jmellor/marginboard/pkg/logger"
)

var (
	// ErrNotFound means the provider has no statement data for the symbol
	ErrNotFound = errors.New("fmp: no statement data for symbol")

	// ErrRateLimited means the provider rejected the call for quota reasons
	ErrRateLimited = errors.New("fmp: rate limited")
)

// Client fetches income-statement data from the financial-data
// provider. All provider calls go through this client. The client does
// not retry: a miss is a missing sample and the batch moves on.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	apiKey     string
	baseURL    string
}

// NewClient creates a new provider client
func NewClient(apiKey, baseURL string, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient.DisableRetry(),
		logger:     log,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// incomeStatement mirrors the provider's statement payload; only the
// line items needed for margin math are decoded.
type incomeStatement struct {
	Symbol       string  `json:"symbol"`
	Period       string  `json:"period"`       // "FY", "Q1".."Q4"
	CalendarYear string  `json:"calendarYear"` // "2025"
	Revenue      float64 `json:"revenue"`
	GrossProfit  float64 `json:"grossProfit"`
	NetIncome    float64 `json:"netIncome"`
}

// FetchMetrics retrieves the latest income statement for one symbol and
// derives its margin metrics. Symbols may carry an exchange marker
// ("NASDAQ:AAPL"); the provider is queried by plain ticker.
func (c *Client) FetchMetrics(ctx context.Context, symbol string) (leaderboard.MetricSample, error) {
	ticker := universe.Ticker(symbol)

	endpoint := fmt.Sprintf("%s/income-statement/%s?%s", c.baseURL, url.PathEscape(ticker), url.Values{
		"limit":  {"1"},
		"apikey": {c.apiKey},
	}.Encode())

	resp, err := c.httpClient.Get(ctx, endpoint)
	if err != nil {
		return leaderboard.MetricSample{}, fmt.Errorf("fetch income statement for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return leaderboard.MetricSample{}, fmt.Errorf("%w: %s", ErrRateLimited, ticker)
	case resp.StatusCode != http.StatusOK:
		return leaderboard.MetricSample{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, ticker)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return leaderboard.MetricSample{}, fmt.Errorf("read response for %s: %w", ticker, err)
	}

	var statements []incomeStatement
	if err := json.Unmarshal(body, &statements); err != nil {
		return leaderboard.MetricSample{}, fmt.Errorf("decode statement for %s: %w", ticker, err)
	}

	if len(statements) == 0 {
		return leaderboard.MetricSample{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}

	stmt := statements[0]
	if stmt.Revenue <= 0 {
		return leaderboard.MetricSample{}, fmt.Errorf("non-positive revenue for %s", ticker)
	}

	return leaderboard.MetricSample{
		Symbol:      symbol,
		NetMargin:   stmt.NetIncome / stmt.Revenue * 100,
		GrossMargin: stmt.GrossProfit / stmt.Revenue * 100,
		Period:      periodLabel(stmt.Period, stmt.CalendarYear),
	}, nil
}

// periodLabel formats "FY"/"2025" as "FY2025" and "Q2"/"2025" as "Q2 2025"
func periodLabel(period, year string) string {
	if period == "" || year == "" {
		return leaderboard.PeriodUnknown
	}
	if period == "FY" {
		return period + year
	}
	return period + " " + year
}
