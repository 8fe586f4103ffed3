package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/jmellor/marginboard/pkg/httputil"
	"github.com/jmellor/marginboard/pkg/jsonx"
	"github.com/jmellor/marginboard/pkg/logger"
)

var (
	// ErrNoCredentials means the credential pool is empty. This is a
	// configuration error and is never retried.
	ErrNoCredentials = errors.New("gemini: no API credentials configured")

	// ErrExhausted means every credential in the pool was tried and none
	// produced a usable payload.
	ErrExhausted = errors.New("gemini: all credentials exhausted or rate limited")
)

// Client calls the text-completion upstream with a rotating credential
// pool. Each invocation shuffles the pool and walks it sequentially,
// stopping at the first credential that yields a parseable payload.
// Trials are strictly sequential to keep upstream usage at a minimum.
// Retries are disabled: a failing credential is rotated past, never
// hammered again within the same invocation.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	keys       []string
	model      string
	baseURL    string
}

// NewClient creates a new text-completion client
func NewClient(keys []string, model, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httputil.NewWithTimeout(log, 30*time.Second).DisableRetry(),
		logger:     log,
		keys:       keys,
		model:      model,
		baseURL:    baseURL,
	}
}

// generateRequest is the upstream generateContent request body
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse decodes the slice of the upstream response we need
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateJSON sends the prompt to the upstream and returns the first
// balanced JSON object found in the completion text. Rate-limited and
// otherwise failing credentials are skipped; a completion without a
// parseable payload is a soft failure and the next credential is tried.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	if len(c.keys) == 0 {
		return nil, ErrNoCredentials
	}

	// Shuffled order spreads concurrent callers across the pool instead
	// of converging on the same first key.
	shuffled := make([]string, len(c.keys))
	copy(shuffled, c.keys)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	rateLimited := 0
	failed := 0

	for i, key := range shuffled {
		text, err := c.complete(ctx, key, prompt)
		if err != nil {
			if errors.Is(err, errQuotaExhausted) {
				rateLimited++
			} else {
				failed++
			}
			c.logger.WithError(err).WithField("attempt", i+1).Warn("Credential attempt failed, rotating")
			continue
		}

		payload, err := jsonx.ExtractObject(text)
		if err != nil {
			failed++
			c.logger.WithError(err).WithField("attempt", i+1).Warn("Completion had no usable payload, rotating")
			continue
		}

		c.logger.WithFields(map[string]interface{}{
			"attempts":     i + 1,
			"rate_limited": rateLimited,
		}).Debug("Completion succeeded")
		return payload, nil
	}

	c.logger.WithFields(map[string]interface{}{
		"pool_size":    len(shuffled),
		"rate_limited": rateLimited,
		"failed":       failed,
	}).Error("Credential pool exhausted")

	return nil, ErrExhausted
}

// errQuotaExhausted marks a 429 from the upstream; it stays internal,
// callers only see ErrExhausted once the whole pool is burned.
var errQuotaExhausted = errors.New("gemini: credential quota exhausted")

// complete issues one generateContent call with one credential and
// returns the completion text
func (c *Client) complete(ctx context.Context, key, prompt string) (string, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(key))

	resp, err := c.httpClient.PostJSON(ctx, endpoint, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errQuotaExhausted
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("response has no candidates")
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
