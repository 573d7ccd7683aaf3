package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantlab/scanbridge/internal/auth"
	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// defaultRetryAfter is the retry hint when the upstream 429 carries no
// Retry-After header.
const defaultRetryAfter = 5 * time.Second

// Client handles communication with the Dhan API. Quote requests are
// batched and throttled; rate-limit and error responses are translated
// into typed failures. The client itself never retries.
type Client struct {
	httpClient *httputil.Client
	tokens     *auth.Manager
	cfg        config.DhanConfig
	trade      config.TradeConfig
	logger     *logger.Logger
}

// NewClient creates a new Dhan API client.
func NewClient(cfg config.DhanConfig, trade config.TradeConfig, tokens *auth.Manager, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		tokens:     tokens,
		cfg:        cfg,
		trade:      trade,
		logger:     log.Component("dhan"),
	}
}

// Quotes fetches quote snapshots for the given security ids, split into
// batches of at most the configured batch size. Results from all batches
// are merged; ids with no upstream match are simply absent from the map.
func (c *Client) Quotes(ctx context.Context, quoteKey string, securityIDs []int64) (map[int64]Quote, error) {
	return c.QuotesBatched(ctx, quoteKey, securityIDs, c.cfg.BatchSize)
}

// QuotesBatched is Quotes with a caller-supplied batch size; sizes outside
// (0, configured max] fall back to the configured max.
func (c *Client) QuotesBatched(ctx context.Context, quoteKey string, securityIDs []int64, batchSize int) (map[int64]Quote, error) {
	if batchSize <= 0 || batchSize > c.cfg.BatchSize {
		batchSize = c.cfg.BatchSize
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	merged := make(map[int64]Quote, len(securityIDs))
	if len(securityIDs) == 0 {
		return merged, nil
	}

	// Burst 1 lets the first batch go immediately; every following batch
	// waits out the inter-batch pause. Nothing waits after the last batch.
	limiter := rate.NewLimiter(rate.Every(c.cfg.BatchPause), 1)

	batches := chunkIDs(securityIDs, batchSize)
	for _, batch := range batches {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &UpstreamError{Op: "quotes", Err: err}
		}

		part, err := c.fetchBatch(ctx, token, quoteKey, batch)
		if err != nil {
			return nil, err
		}
		for id, q := range part {
			merged[id] = q
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"requested": len(securityIDs),
		"batches":   len(batches),
		"returned":  len(merged),
	}).Debug("Fetched quote batches")

	return merged, nil
}

// fetchBatch issues one quote request for a single batch of security ids.
func (c *Client) fetchBatch(ctx context.Context, token, quoteKey string, ids []int64) (map[int64]Quote, error) {
	url := fmt.Sprintf("%s/v2/marketfeed/quote", c.cfg.BaseURL)

	payload := map[string][]int64{quoteKey: ids}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create quote request: %w", err)
	}
	c.setAuthHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: "quotes", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfterHint(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &UpstreamError{Op: "quotes", Status: resp.StatusCode}
	}

	var decoded quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Op: "quotes", Err: fmt.Errorf("decode response: %w", err)}
	}

	result := make(map[int64]Quote, len(ids))
	for idStr, quote := range decoded.Data[quoteKey] {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			c.logger.WithField("security_id", idStr).Warn("Skipping unparseable security id in quote response")
			continue
		}
		result[id] = quote
	}

	return result, nil
}

// setAuthHeaders sets the Dhan credential headers on a request.
func (c *Client) setAuthHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", token)
	req.Header.Set("client-id", c.cfg.ClientID)
}

// retryAfterHint extracts the retry delay from a 429 response.
func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

// chunkIDs splits ids into consecutive batches of at most size.
func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		return [][]int64{ids}
	}

	var batches [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
