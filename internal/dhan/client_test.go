package dhan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/scanbridge/internal/auth"
	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string, batchSize int) *Client {
	t.Helper()

	cfg := config.DhanConfig{
		ClientID:    "client-1",
		AccessToken: "token-1",
		BaseURL:     baseURL,
		QuoteKey:    "NSE_EQ",
		BatchSize:   batchSize,
		BatchPause:  time.Millisecond,
	}
	trade := config.TradeConfig{
		Capital:         100000,
		MaxRiskPerTrade: 0.02,
	}

	httpClient := httputil.New(logger.Nop(), 5*time.Second).DisableRetry()

	tokens, err := auth.NewManager(cfg, auth.NewMemoryStore(), httpClient, logger.Nop())
	require.NoError(t, err)

	return NewClient(cfg, trade, tokens, httpClient, logger.Nop())
}

// quoteHandler answers every requested id with a fixed quote, skipping the
// ids listed in missing.
func quoteHandler(t *testing.T, calls *int64, missing map[int64]bool) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/marketfeed/quote", r.URL.Path)
		assert.Equal(t, "token-1", r.Header.Get("access-token"))
		assert.Equal(t, "client-1", r.Header.Get("client-id"))

		var body map[string][]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ids := body["NSE_EQ"]

		records := make(map[string]Quote, len(ids))
		for _, id := range ids {
			if missing[id] {
				continue
			}
			records[fmt.Sprintf("%d", id)] = Quote{
				LastPrice:     100 + float64(id),
				OHLC:          OHLC{Open: 99, High: 110, Low: 95, Close: 100},
				LastTradeTime: "2026-02-10 14:05:00",
				Volume:        1000,
			}
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data":   map[string]interface{}{"NSE_EQ": records},
			"status": "success",
		})
	}
}

func TestQuotesBatching(t *testing.T) {
	var calls int64
	server := httptest.NewServer(quoteHandler(t, &calls, nil))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	ids := make([]int64, 250)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	quotes, err := client.Quotes(context.Background(), "NSE_EQ", ids)
	require.NoError(t, err)

	assert.Equal(t, int64(3), atomic.LoadInt64(&calls), "250 ids with batch size 100 must issue 3 calls")
	assert.Len(t, quotes, 250)

	known := make(map[int64]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	for id := range quotes {
		assert.True(t, known[id], "returned key %d not in requested ids", id)
	}
}

func TestQuotesMissingIDsOmitted(t *testing.T) {
	var calls int64
	server := httptest.NewServer(quoteHandler(t, &calls, map[int64]bool{2: true}))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	quotes, err := client.Quotes(context.Background(), "NSE_EQ", []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Len(t, quotes, 2)
	assert.Contains(t, quotes, int64(1))
	assert.NotContains(t, quotes, int64(2))
	assert.Contains(t, quotes, int64(3))
}

func TestQuotesEmptyInput(t *testing.T) {
	var calls int64
	server := httptest.NewServer(quoteHandler(t, &calls, nil))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	quotes, err := client.Quotes(context.Background(), "NSE_EQ", nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestQuotesRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	_, err := client.Quotes(context.Background(), "NSE_EQ", []int64{1})
	require.Error(t, err)

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
	assert.True(t, IsRateLimited(err))
}

func TestQuotesRateLimitedDefaultHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	_, err := client.Quotes(context.Background(), "NSE_EQ", []int64{1})

	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, defaultRetryAfter, rle.RetryAfter)
}

func TestQuotesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 100)

	_, err := client.Quotes(context.Background(), "NSE_EQ", []int64{1})
	require.Error(t, err)

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.Status)
	assert.False(t, IsRateLimited(err))
}

func TestChunkIDs(t *testing.T) {
	tests := []struct {
		name  string
		count int
		size  int
		want  []int
	}{
		{"exact multiple", 200, 100, []int{100, 100}},
		{"remainder", 250, 100, []int{100, 100, 50}},
		{"single batch", 10, 100, []int{10}},
		{"empty", 0, 100, nil},
		{"size one", 3, 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]int64, tt.count)
			batches := chunkIDs(ids, tt.size)

			require.Len(t, batches, len(tt.want))
			for i, b := range batches {
				assert.Len(t, b, tt.want[i])
			}
		})
	}
}

func TestCheckRisk(t *testing.T) {
	client := &Client{
		trade: config.TradeConfig{
			Capital:         100000,
			MaxRiskPerTrade: 0.02,
		},
		logger: logger.Nop(),
	}

	// Budget is 2000: 10x150 passes, 10x250 exceeds; market orders use the
	// fallback price of 1000, so qty 3 exceeds and qty 2 passes.
	assert.NoError(t, client.checkRisk(10, 150))
	assert.ErrorIs(t, client.checkRisk(10, 250), ErrRiskLimit)
	assert.ErrorIs(t, client.checkRisk(3, 0), ErrRiskLimit)
	assert.NoError(t, client.checkRisk(2, 0))
}
