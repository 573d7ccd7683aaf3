package scan

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/internal/instruments"
	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/logger"
)

type fakeUniverse struct {
	entries []instruments.Entry
	err     error
	calls   int
}

func (f *fakeUniverse) Entries(ctx context.Context, force bool) ([]instruments.Entry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeQuotes struct {
	quotes map[int64]dhan.Quote
	err    error
	calls  int
	gotIDs [][]int64
}

func (f *fakeQuotes) QuotesBatched(ctx context.Context, quoteKey string, ids []int64, batchSize int) (map[int64]dhan.Quote, error) {
	f.calls++
	f.gotIDs = append(f.gotIDs, ids)
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func testScanConfig() config.ScanConfig {
	return config.ScanConfig{
		DatasetTTL:       6 * time.Hour,
		CacheTTL:         25 * time.Second,
		DefaultLimit:     10,
		DefaultWindow:    200,
		BullishThreshold: 1.5,
		BearishThreshold: -1.5,
		ReferenceMode:    "prev_close",
		Timezone:         "Asia/Kolkata",
	}
}

func testEntries(n int) []instruments.Entry {
	entries := make([]instruments.Entry, n)
	for i := range entries {
		entries[i] = instruments.Entry{
			SecurityID: int64(i + 1),
			SymbolName: fmt.Sprintf("SYM%d", i+1),
		}
	}
	return entries
}

func newTestEngine(t *testing.T, universe *fakeUniverse, quotes *fakeQuotes) *Engine {
	t.Helper()

	cfg := testScanConfig()
	engine := NewEngine(universe, quotes, NewCache(cfg.CacheTTL, logger.Nop()), cfg, "NSE_EQ", logger.Nop())
	engine.now = func() time.Time {
		return time.Date(2026, 8, 31, 10, 0, 0, 0, engine.location)
	}
	return engine
}

func quoteAt(last, prevClose float64, lastTrade string) dhan.Quote {
	return dhan.Quote{
		LastPrice:     last,
		OHLC:          dhan.OHLC{Open: prevClose, Close: prevClose},
		LastTradeTime: lastTrade,
	}
}

func TestScanStridedWindow(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(5)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 2, Mode: ModeStrided})

	assert.Equal(t, "success", resp.Status)
	require.Len(t, quotes.gotIDs, 1)
	// 5 entries, window 2 -> stride 2, indices {0, 2}.
	assert.Equal(t, []int64{1, 3}, quotes.gotIDs[0])
}

func TestScanStridedWindowWithOffset(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(5)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	// Offset wraps modulo universe size: 7 % 5 = 2, stride 2 -> {2, 4}.
	engine.Scan(context.Background(), Params{WindowSize: 2, Offset: 7, Mode: ModeStrided})

	require.Len(t, quotes.gotIDs, 1)
	assert.Equal(t, []int64{3, 5}, quotes.gotIDs[0])
}

func TestScanSequentialWindowClamped(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(5)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	engine.Scan(context.Background(), Params{WindowSize: 10, Offset: 3, Mode: ModeSequential})

	require.Len(t, quotes.gotIDs, 1)
	assert.Equal(t, []int64{4, 5}, quotes.gotIDs[0])
}

func TestScanSequentialOffsetPastEnd(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(5)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 10, Offset: 99, Mode: ModeSequential})

	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, resp.Results)
	require.Len(t, quotes.gotIDs, 1)
	assert.Empty(t, quotes.gotIDs[0])
}

func TestScanClassifiesAndSorts(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(4)}
	// 1: +5.0% bullish, 2: -2.0% bearish, 3: +0.5% neutral, 4: +2.0% bullish.
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{
		1: quoteAt(105, 100, "2026-08-31 09:45:00"),
		2: quoteAt(98, 100, "2026-08-31 09:45:00"),
		3: quoteAt(100.5, 100, "2026-08-31 09:45:00"),
		4: quoteAt(102, 100, "2026-08-31 09:45:00"),
	}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 4, Mode: ModeSequential})

	require.Equal(t, "success", resp.Status)
	assert.Equal(t, 4, resp.Scanned)
	require.Len(t, resp.Results, 4)

	// Bullish (80) before bearish (75) before neutral (40); within the
	// bullish pair the larger move wins.
	assert.Equal(t, "SYM1", resp.Results[0].Symbol)
	assert.Equal(t, BiasBullish, resp.Results[0].Bias)
	assert.Equal(t, 80, resp.Results[0].Confidence)
	assert.InDelta(t, 5.0, resp.Results[0].PctChange, 1e-9)

	assert.Equal(t, "SYM4", resp.Results[1].Symbol)
	assert.Equal(t, "SYM2", resp.Results[2].Symbol)
	assert.Equal(t, BiasBearish, resp.Results[2].Bias)
	assert.Equal(t, "SYM3", resp.Results[3].Symbol)
	assert.Equal(t, BiasNeutral, resp.Results[3].Bias)
}

func TestScanLimitTruncates(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(4)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{
		1: quoteAt(105, 100, ""),
		2: quoteAt(104, 100, ""),
		3: quoteAt(103, 100, ""),
		4: quoteAt(102, 100, ""),
	}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 4, Limit: 2, Mode: ModeSequential})

	assert.Equal(t, 4, resp.Scanned)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "SYM1", resp.Results[0].Symbol)
	assert.Equal(t, "SYM2", resp.Results[1].Symbol)
}

func TestScanSkipCounters(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(4)}
	// id 1 has no quote at all, id 2 has no last price, id 3 last traded
	// three days ago.
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{
		2: quoteAt(0, 100, "2026-08-31 09:45:00"),
		3: quoteAt(105, 100, "2026-08-28 15:29:59"),
		4: quoteAt(102, 100, "2026-08-31 09:45:00"),
	}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 4, OnlyToday: true, Mode: ModeSequential})

	assert.Equal(t, 1, resp.Scanned)
	assert.Equal(t, 2, resp.SkippedNoQuote)
	assert.Equal(t, 1, resp.SkippedStale)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "SYM4", resp.Results[0].Symbol)
}

func TestScanStaleFilterDisabled(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(1)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{
		1: quoteAt(105, 100, "2026-08-28 15:29:59"),
	}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 1, Mode: ModeSequential})

	assert.Equal(t, 0, resp.SkippedStale)
	assert.Len(t, resp.Results, 1)
}

func TestScanCachedResponseSkipsUpstream(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(3)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{
		1: quoteAt(105, 100, ""),
	}}
	engine := newTestEngine(t, universe, quotes)
	params := Params{WindowSize: 3, Mode: ModeStrided}

	first := engine.Scan(context.Background(), params)
	second := engine.Scan(context.Background(), params)

	assert.Same(t, first, second, "cached response must be returned as-is")
	assert.Equal(t, 1, universe.calls)
	assert.Equal(t, 1, quotes.calls)
}

func TestScanDifferentParamsMissCache(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(5)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	engine.Scan(context.Background(), Params{WindowSize: 2, Mode: ModeStrided})
	engine.Scan(context.Background(), Params{WindowSize: 3, Mode: ModeStrided})

	assert.Equal(t, 2, quotes.calls)
}

func TestScanRateLimitedFailureIsCached(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(3)}
	quotes := &fakeQuotes{err: &dhan.RateLimitError{RetryAfter: 30 * time.Second}}
	engine := newTestEngine(t, universe, quotes)
	params := Params{WindowSize: 3, Mode: ModeStrided}

	first := engine.Scan(context.Background(), params)

	require.Equal(t, "error", first.Status)
	assert.Equal(t, "rate limited by upstream", first.Reason)
	assert.Equal(t, 30, first.RetryAfterSec)
	assert.False(t, first.OK())

	// An immediate retry must be absorbed by the cache instead of hitting
	// the upstream limiter again.
	second := engine.Scan(context.Background(), params)
	assert.Same(t, first, second)
	assert.Equal(t, 1, quotes.calls)
}

func TestScanUpstreamErrorResponse(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(3)}
	quotes := &fakeQuotes{err: &dhan.UpstreamError{Op: "quotes", Status: 502}}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 3, Mode: ModeStrided})

	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Reason, "502")
	assert.Zero(t, resp.RetryAfterSec)
}

func TestScanUniverseFailureResponse(t *testing.T) {
	universe := &fakeUniverse{err: instruments.ErrDatasetUnavailable}
	quotes := &fakeQuotes{}
	engine := newTestEngine(t, universe, quotes)

	resp := engine.Scan(context.Background(), Params{WindowSize: 3, Mode: ModeStrided})

	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 0, quotes.calls)
}

func TestScanDefaultsApplied(t *testing.T) {
	universe := &fakeUniverse{entries: testEntries(3)}
	quotes := &fakeQuotes{quotes: map[int64]dhan.Quote{}}
	engine := newTestEngine(t, universe, quotes)

	engine.Scan(context.Background(), Params{})

	// Default window (200) exceeds the universe, so every entry is sampled.
	require.Len(t, quotes.gotIDs, 1)
	assert.Len(t, quotes.gotIDs[0], 3)
}

func TestTradedToday(t *testing.T) {
	engine := newTestEngine(t, &fakeUniverse{}, &fakeQuotes{})
	today := engine.now().In(engine.location)

	tests := []struct {
		lastTrade string
		want      bool
	}{
		{"2026-08-31 09:15:00", true},
		{"2026-08-31 15:29:59", true},
		{"2026-08-28 15:29:59", false},
		{"not-a-timestamp", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.tradedToday(tt.lastTrade, today), tt.lastTrade)
	}
}
