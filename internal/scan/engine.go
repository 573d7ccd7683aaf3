package scan

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/internal/instruments"
	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// lastTradeLayout is the timestamp format the quote API uses for the last
// trade time, expressed in exchange local time.
const lastTradeLayout = "2006-01-02 15:04:05"

// UniverseSource supplies the ordered instrument universe to scan over.
type UniverseSource interface {
	Entries(ctx context.Context, force bool) ([]instruments.Entry, error)
}

// QuoteFetcher fetches quote snapshots for a set of security ids.
type QuoteFetcher interface {
	QuotesBatched(ctx context.Context, quoteKey string, securityIDs []int64, batchSize int) (map[int64]dhan.Quote, error)
}

// Engine runs parameterized scans over the instrument universe: it selects
// a window, fetches quotes through the gateway, classifies each instrument
// and caches the complete response. Failures are cached too, so a polling
// client that just tripped the upstream limiter does not immediately trip
// it again.
type Engine struct {
	universe   UniverseSource
	quotes     QuoteFetcher
	cache      *Cache
	classifier *Classifier
	cfg        config.ScanConfig
	quoteKey   string
	location   *time.Location
	logger     *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine creates a scan engine.
func NewEngine(universe UniverseSource, quotes QuoteFetcher, cache *Cache, cfg config.ScanConfig, quoteKey string, log *logger.Logger) *Engine {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.WithError(err).WithField("timezone", cfg.Timezone).Warn("Falling back to UTC for staleness checks")
		loc = time.UTC
	}

	return &Engine{
		universe:   universe,
		quotes:     quotes,
		cache:      cache,
		classifier: NewClassifier(cfg),
		cfg:        cfg,
		quoteKey:   quoteKey,
		location:   loc,
		logger:     log.Component("scan"),
		now:        time.Now,
	}
}

// Scan runs one scan. The response always carries a status; upstream
// failures come back as status "error" rather than a Go error so they can
// live in the cache alongside successes.
func (e *Engine) Scan(ctx context.Context, params Params) *Response {
	params = e.withDefaults(params)
	key := params.Key()

	if cached, ok := e.cache.Get(key); ok {
		e.logger.WithField("key", key).Debug("Serving scan from cache")
		return cached
	}

	resp := e.run(ctx, params)
	e.cache.Put(key, resp)
	return resp
}

// withDefaults fills unset parameters from configuration.
func (e *Engine) withDefaults(p Params) Params {
	if p.Limit <= 0 {
		p.Limit = e.cfg.DefaultLimit
	}
	if p.WindowSize <= 0 {
		p.WindowSize = e.cfg.DefaultWindow
	}
	if p.Mode != ModeSequential && p.Mode != ModeStrided {
		p.Mode = ModeStrided
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (e *Engine) run(ctx context.Context, params Params) *Response {
	entries, err := e.universe.Entries(ctx, false)
	if err != nil {
		e.logger.WithError(err).Error("Scan aborted: universe unavailable")
		return e.errorResponse(err, 0)
	}

	selected := selectWindow(entries, params)
	ids := make([]int64, len(selected))
	for i, entry := range selected {
		ids[i] = entry.SecurityID
	}

	quotes, err := e.quotes.QuotesBatched(ctx, e.quoteKey, ids, params.BatchSize)
	if err != nil {
		e.logger.WithError(err).Error("Scan aborted: quote fetch failed")
		return e.errorResponse(err, len(entries))
	}

	today := e.now().In(e.location)
	resp := &Response{
		Status:       "success",
		UniverseSize: len(entries),
		Results:      make([]Result, 0, len(selected)),
		GeneratedAt:  e.now().UTC(),
	}

	for _, entry := range selected {
		q, ok := quotes[entry.SecurityID]
		if !ok || q.LastPrice <= 0 {
			resp.SkippedNoQuote++
			continue
		}
		if params.OnlyToday && !e.tradedToday(q.LastTradeTime, today) {
			resp.SkippedStale++
			continue
		}

		pctChange, bias, confidence, ok := e.classifier.Classify(q)
		if !ok {
			resp.SkippedNoQuote++
			continue
		}

		resp.Scanned++
		resp.Results = append(resp.Results, Result{
			Symbol:        entry.SymbolName,
			Bias:          bias,
			Confidence:    confidence,
			LastPrice:     q.LastPrice,
			PctChange:     pctChange,
			LastTradeTime: q.LastTradeTime,
		})
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		a, b := resp.Results[i], resp.Results[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return math.Abs(a.PctChange) > math.Abs(b.PctChange)
	})
	if len(resp.Results) > params.Limit {
		resp.Results = resp.Results[:params.Limit]
	}

	e.logger.WithFields(map[string]interface{}{
		"universe":         resp.UniverseSize,
		"window":           len(selected),
		"scanned":          resp.Scanned,
		"skipped_no_quote": resp.SkippedNoQuote,
		"skipped_stale":    resp.SkippedStale,
		"results":          len(resp.Results),
	}).Info("Scan complete")

	return resp
}

// errorResponse translates a failure into a cacheable response.
func (e *Engine) errorResponse(err error, universeSize int) *Response {
	resp := &Response{
		Status:       "error",
		Reason:       err.Error(),
		UniverseSize: universeSize,
		Results:      []Result{},
		GeneratedAt:  e.now().UTC(),
	}

	var rateErr *dhan.RateLimitError
	if errors.As(err, &rateErr) {
		resp.Reason = "rate limited by upstream"
		resp.RetryAfterSec = int(rateErr.RetryAfter / time.Second)
	}

	return resp
}

// tradedToday reports whether the quote's last trade happened on the
// current exchange-local trading date. Unparseable timestamps count as
// stale: better to skip one instrument than to surface dead data.
func (e *Engine) tradedToday(lastTrade string, today time.Time) bool {
	if lastTrade == "" {
		return false
	}

	ts, err := time.ParseInLocation(lastTradeLayout, lastTrade, e.location)
	if err != nil {
		return false
	}

	return ts.Year() == today.Year() && ts.YearDay() == today.YearDay()
}

// selectWindow picks the universe entries to examine for this call.
//
// Strided mode spreads windowSize samples evenly across the whole universe
// starting at offset; sequential mode takes the contiguous slice
// [offset, offset+windowSize) clamped to the universe bounds.
func selectWindow(entries []instruments.Entry, params Params) []instruments.Entry {
	size := len(entries)
	if size == 0 {
		return nil
	}

	switch params.Mode {
	case ModeSequential:
		start := params.Offset
		if start >= size {
			return nil
		}
		end := start + params.WindowSize
		if end > size {
			end = size
		}
		return entries[start:end]

	default: // strided
		stride := size / params.WindowSize
		if stride < 1 {
			stride = 1
		}
		count := params.WindowSize
		if count > size {
			count = size
		}

		start := params.Offset % size
		selected := make([]instruments.Entry, 0, count)
		for k := 0; k < count; k++ {
			selected = append(selected, entries[(start+k*stride)%size])
		}
		return selected
	}
}
