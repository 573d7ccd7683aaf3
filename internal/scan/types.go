package scan

import (
	"fmt"
	"time"
)

// Mode selects how the scan window is drawn from the universe.
type Mode string

const (
	// ModeSequential takes the contiguous slice [offset, offset+window).
	ModeSequential Mode = "sequential"
	// ModeStrided samples evenly spaced entries across the whole universe,
	// trading completeness for coverage when the universe is far larger
	// than one call's budget.
	ModeStrided Mode = "strided"
)

// Bias is the classification outcome for one instrument.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// Params are the caller-supplied scan parameters.
type Params struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	WindowSize int  `json:"window"`
	BatchSize  int  `json:"batch"`
	OnlyToday  bool `json:"only_today"`
	Mode       Mode `json:"mode"`
}

// Key derives the deterministic cache key from the full parameter set.
func (p Params) Key() string {
	return fmt.Sprintf("limit=%d|offset=%d|window=%d|batch=%d|today=%t|mode=%s",
		p.Limit, p.Offset, p.WindowSize, p.BatchSize, p.OnlyToday, p.Mode)
}

// Result is one classified instrument.
type Result struct {
	Symbol        string  `json:"symbol"`
	Bias          Bias    `json:"bias"`
	Confidence    int     `json:"confidence"`
	LastPrice     float64 `json:"last_price"`
	PctChange     float64 `json:"pct_change"`
	LastTradeTime string  `json:"last_trade_time"`
}

// Response is a complete scan outcome. Failures are represented here too
// (status "error") so they can be cached alongside successes.
type Response struct {
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	RetryAfterSec  int       `json:"retry_after,omitempty"`
	UniverseSize   int       `json:"universe_size"`
	Scanned        int       `json:"scanned"`
	SkippedNoQuote int       `json:"skipped_no_quote"`
	SkippedStale   int       `json:"skipped_stale"`
	Results        []Result  `json:"results"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// OK reports whether the scan completed.
func (r *Response) OK() bool {
	return r.Status == "success"
}
