package scan

import (
	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/pkg/config"
)

// confidenceTable maps bias per reference mode to a fixed score. The score
// encodes how strong a pattern the class represents, not statistical
// certainty derived from the magnitude of the move.
var confidenceTable = map[string]map[Bias]int{
	"prev_close": {
		BiasBullish: 80,
		BiasBearish: 75,
		BiasNeutral: 40,
	},
	"open": {
		BiasBullish: 70,
		BiasBearish: 65,
		BiasNeutral: 35,
	},
}

// Classifier assigns a bias from a quote using fixed thresholds.
type Classifier struct {
	bullish float64
	bearish float64
	mode    string
}

// NewClassifier builds a classifier from scan configuration.
func NewClassifier(cfg config.ScanConfig) *Classifier {
	return &Classifier{
		bullish: cfg.BullishThreshold,
		bearish: cfg.BearishThreshold,
		mode:    cfg.ReferenceMode,
	}
}

// Classify computes the percent change against the configured reference
// price and maps it to a bias. ok is false when the quote has no usable
// reference price.
func (c *Classifier) Classify(q dhan.Quote) (pctChange float64, bias Bias, confidence int, ok bool) {
	ref := q.OHLC.Close
	if c.mode == "open" {
		ref = q.OHLC.Open
	}
	if ref <= 0 || q.LastPrice <= 0 {
		return 0, "", 0, false
	}

	pctChange = (q.LastPrice - ref) / ref * 100

	switch {
	case pctChange >= c.bullish:
		bias = BiasBullish
	case pctChange <= c.bearish:
		bias = BiasBearish
	default:
		bias = BiasNeutral
	}

	return pctChange, bias, confidenceTable[c.mode][bias], true
}
