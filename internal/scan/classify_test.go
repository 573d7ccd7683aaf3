package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantlab/scanbridge/internal/dhan"
)

func TestClassifyAgainstPrevClose(t *testing.T) {
	classifier := NewClassifier(testScanConfig())

	tests := []struct {
		name      string
		last      float64
		prevClose float64
		wantPct   float64
		wantBias  Bias
		wantScore int
	}{
		{"strong gain", 105, 100, 5.0, BiasBullish, 80},
		{"at bullish threshold", 101.5, 100, 1.5, BiasBullish, 80},
		{"small gain", 101, 100, 1.0, BiasNeutral, 40},
		{"flat", 100, 100, 0.0, BiasNeutral, 40},
		{"small loss", 99, 100, -1.0, BiasNeutral, 40},
		{"at bearish threshold", 98.5, 100, -1.5, BiasBearish, 75},
		{"strong loss", 95, 100, -5.0, BiasBearish, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := dhan.Quote{
				LastPrice: tt.last,
				OHLC:      dhan.OHLC{Close: tt.prevClose},
			}

			pct, bias, confidence, ok := classifier.Classify(q)
			assert.True(t, ok)
			assert.InDelta(t, tt.wantPct, pct, 1e-9)
			assert.Equal(t, tt.wantBias, bias)
			assert.Equal(t, tt.wantScore, confidence)
		})
	}
}

func TestClassifyAgainstOpen(t *testing.T) {
	cfg := testScanConfig()
	cfg.ReferenceMode = "open"
	classifier := NewClassifier(cfg)

	q := dhan.Quote{
		LastPrice: 102,
		OHLC:      dhan.OHLC{Open: 100, Close: 90},
	}

	pct, bias, confidence, ok := classifier.Classify(q)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, pct, 1e-9, "must use open, not close")
	assert.Equal(t, BiasBullish, bias)
	assert.Equal(t, 70, confidence, "open mode carries its own score table")
}

func TestClassifyUnusableReference(t *testing.T) {
	classifier := NewClassifier(testScanConfig())

	_, _, _, ok := classifier.Classify(dhan.Quote{LastPrice: 100})
	assert.False(t, ok, "zero reference price")

	_, _, _, ok = classifier.Classify(dhan.Quote{OHLC: dhan.OHLC{Close: 100}})
	assert.False(t, ok, "zero last price")
}
