package instruments

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/quantlab/scanbridge/pkg/logger"
)

const (
	targetExchange = "NSE"
	equitySegment  = "E"
	equitySeries   = "EQ"
)

// excludedPattern matches instruments that pass the EQ-series filter but
// are not scannable equities: ETFs, index trackers, bonds, debt paper.
var excludedPattern = regexp.MustCompile(`(?i)\b(ETF|BEES|NIFTY|SENSEX|GILT|LIQUID|BOND|DEBT|SGB|MF)\b`)

// Universe derives the filtered, de-duplicated set of tradable equity
// instruments from the scrip master. The derived list is cached and
// rebuilt lazily whenever the underlying dataset is refreshed.
type Universe struct {
	master *Master
	logger *logger.Logger

	mu         sync.RWMutex
	entries    []Entry
	generation uint64
}

// NewUniverse creates a universe builder over a scrip-master cache.
func NewUniverse(master *Master, log *logger.Logger) *Universe {
	return &Universe{
		master: master,
		logger: log.Component("universe"),
	}
}

// Entries returns the universe, rebuilding it when the dataset has been
// refreshed since the last build or when force is set.
func (u *Universe) Entries(ctx context.Context, force bool) ([]Entry, error) {
	rows, err := u.master.Rows(ctx, false)
	if err != nil {
		return nil, err
	}
	gen := u.master.Generation()

	u.mu.RLock()
	if !force && u.entries != nil && u.generation == gen {
		entries := u.entries
		u.mu.RUnlock()
		return entries, nil
	}
	u.mu.RUnlock()

	u.mu.Lock()
	defer u.mu.Unlock()

	if !force && u.entries != nil && u.generation == gen {
		return u.entries, nil
	}

	entries := buildEntries(rows)
	u.entries = entries
	u.generation = gen

	u.logger.WithFields(map[string]interface{}{
		"rows":    len(rows),
		"entries": len(entries),
	}).Info("Rebuilt universe")

	return entries, nil
}

// buildEntries filters rows to the tradable-equity subset and de-duplicates
// by (securityID, symbol), preserving first-seen order.
func buildEntries(rows []Row) []Entry {
	type dedupKey struct {
		id     int64
		symbol string
	}

	seen := make(map[dedupKey]bool)
	entries := make([]Entry, 0, len(rows)/4)

	for _, r := range rows {
		if strings.TrimSpace(r.ExchangeID) != targetExchange {
			continue
		}
		if strings.TrimSpace(r.Segment) != equitySegment {
			continue
		}
		if strings.TrimSpace(r.Series) != equitySeries {
			continue
		}

		symbol := strings.TrimSpace(r.SymbolName)
		id, ok := r.SecurityIDInt()
		if !ok || symbol == "" {
			continue
		}

		display := strings.TrimSpace(r.DisplayName)
		if excludedPattern.MatchString(symbol) || excludedPattern.MatchString(display) {
			continue
		}

		key := dedupKey{id: id, symbol: symbol}
		if seen[key] {
			continue
		}
		seen[key] = true

		if display == "" {
			display = symbol
		}
		entries = append(entries, Entry{
			SecurityID:  id,
			SymbolName:  symbol,
			DisplayName: display,
		})
	}

	return entries
}

// Resolve finds the scrip-master row best matching a symbol query: first an
// exact case/space-normalized match on the symbol, display and underlying
// fields, then a substring match. NSE rows win ties in both passes.
func (u *Universe) Resolve(ctx context.Context, query string) (Row, error) {
	rows, err := u.master.Rows(ctx, false)
	if err != nil {
		return Row{}, err
	}

	normalized := normalizeSymbol(query)
	if normalized == "" {
		return Row{}, ErrSymbolNotFound
	}

	if row, ok := matchRows(rows, func(r Row) bool {
		return normalizeSymbol(r.SymbolName) == normalized ||
			normalizeSymbol(r.DisplayName) == normalized ||
			normalizeSymbol(r.Underlying) == normalized
	}); ok {
		return row, nil
	}

	if row, ok := matchRows(rows, func(r Row) bool {
		return strings.Contains(normalizeSymbol(r.SymbolName), normalized) ||
			strings.Contains(normalizeSymbol(r.DisplayName), normalized) ||
			strings.Contains(normalizeSymbol(r.Underlying), normalized)
	}); ok {
		return row, nil
	}

	return Row{}, ErrSymbolNotFound
}

// matchRows returns the first matching row, preferring the target exchange.
func matchRows(rows []Row, match func(Row) bool) (Row, bool) {
	var fallback Row
	found := false

	for _, r := range rows {
		if !match(r) {
			continue
		}
		if strings.TrimSpace(r.ExchangeID) == targetExchange {
			return r, true
		}
		if !found {
			fallback = r
			found = true
		}
	}

	return fallback, found
}

// normalizeSymbol upper-cases and strips all whitespace.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
