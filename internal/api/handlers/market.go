package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/quantlab/scanbridge/internal/auth"
	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/internal/external/news"
	"github.com/quantlab/scanbridge/internal/instruments"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// SymbolDirectory exposes the instrument universe and symbol lookups.
type SymbolDirectory interface {
	Entries(ctx context.Context, force bool) ([]instruments.Entry, error)
	Resolve(ctx context.Context, query string) (instruments.Row, error)
	OptionChain(ctx context.Context, underlying, expiry string) ([]instruments.OptionContract, error)
}

// QuoteSource fetches live quote snapshots.
type QuoteSource interface {
	Quotes(ctx context.Context, quoteKey string, securityIDs []int64) (map[int64]dhan.Quote, error)
}

// HeadlineSource scrapes recent headlines for a symbol.
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string) ([]news.Headline, error)
}

// MarketHandler handles universe, quote and headline API endpoints
type MarketHandler struct {
	directory SymbolDirectory
	quotes    QuoteSource
	headlines HeadlineSource
	quoteKey  string
	logger    *logger.Logger
}

// NewMarketHandler creates a new market data handler
func NewMarketHandler(directory SymbolDirectory, quotes QuoteSource, headlines HeadlineSource, quoteKey string, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		directory: directory,
		quotes:    quotes,
		headlines: headlines,
		quoteKey:  quoteKey,
		logger:    log,
	}
}

// GetUniverse returns the filtered equity universe
// GET /api/universe?force=
func (h *MarketHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	entries, err := h.directory.Entries(r.Context(), force)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build universe")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// ResolveSymbol resolves a free-form symbol query to a scrip-master row
// GET /api/symbols/resolve?q=
func (h *MarketHandler) ResolveSymbol(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "Missing 'q' parameter")
		return
	}

	row, err := h.directory.Resolve(r.Context(), query)
	if err != nil {
		if errors.Is(err, instruments.ErrSymbolNotFound) {
			respondError(w, http.StatusNotFound, "Symbol not found")
			return
		}
		h.logger.WithError(err).Error("Failed to resolve symbol")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, row)
}

// GetQuote returns the live quote for one symbol
// GET /api/quote?symbol=
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "Missing 'symbol' parameter")
		return
	}

	row, err := h.directory.Resolve(ctx, symbol)
	if err != nil {
		if errors.Is(err, instruments.ErrSymbolNotFound) {
			respondError(w, http.StatusNotFound, "Symbol not found")
			return
		}
		h.logger.WithError(err).Error("Failed to resolve symbol")
		respondUpstreamError(w, err)
		return
	}

	id, ok := row.SecurityIDInt()
	if !ok {
		respondError(w, http.StatusNotFound, "Symbol has no security id")
		return
	}

	quotes, err := h.quotes.Quotes(ctx, h.quoteKey, []int64{id})
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch quote")
		respondUpstreamError(w, err)
		return
	}

	quote, ok := quotes[id]
	if !ok {
		respondError(w, http.StatusNotFound, "No quote available")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":      row.SymbolName,
		"security_id": id,
		"quote":       quote,
	})
}

// GetOptionChain returns option contracts for an underlying
// GET /api/optionchain?under=&expiry=
func (h *MarketHandler) GetOptionChain(w http.ResponseWriter, r *http.Request) {
	under := r.URL.Query().Get("under")
	if under == "" {
		respondError(w, http.StatusBadRequest, "Missing 'under' parameter")
		return
	}
	expiry := r.URL.Query().Get("expiry")

	contracts, err := h.directory.OptionChain(r.Context(), under, expiry)
	if err != nil {
		if errors.Is(err, instruments.ErrSymbolNotFound) {
			respondError(w, http.StatusNotFound, "No contracts for underlying")
			return
		}
		h.logger.WithError(err).Error("Failed to build option chain")
		respondUpstreamError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"underlying": under,
		"count":      len(contracts),
		"contracts":  contracts,
	})
}

// GetNews returns scraped headlines with naive sentiment
// GET /api/news?symbol=
func (h *MarketHandler) GetNews(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "Missing 'symbol' parameter")
		return
	}

	headlines, err := h.headlines.Headlines(r.Context(), symbol)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch headlines")
		respondError(w, http.StatusBadGateway, "Failed to fetch headlines")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"count":     len(headlines),
		"headlines": headlines,
	})
}

// respondUpstreamError maps dataset/gateway failures to HTTP statuses.
func respondUpstreamError(w http.ResponseWriter, err error) {
	var rateErr *dhan.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		respondError(w, http.StatusTooManyRequests, "Rate limited by upstream")
	case errors.Is(err, auth.ErrNoCredential):
		respondError(w, http.StatusUnauthorized, "No usable broker credential")
	case errors.Is(err, instruments.ErrDatasetUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Reference dataset unavailable")
	default:
		respondError(w, http.StatusBadGateway, "Upstream request failed")
	}
}
