package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/quantlab/scanbridge/internal/scan"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// Scanner runs parameterized scans.
type Scanner interface {
	Scan(ctx context.Context, params scan.Params) *scan.Response
}

// ScanHandler handles scan API endpoints
type ScanHandler struct {
	engine Scanner
	logger *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(engine Scanner, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		engine: engine,
		logger: log,
	}
}

// Scan runs a BTST scan over the equity universe
// GET /api/scan/btst?limit=&offset=&window=&batch=&only_today=&mode=
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	params := scanParamsFromQuery(r)

	resp := h.engine.Scan(r.Context(), params)

	// Failures travel in the response envelope; rate-limit hints also go
	// out as a header so well-behaved clients can back off.
	if resp.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSec))
	}
	respondJSON(w, http.StatusOK, resp)
}

// scanParamsFromQuery parses scan parameters, leaving absent ones zero so
// the engine applies its configured defaults.
func scanParamsFromQuery(r *http.Request) scan.Params {
	q := r.URL.Query()

	params := scan.Params{
		Limit:      queryInt(q.Get("limit")),
		Offset:     queryInt(q.Get("offset")),
		WindowSize: queryInt(q.Get("window")),
		BatchSize:  queryInt(q.Get("batch")),
		Mode:       scan.Mode(q.Get("mode")),
	}
	if v, err := strconv.ParseBool(q.Get("only_today")); err == nil {
		params.OnlyToday = v
	}

	return params
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
