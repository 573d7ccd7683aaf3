package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/scanbridge/internal/scan"
	"github.com/quantlab/scanbridge/pkg/logger"
)

type fakeScanner struct {
	gotParams scan.Params
	resp      *scan.Response
}

func (f *fakeScanner) Scan(ctx context.Context, params scan.Params) *scan.Response {
	f.gotParams = params
	return f.resp
}

func TestScanParsesQueryParams(t *testing.T) {
	scanner := &fakeScanner{resp: &scan.Response{Status: "success"}}
	handler := NewScanHandler(scanner, logger.Nop())

	req := httptest.NewRequest("GET", "/api/scan/btst?limit=5&offset=40&window=80&batch=20&only_today=true&mode=sequential", nil)
	rec := httptest.NewRecorder()

	handler.Scan(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, scan.Params{
		Limit:      5,
		Offset:     40,
		WindowSize: 80,
		BatchSize:  20,
		OnlyToday:  true,
		Mode:       scan.ModeSequential,
	}, scanner.gotParams)
}

func TestScanAbsentParamsStayZero(t *testing.T) {
	scanner := &fakeScanner{resp: &scan.Response{Status: "success"}}
	handler := NewScanHandler(scanner, logger.Nop())

	req := httptest.NewRequest("GET", "/api/scan/btst", nil)
	rec := httptest.NewRecorder()

	handler.Scan(rec, req)

	assert.Equal(t, scan.Params{}, scanner.gotParams, "engine applies its own defaults")
}

func TestScanRateLimitedResponseCarriesRetryAfter(t *testing.T) {
	scanner := &fakeScanner{resp: &scan.Response{
		Status:        "error",
		Reason:        "rate limited by upstream",
		RetryAfterSec: 30,
	}}
	handler := NewScanHandler(scanner, logger.Nop())

	req := httptest.NewRequest("GET", "/api/scan/btst", nil)
	rec := httptest.NewRecorder()

	handler.Scan(rec, req)

	// Failures travel in the envelope with a 200, mirroring the scan
	// response cache semantics; the header is the back-off hint.
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	var body scan.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, 30, body.RetryAfterSec)
}
