package instruments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

const masterHeader = "EXCH_ID,SEGMENT,SERIES,INSTRUMENT,UNDERLYING_SYMBOL,SYMBOL_NAME,DISPLAY_NAME,SECURITY_ID,STRIKE_PRICE,OPTION_TYPE,LOT_SIZE,SM_EXPIRY_DATE"

var masterFixture = strings.Join([]string{
	masterHeader,
	"NSE,E,EQ,EQUITY,RELIANCE,RELIANCE,Reliance Industries,2885.0,,,1,",
	"NSE,E,EQ,EQUITY,TCS,TCS,Tata Consultancy Services,11536.0,,,1,",
	"NSE,E,EQ,EQUITY,RELIANCE,RELIANCE,Reliance Industries,2885.0,,,1,", // duplicate
	"BSE,E,EQ,EQUITY,INFY,INFY,Infosys,500209.0,,,1,",
	"NSE,E,EQ,EQUITY,INFY,INFY,Infosys,1594.0,,,1,",
	"NSE,D,EQ,FUTSTK,TCS,TCS-FUT,TCS Futures,35001.0,,,175,2026-02-26",
	"NSE,E,BE,EQUITY,SUZLON,SUZLON,Suzlon Energy,12018.0,,,1,",
	"NSE,E,EQ,EQUITY,NIFTYBEES,NIFTYBEES,Nippon India ETF Nifty BeES,10576.0,,,1,",
	"NSE,D,,OPTIDX,NIFTY,NIFTY-25000-CE,NIFTY 29 Jan 25000 CALL,41001.0,25000.0,CE,75.0,2026-01-29",
	"NSE,D,,OPTIDX,NIFTY,NIFTY-25000-PE,NIFTY 29 Jan 25000 PUT,41002.0,25000.5,PE,75.0,2026-01-29",
	"NSE,D,,OPTIDX,NIFTY,NIFTY-26000-CE,NIFTY 26 Feb 26000 CALL,41003.0,26000.0,CE,75.0,2026-02-26",
}, "\n")

func newTestMaster(t *testing.T, ttl time.Duration, handler http.HandlerFunc) (*Master, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := httputil.New(logger.Nop(), 5*time.Second).DisableRetry()
	return NewMaster(server.URL, ttl, httpClient, logger.Nop()), server
}

func serveFixture(calls *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		w.Write([]byte(masterFixture))
	}
}

func TestRowsCachedWithinTTL(t *testing.T) {
	var calls int64
	master, _ := newTestMaster(t, time.Hour, serveFixture(&calls))

	ctx := context.Background()

	first, err := master.Rows(ctx, false)
	require.NoError(t, err)
	assert.Len(t, first, 11)

	second, err := master.Rows(ctx, false)
	require.NoError(t, err)
	assert.Len(t, second, 11)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "two loads within TTL must download once")
}

func TestRowsForceRefresh(t *testing.T) {
	var calls int64
	master, _ := newTestMaster(t, time.Hour, serveFixture(&calls))

	ctx := context.Background()

	_, err := master.Rows(ctx, false)
	require.NoError(t, err)
	gen1 := master.Generation()

	_, err = master.Rows(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	assert.Equal(t, gen1+1, master.Generation())
}

func TestRowsUnavailableWithoutCache(t *testing.T) {
	master, _ := newTestMaster(t, time.Hour, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := master.Rows(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatasetUnavailable)
}

func TestRowsFailedRefreshKeepsCache(t *testing.T) {
	var calls int64
	var fail atomic.Bool

	master, _ := newTestMaster(t, time.Hour, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(masterFixture))
	})

	ctx := context.Background()

	rows, err := master.Rows(ctx, false)
	require.NoError(t, err)
	require.Len(t, rows, 11)
	gen := master.Generation()

	// Forced refresh fails: the error surfaces, the cache stays untouched.
	fail.Store(true)
	_, err = master.Rows(ctx, true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDatasetUnavailable)

	var ue *dhan.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.Status)

	cached, err := master.Rows(ctx, false)
	require.NoError(t, err)
	assert.Len(t, cached, 11)
	assert.Equal(t, gen, master.Generation())
}

func TestParseMaster(t *testing.T) {
	rows, err := parseMaster(strings.NewReader(masterFixture))
	require.NoError(t, err)
	require.Len(t, rows, 11)

	assert.Equal(t, "NSE", rows[0].ExchangeID)
	assert.Equal(t, "RELIANCE", rows[0].SymbolName)

	id, ok := rows[0].SecurityIDInt()
	assert.True(t, ok)
	assert.Equal(t, int64(2885), id, "float-form security id must parse")

	strike, ok := rows[8].Strike()
	assert.True(t, ok)
	assert.Equal(t, 25000.0, strike)

	lot, ok := rows[8].LotSizeInt()
	assert.True(t, ok)
	assert.Equal(t, int64(75), lot)
}

func TestParseMasterMissingColumn(t *testing.T) {
	_, err := parseMaster(strings.NewReader("A,B,C\n1,2,3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestParseLooseInt(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		wantOK bool
	}{
		{"11536", 11536, true},
		{"11536.0", 11536, true},
		{"75.0", 75, true},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseLooseInt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
