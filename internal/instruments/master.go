package instruments

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quantlab/scanbridge/internal/dhan"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// Master is the TTL-gated cache of the scrip-master reference dataset.
// The row set is replaced atomically on refresh; a failed refresh leaves
// the cached rows untouched. Refreshes are single-flight: concurrent
// callers that find the cache expired wait for the one in-flight download.
type Master struct {
	url        string
	ttl        time.Duration
	httpClient *httputil.Client
	logger     *logger.Logger

	mu         sync.RWMutex
	rows       []Row
	fetchedAt  time.Time
	generation uint64
}

// NewMaster creates a scrip-master cache.
func NewMaster(url string, ttl time.Duration, httpClient *httputil.Client, log *logger.Logger) *Master {
	return &Master{
		url:        url,
		ttl:        ttl,
		httpClient: httpClient,
		logger:     log.Component("scrip-master"),
	}
}

// Rows returns the cached dataset, downloading it when the cache is empty,
// expired, or force is set.
func (m *Master) Rows(ctx context.Context, force bool) ([]Row, error) {
	m.mu.RLock()
	if m.fresh(force) {
		rows := m.rows
		m.mu.RUnlock()
		return rows, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock: a concurrent caller may
	// have refreshed while we waited.
	if m.fresh(force) {
		return m.rows, nil
	}

	rows, err := m.download(ctx)
	if err != nil {
		if m.rows == nil {
			return nil, fmt.Errorf("%w: %w", ErrDatasetUnavailable, err)
		}
		return nil, err
	}

	m.rows = rows
	m.fetchedAt = time.Now()
	m.generation++

	m.logger.WithFields(map[string]interface{}{
		"rows": len(rows),
		"ttl":  m.ttl,
	}).Info("Refreshed scrip master")

	return rows, nil
}

// Generation increments on every successful refresh; derived caches use it
// to detect that they must rebuild.
func (m *Master) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// FetchedAt returns when the cached dataset was downloaded.
func (m *Master) FetchedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchedAt
}

// fresh reports whether the cache can be served. Callers must hold a lock.
func (m *Master) fresh(force bool) bool {
	return !force && m.rows != nil && time.Since(m.fetchedAt) < m.ttl
}

// download fetches and parses the full dataset in one pass. All-or-nothing:
// any transport or parse failure discards the partial result.
func (m *Master) download(ctx context.Context) ([]Row, error) {
	resp, err := m.httpClient.Get(ctx, m.url)
	if err != nil {
		return nil, &dhan.UpstreamError{Op: "scrip-master", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &dhan.UpstreamError{Op: "scrip-master", Status: resp.StatusCode}
	}

	rows, err := parseMaster(resp.Body)
	if err != nil {
		return nil, &dhan.UpstreamError{Op: "scrip-master", Err: err}
	}

	return rows, nil
}

// parseMaster reads the delimited dataset, mapping columns by header name.
func parseMaster(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // upstream rows are occasionally ragged

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, col := range []string{"EXCH_ID", "SEGMENT", "SERIES", "SECURITY_ID", "SYMBOL_NAME"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("scrip master missing column %s", col)
		}
	}

	field := func(record []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		rows = append(rows, Row{
			ExchangeID:  field(record, "EXCH_ID"),
			Segment:     field(record, "SEGMENT"),
			Series:      field(record, "SERIES"),
			Instrument:  field(record, "INSTRUMENT"),
			Underlying:  field(record, "UNDERLYING_SYMBOL"),
			SymbolName:  field(record, "SYMBOL_NAME"),
			DisplayName: field(record, "DISPLAY_NAME"),
			SecurityID:  field(record, "SECURITY_ID"),
			StrikePrice: field(record, "STRIKE_PRICE"),
			OptionType:  field(record, "OPTION_TYPE"),
			LotSize:     field(record, "LOT_SIZE"),
			ExpiryDate:  field(record, "SM_EXPIRY_DATE"),
		})
	}

	return rows, nil
}
