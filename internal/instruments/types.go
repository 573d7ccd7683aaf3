package instruments

import (
	"errors"
	"strconv"
)

var (
	// ErrSymbolNotFound is returned when no scrip-master row matches a
	// symbol query.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrDatasetUnavailable is returned when a scrip-master refresh failed
	// and no cached dataset exists yet.
	ErrDatasetUnavailable = errors.New("scrip master unavailable")
)

// Row is one instrument record from the scrip-master CSV. Fields are kept
// as received; numeric columns are parsed on demand because the upstream
// serializes integers as floats ("11536.0").
type Row struct {
	ExchangeID  string // EXCH_ID
	Segment     string // SEGMENT
	Series      string // SERIES
	Instrument  string // INSTRUMENT
	Underlying  string // UNDERLYING_SYMBOL
	SymbolName  string // SYMBOL_NAME
	DisplayName string // DISPLAY_NAME
	SecurityID  string // SECURITY_ID
	StrikePrice string // STRIKE_PRICE
	OptionType  string // OPTION_TYPE
	LotSize     string // LOT_SIZE
	ExpiryDate  string // SM_EXPIRY_DATE
}

// SecurityIDInt parses the security id, tolerating the float form.
func (r Row) SecurityIDInt() (int64, bool) {
	return parseLooseInt(r.SecurityID)
}

// LotSizeInt parses the lot size, tolerating the float form.
func (r Row) LotSizeInt() (int64, bool) {
	return parseLooseInt(r.LotSize)
}

// Strike parses the strike price; ok is false when absent or malformed.
func (r Row) Strike() (float64, bool) {
	if r.StrikePrice == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(r.StrikePrice, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseLooseInt accepts "11536" and "11536.0".
func parseLooseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// Entry is one tradable instrument in the scan universe.
type Entry struct {
	SecurityID  int64  `json:"security_id"`
	SymbolName  string `json:"symbol"`
	DisplayName string `json:"display_name"`
}
