package dhan

// OHLC is the day's open/high/low/close for one instrument.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Quote is one instrument's snapshot from the marketfeed quote API.
// Quotes are ephemeral: valid only for the duration of one scan.
type Quote struct {
	LastPrice     float64 `json:"last_price"`
	OHLC          OHLC    `json:"ohlc"`
	LastTradeTime string  `json:"last_trade_time"`
	OpenInterest  int64   `json:"oi"`
	Volume        int64   `json:"volume"`
}

// quoteResponse is the wire shape of the quote API response: records are
// nested under data.<quoteKey>.<securityIdAsString>.
type quoteResponse struct {
	Data   map[string]map[string]Quote `json:"data"`
	Status string                      `json:"status"`
}

// OrderRequest is the order placement payload.
type OrderRequest struct {
	TransactionType string  `json:"transaction_type"` // BUY or SELL
	ExchangeSegment string  `json:"exchange_segment"`
	ProductType     string  `json:"product_type"`
	SecurityID      string  `json:"security_id"`
	Quantity        int     `json:"quantity"`
	OrderType       string  `json:"order_type"`
	Price           float64 `json:"price"`
	AfterMarketHour bool    `json:"after_market_order"`
}

// OrderResponse is the broker's reply to order operations, passed through
// to the caller as-is.
type OrderResponse map[string]interface{}
