package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantlab/scanbridge/internal/api/handlers"
	"github.com/quantlab/scanbridge/pkg/logger"
)

const (
	wsPushInterval = 5 * time.Second
	wsWriteWait    = 10 * time.Second
	wsMaxSymbols   = 25
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The bridge runs behind the caller's own network boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// QuoteStream pushes periodic quote snapshots to websocket clients.
type QuoteStream struct {
	directory handlers.SymbolDirectory
	quotes    handlers.QuoteSource
	quoteKey  string
	logger    *logger.Logger
}

// NewQuoteStream creates a websocket quote streamer.
func NewQuoteStream(directory handlers.SymbolDirectory, quotes handlers.QuoteSource, quoteKey string, log *logger.Logger) *QuoteStream {
	return &QuoteStream{
		directory: directory,
		quotes:    quotes,
		quoteKey:  quoteKey,
		logger:    log.Component("ws"),
	}
}

// Serve upgrades the connection and streams quotes for the requested
// symbols until the client goes away
// GET /ws/quotes?symbols=TCS,RELIANCE
func (s *QuoteStream) Serve(w http.ResponseWriter, r *http.Request) {
	ids, symbols, err := s.resolveSymbols(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.WithField("symbols", symbols).Info("Quote stream opened")

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for {
		quotes, err := s.quotes.Quotes(ctx, s.quoteKey, ids)

		payload := map[string]interface{}{
			"ts": time.Now().UTC(),
		}
		if err != nil {
			payload["status"] = "error"
			payload["reason"] = err.Error()
		} else {
			named := make(map[string]interface{}, len(quotes))
			for i, id := range ids {
				if q, ok := quotes[id]; ok {
					named[symbols[i]] = q
				}
			}
			payload["status"] = "success"
			payload["quotes"] = named
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(payload); err != nil {
			s.logger.WithError(err).Debug("Quote stream closed")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// resolveSymbols maps the symbols query parameter to security ids.
func (s *QuoteStream) resolveSymbols(r *http.Request) ([]int64, []string, error) {
	raw := strings.Split(r.URL.Query().Get("symbols"), ",")

	var (
		ids     []int64
		symbols []string
	)
	for _, sym := range raw {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if len(symbols) >= wsMaxSymbols {
			break
		}

		row, err := s.directory.Resolve(r.Context(), sym)
		if err != nil {
			continue
		}
		id, ok := row.SecurityIDInt()
		if !ok {
			continue
		}

		ids = append(ids, id)
		symbols = append(symbols, row.SymbolName)
	}

	if len(ids) == 0 {
		return nil, nil, errors.New("no resolvable symbols in 'symbols' parameter")
	}
	return ids, symbols, nil
}
