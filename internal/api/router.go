package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantlab/scanbridge/internal/api/handlers"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	scanHandler *handlers.ScanHandler,
	marketHandler *handlers.MarketHandler,
	orderHandler *handlers.OrderHandler,
	quoteStream *QuoteStream,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Scan
	api.HandleFunc("/scan/btst", scanHandler.Scan).Methods("GET")

	// Market data
	api.HandleFunc("/universe", marketHandler.GetUniverse).Methods("GET")
	api.HandleFunc("/symbols/resolve", marketHandler.ResolveSymbol).Methods("GET")
	api.HandleFunc("/quote", marketHandler.GetQuote).Methods("GET")
	api.HandleFunc("/optionchain", marketHandler.GetOptionChain).Methods("GET")
	api.HandleFunc("/news", marketHandler.GetNews).Methods("GET")

	// Orders
	api.HandleFunc("/orders", orderHandler.Place).Methods("POST")
	api.HandleFunc("/orders/{id}", orderHandler.Status).Methods("GET")
	api.HandleFunc("/orders/{id}", orderHandler.Cancel).Methods("DELETE")

	// Streaming
	r.HandleFunc("/ws/quotes", quoteStream.Serve).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "scanbridge-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
