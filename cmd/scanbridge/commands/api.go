package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantlab/scanbridge/internal/api"
	"github.com/quantlab/scanbridge/internal/api/handlers"
	"github.com/quantlab/scanbridge/internal/scheduler"
	"github.com/quantlab/scanbridge/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API server",
	Long: `Starts the REST API server with the background scheduler.

Endpoints:
  GET    /health                - Health check
  GET    /api/scan/btst         - Run a BTST scan
  GET    /api/universe          - Filtered equity universe
  GET    /api/symbols/resolve   - Resolve a symbol query
  GET    /api/quote             - Live quote for one symbol
  GET    /api/optionchain       - Option contracts for an underlying
  GET    /api/news              - Headlines with naive sentiment
  POST   /api/orders            - Place an order
  GET    /api/orders/{id}       - Order status
  DELETE /api/orders/{id}       - Cancel an order
  GET    /ws/quotes             - Websocket quote stream

Example:
  go run ./cmd/scanbridge api
  go run ./cmd/scanbridge api --port 8085`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	b, err := newBridge()
	if err != nil {
		return err
	}
	defer b.Close()

	if apiPort != "" {
		b.cfg.Port = apiPort
	}
	log := b.log

	// Handlers
	scanHandler := handlers.NewScanHandler(b.engine, log)
	marketHandler := handlers.NewMarketHandler(b.universe, b.dhan, b.news, b.cfg.Dhan.QuoteKey, log)
	orderHandler := handlers.NewOrderHandler(b.dhan, log)
	quoteStream := api.NewQuoteStream(b.universe, b.dhan, b.cfg.Dhan.QuoteKey, log)

	router := api.NewRouter(scanHandler, marketHandler, orderHandler, quoteStream, log)
	server := api.New(b.cfg, log, router)

	// Background jobs
	sched := scheduler.New(log)
	for _, job := range []scheduler.Job{
		jobs.NewDatasetRefreshJob(b.master, b.universe, log),
		jobs.NewCacheSweepJob(b.cache, log),
		jobs.NewTokenKeepaliveJob(b.tokens, log),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", b.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
