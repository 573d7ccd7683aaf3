package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantlab/scanbridge/internal/scan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a BTST scan over the equity universe",
	Long: `Runs one scan against live quotes and prints the ranked results.

Example:
  go run ./cmd/scanbridge scan
  go run ./cmd/scanbridge scan --window 200 --mode strided --offset 400
  go run ./cmd/scanbridge scan --only-today --limit 5`,
	RunE: runScan,
}

var (
	scanLimit     int
	scanOffset    int
	scanWindow    int
	scanBatch     int
	scanOnlyToday bool
	scanMode      string
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "max results (0 = configured default)")
	scanCmd.Flags().IntVar(&scanOffset, "offset", 0, "window offset into the universe")
	scanCmd.Flags().IntVar(&scanWindow, "window", 0, "universe entries to examine (0 = configured default)")
	scanCmd.Flags().IntVar(&scanBatch, "batch", 0, "quote batch size (0 = configured default)")
	scanCmd.Flags().BoolVar(&scanOnlyToday, "only-today", false, "skip instruments without a trade today")
	scanCmd.Flags().StringVar(&scanMode, "mode", "strided", "sampling mode (strided|sequential)")
}

func runScan(cmd *cobra.Command, args []string) error {
	b, err := newBridge()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp := b.engine.Scan(ctx, scan.Params{
		Limit:      scanLimit,
		Offset:     scanOffset,
		WindowSize: scanWindow,
		BatchSize:  scanBatch,
		OnlyToday:  scanOnlyToday,
		Mode:       scan.Mode(scanMode),
	})

	if !resp.OK() {
		if resp.RetryAfterSec > 0 {
			return fmt.Errorf("scan failed: %s (retry after %ds)", resp.Reason, resp.RetryAfterSec)
		}
		return fmt.Errorf("scan failed: %s", resp.Reason)
	}

	fmt.Printf("universe=%d scanned=%d skipped_no_quote=%d skipped_stale=%d\n\n",
		resp.UniverseSize, resp.Scanned, resp.SkippedNoQuote, resp.SkippedStale)

	if len(resp.Results) == 0 {
		fmt.Println("No candidates in this window.")
		return nil
	}

	fmt.Printf("%-16s %-8s %5s %12s %9s  %s\n", "SYMBOL", "BIAS", "CONF", "LAST", "CHG%", "LAST TRADE")
	for _, r := range resp.Results {
		fmt.Printf("%-16s %-8s %5d %12.2f %+8.2f%%  %s\n",
			r.Symbol, r.Bias, r.Confidence, r.LastPrice, r.PctChange, r.LastTradeTime)
	}

	return nil
}
