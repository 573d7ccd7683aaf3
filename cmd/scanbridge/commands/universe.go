package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Build and print the filtered equity universe",
	Long: `Downloads the scrip master (or reuses the cached copy) and prints
the filtered, de-duplicated equity universe.

Example:
  go run ./cmd/scanbridge universe
  go run ./cmd/scanbridge universe --force --head 50`,
	RunE: runUniverse,
}

var (
	universeForce bool
	universeHead  int
)

func init() {
	rootCmd.AddCommand(universeCmd)

	universeCmd.Flags().BoolVar(&universeForce, "force", false, "force a dataset refresh")
	universeCmd.Flags().IntVar(&universeHead, "head", 20, "print at most N entries (0 = all)")
}

func runUniverse(cmd *cobra.Command, args []string) error {
	b, err := newBridge()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if universeForce {
		if _, err := b.master.Rows(ctx, true); err != nil {
			return fmt.Errorf("refresh dataset: %w", err)
		}
	}

	entries, err := b.universe.Entries(ctx, universeForce)
	if err != nil {
		return fmt.Errorf("build universe: %w", err)
	}

	fmt.Printf("universe: %d entries (dataset fetched %s)\n\n", len(entries), b.master.FetchedAt().Format(time.RFC3339))

	shown := len(entries)
	if universeHead > 0 && universeHead < shown {
		shown = universeHead
	}

	fmt.Printf("%-12s %-16s %s\n", "SECURITY_ID", "SYMBOL", "NAME")
	for _, e := range entries[:shown] {
		fmt.Printf("%-12d %-16s %s\n", e.SecurityID, e.SymbolName, e.DisplayName)
	}
	if shown < len(entries) {
		fmt.Printf("... and %d more\n", len(entries)-shown)
	}

	return nil
}
