package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scanbridge",
	Short: "Market data bridge and BTST scanner for the Dhan broker API",
	Long: `scanbridge keeps a usable broker token alive, caches the scrip
master reference dataset, and runs rate-limit-aware BTST scans over the
NSE equity universe.

Usage:
  go run ./cmd/scanbridge [command]

Examples:
  go run ./cmd/scanbridge api
  go run ./cmd/scanbridge scan --window 200 --mode strided
  go run ./cmd/scanbridge universe
  go run ./cmd/scanbridge token status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
