package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect or refresh the broker token",
}

// tokenStatusCmd prints the current token expiry
var tokenStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show broker token expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		expiresAt := b.tokens.ExpiresAt()
		if expiresAt.IsZero() {
			fmt.Println("No broker token held.")
			return nil
		}

		fmt.Printf("token expires at %s (in %s)\n",
			expiresAt.Format(time.RFC3339), time.Until(expiresAt).Round(time.Second))
		return nil
	},
}

// tokenRefreshCmd forces a token refresh
var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force a broker token refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBridge()
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := b.tokens.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh token: %w", err)
		}

		fmt.Printf("token refreshed, expires at %s\n", b.tokens.ExpiresAt().Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenStatusCmd)
	tokenCmd.AddCommand(tokenRefreshCmd)
}
