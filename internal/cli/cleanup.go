package cli

import (
	"context"
	"fmt"

	"dwiju-assistant/backend/pkg/di"

	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deactivate chat sessions idle for longer than --days",
	Long: `Deactivate chat sessions whose last activity is older than the given
number of days. Transcripts are kept; deactivated sessions drop out of the
default session listing.

Examples:
  dwiju cleanup
  dwiju cleanup --days 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cleanupDays
		if days <= 0 {
			days = cfg.Ledger.IdleDays
		}

		container, err := di.New(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("initialize dependencies: %w", err)
		}
		defer container.Close(context.Background())

		n, err := container.Ledger.CleanupIdle(cmd.Context(), days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deactivated %d idle session(s) older than %d day(s)\n", n, days)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "idle threshold in days (default SESSION_IDLE_DAYS)")
}
