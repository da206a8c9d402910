package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the encrypted offline rate cache",
	Long: `The cache keeps billing rates and case billing profiles so rates still
resolve while the server is unreachable. It never holds timers or entries.

Examples:
  casetime cache status
  casetime cache reset      # Forget every cached rate and case profile`,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the cache holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if appInstance.DB == nil {
			fmt.Fprintln(out, "Cache disabled")
			return nil
		}

		ctx := cmd.Context()
		var rates, cases int
		if err := appInstance.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM billing_rates").Scan(&rates); err != nil {
			return fmt.Errorf("failed to count cached rates: %w", err)
		}
		if err := appInstance.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM case_profiles").Scan(&cases); err != nil {
			return fmt.Errorf("failed to count cached cases: %w", err)
		}

		fmt.Fprintf(out, "Path: %s\n", appInstance.Config.Cache.Path)
		fmt.Fprintf(out, "Rates: %d\n", rates)
		fmt.Fprintf(out, "Case profiles: %d\n", cases)

		syncedAt, err := appInstance.Cache.SyncedAt(ctx, appInstance.API.UserID())
		if err != nil {
			return err
		}
		if syncedAt.IsZero() {
			fmt.Fprintln(out, "Last sync: never")
		} else {
			fmt.Fprintf(out, "Last sync: %s\n", syncedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every cached rate and case profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appInstance.DB == nil {
			return fmt.Errorf("the reference cache is disabled")
		}

		if !confirmPrompt(cmd.InOrStdin(), cmd.OutOrStdout(), "This will delete all cached rates and case profiles. Continue?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}

		if err := appInstance.DB.Reset(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared. Run 'casetime rates sync' to refill it.")
		return nil
	},
}

func confirmPrompt(in io.Reader, out io.Writer, message string) bool {
	fmt.Fprintf(out, "%s [y/N] ", message)
	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == "yes"
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheResetCmd)
}
