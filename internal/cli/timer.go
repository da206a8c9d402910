package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/service"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Manage case timers",
	Long:  `Start, pause, resume, stop, or discard timers. Several timers may run at once.`,
}

var timerStartCmd = &cobra.Command{
	Use:   "start <case_id> [description...]",
	Short: "Start a new timer on a case",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.Join(args[1:], " ")

		timer, err := appInstance.TimerService.Start(cmd.Context(), args[0], description)
		if err != nil {
			return fmt.Errorf("failed to start timer: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Timer %s started on case %s\n", timer.ID, timer.CaseID)
		if timer.Description != "" {
			fmt.Fprintf(out, "  Description: %s\n", timer.Description)
		}
		return nil
	},
}

var timerPauseCmd = &cobra.Command{
	Use:   "pause <timer_id>",
	Short: "Pause a running timer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveTimerID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		timer, err := appInstance.TimerService.Pause(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to pause timer: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Timer %s paused at %s\n", timer.ID, domain.FormatHMS(timer.AccumulatedSeconds))
		return nil
	},
}

var timerResumeCmd = &cobra.Command{
	Use:   "resume <timer_id>",
	Short: "Resume a paused timer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveTimerID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		timer, err := appInstance.TimerService.Resume(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to resume timer: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Timer %s resumed\n", timer.ID)
		return nil
	},
}

var (
	stopDescription string
	stopRate        string
	stopWorkedAt    string
	stopEmergency   bool
	stopBillable    bool
)

var timerStopCmd = &cobra.Command{
	Use:   "stop <timer_id>",
	Short: "Stop a timer and save it as a draft time entry",
	Long: `Stop a timer and convert it into a draft time entry on the server.

The hourly rate is the most specific billing rate for the case, with the
case's weekend, after-hours, or emergency multipliers applied. Use --rate to
bill a fixed rate instead and --worked-at when the work happened earlier than now.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveTimerID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		opts := service.ConvertOptions{
			Description: stopDescription,
			Billable:    stopBillable,
			IsEmergency: stopEmergency,
		}
		if stopRate != "" {
			rate, err := domain.ParseMoney(stopRate)
			if err != nil {
				return apperrors.NewValidationError("invalid --rate", err)
			}
			opts.RateOverride = &rate
		}
		if stopWorkedAt != "" {
			at, err := parseWorkedAt(stopWorkedAt, appInstance.Converter.Location())
			if err != nil {
				return err
			}
			opts.WorkedAt = at
		}

		entry, err := appInstance.TimerService.Convert(cmd.Context(), id, opts)
		if err != nil {
			return fmt.Errorf("failed to stop timer: %w", err)
		}

		printEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var timerDiscardCmd = &cobra.Command{
	Use:   "discard <timer_id>",
	Short: "Discard a timer without saving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveTimerID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if err := appInstance.TimerService.Discard(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to discard timer: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Timer %s discarded\n", id)
		return nil
	},
}

var timerStopAllCmd = &cobra.Command{
	Use:   "stop-all",
	Short: "Discard every active timer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := appInstance.TimerService.StopAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to stop timers: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No active timers")
			return nil
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %s\n", r.TimerID, apperrors.GetUserMessage(r.Err))
				continue
			}
			fmt.Fprintf(out, "✓ %s discarded\n", r.TimerID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d timers could not be stopped", failed, len(results))
		}
		return nil
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active timers and what they are worth so far",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if _, err := appInstance.TimerService.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to load timers: %w", err)
		}

		snap := appInstance.TimerService.Snapshot()
		if len(snap.Timers) == 0 {
			fmt.Fprintln(out, "No active timers")
			return nil
		}

		summary, err := appInstance.ReportService.Accruals(ctx, snap)
		if err != nil {
			return fmt.Errorf("failed to price timers: %w", err)
		}

		fmt.Fprintf(out, "%-12s %-14s %-8s %-10s %-10s %-12s %s\n", "Timer", "Case", "State", "Elapsed", "Rate", "Value", "Description")
		fmt.Fprintln(out, strings.Repeat("-", 84))
		for i, a := range summary.Timers {
			rate, value := "-", "-"
			if a.Priced {
				rate = domain.FormatMoney(a.Rate)
				value = domain.FormatMoney(a.Amount)
			}
			fmt.Fprintf(out, "%-12s %-14s %-8s %-10s %-10s %-12s %s\n",
				truncate(a.TimerID, 12),
				truncate(a.CaseID, 14),
				a.State,
				domain.FormatHMS(a.ElapsedSeconds),
				rate,
				value,
				truncate(snap.Timers[i].Timer.Description, 30),
			)
		}
		fmt.Fprintln(out, strings.Repeat("-", 84))
		fmt.Fprintf(out, "Total: %d timers, %s, %s\n", len(summary.Timers), domain.FormatHuman(summary.TotalSeconds), domain.FormatMoney(summary.TotalAmount))
		if summary.Unpriced > 0 {
			fmt.Fprintf(out, "  %d timer(s) have no applicable rate\n", summary.Unpriced)
		}
		return nil
	},
}

func init() {
	timerStopCmd.Flags().StringVarP(&stopDescription, "description", "d", "", "Entry description (defaults to the timer's)")
	timerStopCmd.Flags().StringVar(&stopRate, "rate", "", "Bill this hourly rate instead of resolving one")
	timerStopCmd.Flags().StringVar(&stopWorkedAt, "worked-at", "", "When the work happened (RFC3339 or \"2006-01-02 15:04\")")
	timerStopCmd.Flags().BoolVar(&stopEmergency, "emergency", false, "Apply the case's emergency multiplier")
	timerStopCmd.Flags().BoolVar(&stopBillable, "billable", true, "Mark the entry billable")

	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerPauseCmd)
	timerCmd.AddCommand(timerResumeCmd)
	timerCmd.AddCommand(timerStopCmd)
	timerCmd.AddCommand(timerDiscardCmd)
	timerCmd.AddCommand(timerStopAllCmd)
	timerCmd.AddCommand(timerStatusCmd)
}

// resolveTimerID accepts a full timer ID or a unique prefix of one
func resolveTimerID(ctx context.Context, idOrPrefix string) (string, error) {
	timers, err := appInstance.TimerService.Refresh(ctx)
	if err != nil {
		if apperrors.IsRecoverable(err) {
			// let the lifecycle call report it against the cached view
			return idOrPrefix, nil
		}
		return "", fmt.Errorf("failed to load timers: %w", err)
	}

	var matches []string
	for _, t := range timers {
		if t.ID == idOrPrefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, idOrPrefix) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", apperrors.NewNotFoundError("timer", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return "", apperrors.NewValidationError(
			fmt.Sprintf("timer prefix %q matches %d timers: %s", idOrPrefix, len(matches), strings.Join(matches, ", ")), nil)
	}
}

// parseWorkedAt reads an RFC3339 instant or a local "2006-01-02 15:04"
func parseWorkedAt(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(fmt.Sprintf("invalid --worked-at %q", s), err)
	}
	return t, nil
}

func printEntry(out io.Writer, entry *domain.TimeEntry) {
	fmt.Fprintf(out, "✓ Timer stopped, draft entry %s created\n", entry.ID)
	fmt.Fprintf(out, "  Case: %s\n", entry.CaseID)
	fmt.Fprintf(out, "  Date: %s\n", entry.Date.Format("2006-01-02"))
	fmt.Fprintf(out, "  Hours: %s\n", entry.Hours.String())
	if len(entry.AppliedMultipliers) > 0 {
		fmt.Fprintf(out, "  Base rate: %s\n", domain.FormatMoney(entry.BaseRate))
		for _, m := range entry.AppliedMultipliers {
			fmt.Fprintf(out, "  × %s (%s)\n", m.Factor.String(), m.Kind)
		}
	}
	fmt.Fprintf(out, "  Rate: %s/h\n", domain.FormatMoney(entry.Rate))
	if entry.Billable {
		fmt.Fprintf(out, "  Amount: %s\n", domain.FormatMoney(entry.Amount()))
	} else {
		fmt.Fprintln(out, "  Non-billable")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
