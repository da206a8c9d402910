package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/casetime/internal/api"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Inspect and manage billing rates",
}

var ratesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List billing rates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := appInstance.API.UserID()
		rates, err := appInstance.RateService.ListRates(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("failed to list rates: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(rates) == 0 {
			fmt.Fprintln(out, "No billing rates")
			return nil
		}

		fmt.Fprintf(out, "%-12s %-22s %-11s %12s %-10s %-10s %s\n", "ID", "Scope", "Type", "Amount", "From", "Until", "Active")
		fmt.Fprintln(out, strings.Repeat("-", 90))
		for _, r := range rates {
			until := "-"
			if r.EndDate != nil {
				until = r.EndDate.Format(dateFlagLayout)
			}
			active := "yes"
			if !r.IsActive {
				active = "no"
			}
			fmt.Fprintf(out, "%-12s %-22s %-11s %12s %-10s %-10s %s\n",
				truncate(r.ID, 12),
				truncate(scopeLabel(r), 22),
				r.RateType,
				domain.FormatMoney(r.Amount),
				r.EffectiveDate.Format(dateFlagLayout),
				until,
				active,
			)
		}
		return nil
	},
}

var (
	resolveCase      string
	resolveClient    string
	resolveMatter    string
	resolveAt        string
	resolveEmergency bool
	resolveServer    bool
)

var ratesResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which rate applies to work on a case",
	Long: `Show which billing rate applies, and what it becomes after multipliers.

With --case the case's client, matter type, and multipliers are looked up.
Without it only --client and --matter narrow the search and no multipliers apply.
--server asks the server for its own most-specific rate for comparison.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		userID := appInstance.API.UserID()

		at := time.Now()
		if resolveAt != "" {
			var err error
			if at, err = parseWorkedAt(resolveAt, appInstance.Converter.Location()); err != nil {
				return err
			}
		}
		at = at.In(appInstance.Converter.Location())

		if resolveServer {
			key := domain.RateLookup{UserID: userID, CaseID: resolveCase, ClientID: resolveClient, MatterTypeID: resolveMatter, AsOf: at}
			rate, err := appInstance.RateService.ServerMostSpecific(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to fetch server rate: %w", err)
			}
			fmt.Fprintf(out, "Server rate: %s %s (%s, %s)\n", rate.ID, domain.FormatMoney(rate.Amount), rate.RateType, scopeLabel(rate))
			return nil
		}

		if resolveCase == "" {
			key := domain.RateLookup{UserID: userID, ClientID: resolveClient, MatterTypeID: resolveMatter, AsOf: at}
			res, err := appInstance.RateService.Resolve(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to resolve rate: %w", err)
			}
			printResolution(out, res)
			return nil
		}

		resolved, err := appInstance.RateService.ResolveForCase(ctx, userID, resolveCase, domain.WorkContext{
			At:          at,
			IsEmergency: resolveEmergency,
		})
		if err != nil {
			return fmt.Errorf("failed to resolve rate: %w", err)
		}

		printResolution(out, resolved.Resolution)
		for _, m := range resolved.Multiplied.Applied {
			fmt.Fprintf(out, "  × %s (%s)\n", m.Factor.String(), m.Kind)
		}
		fmt.Fprintf(out, "Effective rate: %s/h\n", domain.FormatMoney(domain.RoundMoney(resolved.Multiplied.Rate)))
		return nil
	},
}

var (
	createCase      string
	createClient    string
	createMatter    string
	createType      string
	createEffective string
	createEnd       string
	createInactive  bool
)

var ratesCreateCmd = &cobra.Command{
	Use:   "create <amount>",
	Short: "Create a billing rate on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := domain.ParseMoney(args[0])
		if err != nil {
			return apperrors.NewValidationError("invalid amount", err)
		}

		effective := createEffective
		if effective == "" {
			effective = time.Now().In(appInstance.Converter.Location()).Format(dateFlagLayout)
		}

		req := &api.CreateRateRequest{
			UserID:        appInstance.API.UserID(),
			CaseID:        createCase,
			ClientID:      createClient,
			MatterTypeID:  createMatter,
			RateType:      strings.ToLower(createType),
			Amount:        amount.String(),
			EffectiveDate: effective,
			EndDate:       createEnd,
			IsActive:      !createInactive,
		}

		rate, err := appInstance.RateService.CreateRate(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create rate: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Rate %s created: %s %s (%s)\n", rate.ID, domain.FormatMoney(rate.Amount), rate.RateType, scopeLabel(rate))
		return nil
	},
}

var ratesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the offline rate and case cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appInstance.Cache == nil {
			return fmt.Errorf("the reference cache is disabled")
		}

		result, err := appInstance.Cache.Sync(cmd.Context(), appInstance.API.UserID())
		if err != nil {
			return fmt.Errorf("failed to sync cache: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cached %d rates and %d case profiles", result.Rates, result.Profiles)
		if result.RemovedProfiles > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", dropped %d closed cases", result.RemovedProfiles)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

const dateFlagLayout = "2006-01-02"

func init() {
	ratesResolveCmd.Flags().StringVar(&resolveCase, "case", "", "Case the work is for")
	ratesResolveCmd.Flags().StringVar(&resolveClient, "client", "", "Client ID, when no case is given")
	ratesResolveCmd.Flags().StringVar(&resolveMatter, "matter", "", "Matter type ID, when no case is given")
	ratesResolveCmd.Flags().StringVar(&resolveAt, "at", "", "When the work happens (RFC3339 or \"2006-01-02 15:04\"), default now")
	ratesResolveCmd.Flags().BoolVar(&resolveEmergency, "emergency", false, "Treat the work as an emergency")
	ratesResolveCmd.Flags().BoolVar(&resolveServer, "server", false, "Ask the server instead of resolving locally")

	ratesCreateCmd.Flags().StringVar(&createCase, "case", "", "Scope the rate to a case")
	ratesCreateCmd.Flags().StringVar(&createClient, "client", "", "Scope the rate to a client")
	ratesCreateCmd.Flags().StringVar(&createMatter, "matter", "", "Scope the rate to a matter type")
	ratesCreateCmd.Flags().StringVar(&createType, "type", string(domain.RateTypeStandard), "standard, premium, discounted, emergency, or pro_bono")
	ratesCreateCmd.Flags().StringVar(&createEffective, "effective", "", "First day the rate applies (YYYY-MM-DD), default today")
	ratesCreateCmd.Flags().StringVar(&createEnd, "end", "", "Last day the rate applies (YYYY-MM-DD)")
	ratesCreateCmd.Flags().BoolVar(&createInactive, "inactive", false, "Create the rate switched off")

	ratesCmd.AddCommand(ratesListCmd)
	ratesCmd.AddCommand(ratesResolveCmd)
	ratesCmd.AddCommand(ratesCreateCmd)
	ratesCmd.AddCommand(ratesSyncCmd)
}

func printResolution(out io.Writer, res *domain.RateResolution) {
	r := res.Rate
	fmt.Fprintf(out, "Rate %s: %s/h %s (%s scope, effective %s)\n",
		r.ID, domain.FormatMoney(r.Amount), r.RateType, r.Scope(), r.EffectiveDate.Format(dateFlagLayout))
	fmt.Fprintf(out, "  %d candidate(s) matched\n", res.Candidates)
	if res.Ambiguous {
		fmt.Fprintf(out, "  warning: tied with %s; picked by ID\n", strings.Join(res.TiedWith, ", "))
	}
}

func scopeLabel(r *domain.BillingRate) string {
	var parts []string
	if r.CaseID != "" {
		parts = append(parts, "case "+r.CaseID)
	}
	if r.ClientID != "" {
		parts = append(parts, "client "+r.ClientID)
	}
	if r.MatterTypeID != "" {
		parts = append(parts, "matter "+r.MatterTypeID)
	}
	if len(parts) == 0 {
		return "default"
	}
	return strings.Join(parts, ", ")
}
