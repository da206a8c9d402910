package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/andy/casetime/internal/app"
	apperrors "github.com/andy/casetime/internal/errors"
)

var (
	appInstance *app.App
	ownsApp     bool
)

// newApp builds the container for a command. Replaced in tests.
var newApp = func(ctx context.Context, fullScreen bool) (*app.App, error) {
	opts := app.DefaultOptions()
	opts.FullScreen = fullScreen
	return app.New(ctx, opts)
}

var rootCmd = &cobra.Command{
	Use:   "casetime",
	Short: "Track billable time against legal cases",
	Long: `Casetime runs timers against cases on the practice-management server,
resolves the billing rate that applies, and turns stopped timers into draft
time entries.

Running casetime without arguments launches the live timer dashboard.
Use subcommands for scripted operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          launchTUI,
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if ownsApp && appInstance != nil {
		appInstance.Close()
		appInstance, ownsApp = nil, false
	}
	if err != nil {
		return userError(err)
	}
	return nil
}

// userError turns err into the line shown on stderr
func userError(err error) error {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return err
	}
	msg := apperrors.GetUserMessage(appErr)
	switch appErr.Type {
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeInvalidConversion:
		if appErr.Cause != nil {
			msg += ": " + appErr.Cause.Error()
		}
	}
	return errors.New(msg)
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
	ownsApp = false
}

// ensureApp builds the container on first use so --help never prompts for secrets
func ensureApp(cmd *cobra.Command, args []string) error {
	if appInstance != nil || !needsApp(cmd) {
		return nil
	}

	a, err := newApp(cmd.Context(), cmd == rootCmd || cmd == tuiCmd)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	appInstance, ownsApp = a, true
	return nil
}

func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == "completion" {
			return false
		}
	}
	return true
}

func init() {
	rootCmd.PersistentPreRunE = ensureApp

	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(tuiCmd)
}
