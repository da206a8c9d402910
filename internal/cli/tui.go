package cli

import (
	"github.com/spf13/cobra"

	"github.com/andy/casetime/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the terminal UI",
	Long:  `Launch the interactive timer board. Running casetime with no command does the same.`,
	Args:  cobra.NoArgs,
	RunE:  launchTUI,
}

func launchTUI(cmd *cobra.Command, args []string) error {
	return tui.Run(appInstance)
}
