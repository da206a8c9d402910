package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("39")  // blue
	accentColor  = lipgloss.Color("205") // pink
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("76")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	borderColor  = lipgloss.Color("63")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtitleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Background(primaryColor).Foreground(lipgloss.Color("0"))
	focusedStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	// Feedback lines
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)

	appBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)

	// Timer board
	timerRunningStyle = lipgloss.NewStyle().Bold(true).Foreground(successColor)
	timerPausedStyle  = lipgloss.NewStyle().Bold(true).Foreground(warningColor)
	timerPendingStyle = lipgloss.NewStyle().Foreground(mutedColor)
	timerValueStyle   = lipgloss.NewStyle().Foreground(accentColor)
	staleStyle        = lipgloss.NewStyle().Bold(true).Foreground(warningColor)

	// Rates list
	inactiveRateStyle = lipgloss.NewStyle().Foreground(mutedColor).Strikethrough(true)
)
