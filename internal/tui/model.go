package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/casetime/internal/app"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/store"
)

// Screen represents the current active screen
type Screen int

const (
	ScreenDashboard Screen = iota
	ScreenTimer
	ScreenRates
	ScreenSettings
)

// String returns the screen name
func (s Screen) String() string {
	switch s {
	case ScreenDashboard:
		return "Timers"
	case ScreenTimer:
		return "New Timer"
	case ScreenRates:
		return "Billing Rates"
	case ScreenSettings:
		return "Settings"
	default:
		return "Unknown"
	}
}

// Model is the root Bubble Tea model
type Model struct {
	app           *app.App
	currentScreen Screen
	width         int
	height        int

	// Store subscription feeding the dashboard
	snapshots   <-chan store.Snapshot
	unsubscribe func()

	// Screen models (lazy initialized, except the dashboard)
	dashboard tea.Model
	timer     tea.Model
	rates     tea.Model
	settings  tea.Model

	err       error
	statusMsg string
	quitMsg   string // shown when quit needs confirming
	quitArmed bool
}

// New creates a new root model subscribed to the timer store
func New(a *app.App) Model {
	ch, cancel := a.Timers.Subscribe()
	return Model{
		app:           a,
		currentScreen: ScreenDashboard,
		snapshots:     ch,
		unsubscribe:   cancel,
		dashboard:     NewDashboardModel(a),
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.snapshots),
		refreshTimersCmd(m.app),
		m.dashboard.Init(),
	)
}

// waitForSnapshot blocks on the next published snapshot
func waitForSnapshot(ch <-chan store.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// refreshTimersCmd pulls the server's view; the store publishes the result
func refreshTimersCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		if _, err := a.TimerService.Refresh(context.Background()); err != nil {
			return ErrorMsg{Err: err}
		}
		return nil
	}
}

// initScreen lazy-initializes a screen on first visit,
// and sends a RefreshDataMsg on subsequent visits so screens reload data.
func (m *Model) initScreen(screen Screen) tea.Cmd {
	switch screen {
	case ScreenDashboard:
		return func() tea.Msg { return RefreshDataMsg{} }
	case ScreenTimer:
		if m.timer == nil {
			m.timer = NewTimerModel(m.app)
			return m.timer.Init()
		}
		return func() tea.Msg { return RefreshDataMsg{} }
	case ScreenRates:
		if m.rates == nil {
			m.rates = NewRatesModel(m.app)
			return m.rates.Init()
		}
		return func() tea.Msg { return RefreshDataMsg{} }
	case ScreenSettings:
		if m.settings == nil {
			m.settings = NewSettingsModel(m.app)
			return m.settings.Init()
		}
		return func() tea.Msg { return RefreshDataMsg{} }
	}
	return nil
}

// InputCapturer is implemented by screens that capture keyboard input (e.g. text forms).
// When active, global navigation keys are suppressed.
type InputCapturer interface {
	IsCapturingInput() bool
}

func (m *Model) activeScreen() tea.Model {
	switch m.currentScreen {
	case ScreenDashboard:
		return m.dashboard
	case ScreenTimer:
		return m.timer
	case ScreenRates:
		return m.rates
	case ScreenSettings:
		return m.settings
	}
	return nil
}

// activeScreenCapturingInput returns true if the current screen is capturing text input
func (m *Model) activeScreenCapturingInput() bool {
	if ic, ok := m.activeScreen().(InputCapturer); ok {
		return ic.IsCapturingInput()
	}
	return false
}

func (m *Model) switchTo(screen Screen) tea.Cmd {
	m.currentScreen = screen
	return m.initScreen(screen)
}

// Update implements tea.Model - routes keys to screens
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		// The dashboard tracks timers even while another screen is shown
		var cmd tea.Cmd
		m.dashboard, cmd = m.dashboard.Update(msg)
		return m, tea.Batch(cmd, waitForSnapshot(m.snapshots))

	case subscriptionClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if !key.Matches(msg, DefaultKeyMap.Quit) {
			m.quitMsg = ""
			m.quitArmed = false
		}
		m.err = nil
		m.statusMsg = ""

		// ctrl+c always quits
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}

		if !m.activeScreenCapturingInput() {
			switch {
			case key.Matches(msg, DefaultKeyMap.Quit):
				running := countRunning(m.app.TimerService.Snapshot())
				if running > 0 && !m.quitArmed {
					m.quitArmed = true
					m.quitMsg = fmt.Sprintf("%d timer(s) keep running on the server. Press q again to quit.", running)
					return m, nil
				}
				return m, m.quit()

			case key.Matches(msg, DefaultKeyMap.Back) && m.currentScreen != ScreenDashboard:
				return m, m.switchTo(ScreenDashboard)

			case key.Matches(msg, DefaultKeyMap.NewTimer):
				return m, m.switchTo(ScreenTimer)

			case key.Matches(msg, DefaultKeyMap.Rates):
				return m, m.switchTo(ScreenRates)

			case key.Matches(msg, DefaultKeyMap.Settings):
				return m, m.switchTo(ScreenSettings)
			}
		}

	case SwitchScreenMsg:
		return m, m.switchTo(msg.Screen)

	case timerStartedMsg:
		m.statusMsg = fmt.Sprintf("Timer %s started on case %s", msg.timer.ID, msg.timer.CaseID)
		return m, m.switchTo(ScreenDashboard)

	case StatusMsg:
		m.statusMsg = msg.Text
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	// Route message to current screen
	var cmd tea.Cmd
	switch m.currentScreen {
	case ScreenDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case ScreenTimer:
		if m.timer != nil {
			m.timer, cmd = m.timer.Update(msg)
		}
	case ScreenRates:
		if m.rates != nil {
			m.rates, cmd = m.rates.Update(msg)
		}
	case ScreenSettings:
		if m.settings != nil {
			m.settings, cmd = m.settings.Update(msg)
		}
	}

	return m, cmd
}

func (m *Model) quit() tea.Cmd {
	return tea.Quit
}

func countRunning(snap store.Snapshot) int {
	n := 0
	for _, v := range snap.Timers {
		if v.Timer.IsActive {
			n++
		}
	}
	return n
}

// View implements tea.Model - renders header + current screen + footer
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Render(fmt.Sprintf("casetime - %s", m.currentScreen.String()))
	footer := footerStyle.Render("[N]ew timer  [B]illing rates  [,] Settings  [Esc] Timers  [Q]uit")

	content := "Loading..."
	if screen := m.activeScreen(); screen != nil {
		content = screen.View()
	}

	statusDisplay := ""
	switch {
	case m.quitMsg != "":
		statusDisplay = warningStyle.Render("\n" + m.quitMsg)
	case m.err != nil:
		statusDisplay = errorStyle.Render("\nError: " + apperrors.GetUserMessage(m.err))
	case m.statusMsg != "":
		statusDisplay = successStyle.Render("\n" + m.statusMsg)
	}

	innerWidth := m.width - 6 // account for border (2) + padding (4)
	if innerWidth < 20 {
		innerWidth = 20
	}
	dividerWidth := innerWidth - 12
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := lipgloss.NewStyle().Foreground(borderColor).Render(strings.Repeat("─", dividerWidth))

	body := fmt.Sprintf("%s\n%s\n\n%s%s\n\n%s\n%s", header, divider, content, statusDisplay, divider, footer)

	frame := appBorderStyle.
		Width(innerWidth).
		Height(m.height - 4) // leave room for border top/bottom
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, frame.Render(body))
}

// Run starts the TUI
func Run(a *app.App) error {
	m := New(a)
	defer m.unsubscribe()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
