package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/casetime/internal/app"
)

type settingsMode int

const (
	settingsModeView settingsMode = iota
	settingsModeEdit
)

// settings form field indices
const (
	settingsFieldDefaultRate = iota
	settingsFieldStartHour
	settingsFieldEndHour
	settingsFieldTimezone
	settingsFieldCount
)

type settingsSavedMsg struct {
	err error
}

// SettingsModel manages the billing settings screen
type SettingsModel struct {
	app        *app.App
	mode       settingsMode
	fields     []textinput.Model
	fieldFocus int
	err        error
	statusMsg  string
}

// NewSettingsModel creates a new settings screen
func NewSettingsModel(a *app.App) tea.Model {
	return &SettingsModel{
		app:  a,
		mode: settingsModeView,
	}
}

// IsCapturingInput returns true when the edit form is active
func (m *SettingsModel) IsCapturingInput() bool {
	return m.mode == settingsModeEdit
}

func (m *SettingsModel) Init() tea.Cmd {
	return nil
}

func (m *SettingsModel) initForm() {
	m.fields = make([]textinput.Model, settingsFieldCount)
	cfg := m.app.Config.Billing

	m.fields[settingsFieldDefaultRate] = textinput.New()
	m.fields[settingsFieldDefaultRate].Placeholder = "none"
	m.fields[settingsFieldDefaultRate].CharLimit = 20
	m.fields[settingsFieldDefaultRate].Width = 20
	m.fields[settingsFieldDefaultRate].SetValue(cfg.DefaultRate)

	m.fields[settingsFieldStartHour] = textinput.New()
	m.fields[settingsFieldStartHour].Placeholder = "8"
	m.fields[settingsFieldStartHour].CharLimit = 2
	m.fields[settingsFieldStartHour].Width = 5
	m.fields[settingsFieldStartHour].SetValue(strconv.Itoa(cfg.BusinessStartHour))

	m.fields[settingsFieldEndHour] = textinput.New()
	m.fields[settingsFieldEndHour].Placeholder = "18"
	m.fields[settingsFieldEndHour].CharLimit = 2
	m.fields[settingsFieldEndHour].Width = 5
	m.fields[settingsFieldEndHour].SetValue(strconv.Itoa(cfg.BusinessEndHour))

	m.fields[settingsFieldTimezone] = textinput.New()
	m.fields[settingsFieldTimezone].Placeholder = "Local"
	m.fields[settingsFieldTimezone].CharLimit = 64
	m.fields[settingsFieldTimezone].Width = 30
	m.fields[settingsFieldTimezone].SetValue(cfg.Timezone)

	m.fieldFocus = settingsFieldDefaultRate
	m.fields[settingsFieldDefaultRate].Focus()
}

func (m *SettingsModel) saveSettings() tea.Cmd {
	return func() tea.Msg {
		billing := m.app.Config.Billing
		billing.DefaultRate = strings.TrimSpace(m.fields[settingsFieldDefaultRate].Value())
		billing.Timezone = strings.TrimSpace(m.fields[settingsFieldTimezone].Value())

		start, err := strconv.Atoi(strings.TrimSpace(m.fields[settingsFieldStartHour].Value()))
		if err != nil {
			return settingsSavedMsg{err: fmt.Errorf("business start hour must be a number")}
		}
		end, err := strconv.Atoi(strings.TrimSpace(m.fields[settingsFieldEndHour].Value()))
		if err != nil {
			return settingsSavedMsg{err: fmt.Errorf("business end hour must be a number")}
		}
		billing.BusinessStartHour, billing.BusinessEndHour = start, end

		candidate := *m.app.Config
		candidate.Billing = billing
		if err := candidate.Validate(); err != nil {
			return settingsSavedMsg{err: err}
		}

		m.app.Config.Billing = billing
		if err := m.app.SaveConfig(); err != nil {
			return settingsSavedMsg{err: fmt.Errorf("failed to save config: %w", err)}
		}

		return settingsSavedMsg{}
	}
}

func (m *SettingsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.mode == settingsModeEdit {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.err = nil
		switch {
		case msg.String() == "enter":
			m.mode = settingsModeEdit
			m.statusMsg = ""
			m.initForm()
			return m, m.fields[m.fieldFocus].Focus()
		}
	}

	return m, nil
}

func (m *SettingsModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case settingsSavedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mode = settingsModeView
		m.statusMsg = "Settings saved; restart casetime to apply them"
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			m.mode = settingsModeView
			m.err = nil
			return m, nil

		case "tab", "down":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus + 1) % settingsFieldCount
			return m, m.fields[m.fieldFocus].Focus()

		case "shift+tab", "up":
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus = (m.fieldFocus - 1 + settingsFieldCount) % settingsFieldCount
			return m, m.fields[m.fieldFocus].Focus()

		case "enter":
			if m.fieldFocus == settingsFieldCount-1 {
				return m, m.saveSettings()
			}
			m.fields[m.fieldFocus].Blur()
			m.fieldFocus++
			return m, m.fields[m.fieldFocus].Focus()

		case "ctrl+s":
			return m, m.saveSettings()
		}
	}

	// Update the focused text input
	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

func (m *SettingsModel) View() string {
	if m.mode == settingsModeEdit {
		return m.viewForm()
	}
	return m.viewSettings()
}

func (m *SettingsModel) viewSettings() string {
	var s string
	s += titleStyle.Render("Settings") + "\n\n"

	if m.statusMsg != "" {
		s += successStyle.Render("  "+m.statusMsg) + "\n\n"
	}

	cfg := m.app.Config

	labelStyle := lipgloss.NewStyle().Bold(true).Width(22)
	valueStyle := lipgloss.NewStyle().Foreground(primaryColor)

	defaultRate := cfg.Billing.DefaultRate
	if defaultRate == "" {
		defaultRate = "none"
	}
	cache := "disabled"
	if m.app.Cache != nil {
		cache = cfg.Cache.Path
	}

	s += subtitleStyle.Render("  Billing") + "\n\n"
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("Default Rate:"), valueStyle.Render(defaultRate))
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("Business Hours:"), valueStyle.Render(
		fmt.Sprintf("%02d:00-%02d:00", cfg.Billing.BusinessStartHour, cfg.Billing.BusinessEndHour)))
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("Timezone:"), valueStyle.Render(cfg.Billing.Timezone))

	s += "\n" + subtitleStyle.Render("  Connection") + "\n\n"
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("Server:"), valueStyle.Render(cfg.API.BaseURL))
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("User:"), valueStyle.Render(cfg.API.UserID))
	s += fmt.Sprintf("  %s %s\n", labelStyle.Render("Offline Cache:"), valueStyle.Render(cache))

	s += "\n" + helpStyle.Render("  enter: edit billing settings")

	return s
}

func (m *SettingsModel) viewForm() string {
	var s string
	s += titleStyle.Render("Edit Billing Settings") + "\n\n"

	labels := []string{"Default Rate (blank = none):", "Business Start Hour:", "Business End Hour:", "Timezone:"}
	for i, label := range labels {
		indicator := "  "
		if i == m.fieldFocus {
			indicator = "> "
		}
		labelStyle := subtitleStyle
		if i == m.fieldFocus {
			labelStyle = focusedStyle
		}
		s += fmt.Sprintf("%s%s\n  %s\n\n", indicator, labelStyle.Render(label), m.fields[i].View())
	}

	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
	}

	s += helpStyle.Render("  tab/shift+tab: navigate fields  ctrl+s: save  enter: next/save  esc: cancel")

	return s
}
