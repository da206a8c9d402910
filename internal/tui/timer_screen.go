package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/andy/casetime/internal/app"
	"github.com/andy/casetime/internal/domain"
	apperrors "github.com/andy/casetime/internal/errors"
	"github.com/andy/casetime/internal/service"
)

// new timer form field indices
const (
	timerFieldCase = iota
	timerFieldDescription
	timerFieldCount
)

// ratePreviewMsg is the rate the new timer would bill at right now
type ratePreviewMsg struct {
	caseID   string
	resolved *service.ResolvedRate
	err      error
}

// startFailedMsg keeps the form open with the server's complaint
type startFailedMsg struct {
	err error
}

// TimerModel is the form that starts a new timer
type TimerModel struct {
	app        *app.App
	fields     []textinput.Model
	fieldFocus int
	starting   bool
	err        error

	previewCase string
	preview     *service.ResolvedRate
	previewErr  error
}

// NewTimerModel creates a new TimerModel
func NewTimerModel(a *app.App) tea.Model {
	m := &TimerModel{app: a}
	m.initForm()
	return m
}

// IsCapturingInput is always true: every key belongs to the form
func (m *TimerModel) IsCapturingInput() bool {
	return true
}

func (m *TimerModel) initForm() {
	m.fields = make([]textinput.Model, timerFieldCount)

	m.fields[timerFieldCase] = textinput.New()
	m.fields[timerFieldCase].Placeholder = "case ID"
	m.fields[timerFieldCase].CharLimit = 64
	m.fields[timerFieldCase].Width = 40

	m.fields[timerFieldDescription] = textinput.New()
	m.fields[timerFieldDescription].Placeholder = "what you are working on (optional)"
	m.fields[timerFieldDescription].CharLimit = 2000
	m.fields[timerFieldDescription].Width = 60

	m.fieldFocus = timerFieldCase
	m.fields[timerFieldCase].Focus()
	m.starting = false
	m.err = nil
	m.previewCase = ""
	m.preview = nil
	m.previewErr = nil
}

func (m *TimerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.initForm()
		return m, textinput.Blink

	case ratePreviewMsg:
		if msg.caseID != strings.TrimSpace(m.fields[timerFieldCase].Value()) {
			return m, nil
		}
		m.preview, m.previewErr = msg.resolved, msg.err
		return m, nil

	case startFailedMsg:
		m.starting = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return SwitchScreenMsg{Screen: ScreenDashboard} }

		case "tab", "down":
			return m, m.focus((m.fieldFocus + 1) % timerFieldCount)

		case "shift+tab", "up":
			return m, m.focus((m.fieldFocus - 1 + timerFieldCount) % timerFieldCount)

		case "enter":
			if m.fieldFocus == timerFieldCount-1 {
				return m, m.start()
			}
			return m, m.focus(m.fieldFocus + 1)

		case "ctrl+s":
			return m, m.start()
		}
	}

	var cmd tea.Cmd
	m.fields[m.fieldFocus], cmd = m.fields[m.fieldFocus].Update(msg)
	return m, cmd
}

// focus moves to field i, previewing the rate when leaving the case field
func (m *TimerModel) focus(i int) tea.Cmd {
	leaving := m.fieldFocus
	m.fields[m.fieldFocus].Blur()
	m.fieldFocus = i
	cmds := []tea.Cmd{m.fields[i].Focus()}
	if leaving == timerFieldCase {
		cmds = append(cmds, m.previewRate())
	}
	return tea.Batch(cmds...)
}

func (m *TimerModel) previewRate() tea.Cmd {
	caseID := strings.TrimSpace(m.fields[timerFieldCase].Value())
	if caseID == "" || caseID == m.previewCase {
		return nil
	}
	m.previewCase = caseID
	m.preview, m.previewErr = nil, nil

	a := m.app
	return func() tea.Msg {
		resolved, err := a.RateService.ResolveForCase(context.Background(), a.API.UserID(), caseID, domain.WorkContext{At: time.Now()})
		return ratePreviewMsg{caseID: caseID, resolved: resolved, err: err}
	}
}

func (m *TimerModel) start() tea.Cmd {
	caseID := strings.TrimSpace(m.fields[timerFieldCase].Value())
	if caseID == "" {
		m.err = fmt.Errorf("case ID is required")
		return nil
	}
	if m.starting {
		return nil
	}
	m.starting = true
	m.err = nil

	description := strings.TrimSpace(m.fields[timerFieldDescription].Value())
	a := m.app
	return func() tea.Msg {
		timer, err := a.TimerService.Start(context.Background(), caseID, description)
		if err != nil {
			return startFailedMsg{err: err}
		}
		return timerStartedMsg{timer: timer}
	}
}

// View renders the new timer form
func (m *TimerModel) View() string {
	var s string
	s += titleStyle.Render("Start a Timer") + "\n\n"

	labels := []string{"Case:", "Description:"}
	for i, label := range labels {
		indicator := "  "
		labelStyle := subtitleStyle
		if i == m.fieldFocus {
			indicator = "> "
			labelStyle = focusedStyle
		}
		s += fmt.Sprintf("%s%s\n  %s\n\n", indicator, labelStyle.Render(label), m.fields[i].View())
	}

	switch {
	case m.previewErr != nil:
		s += subtitleStyle.Render("  No rate applies yet: "+m.previewErr.Error()) + "\n\n"
	case m.preview != nil:
		rate := domain.RoundMoney(m.preview.Multiplied.Rate)
		line := fmt.Sprintf("  Bills at %s/h (%s rate %s)",
			domain.FormatMoney(rate), m.preview.Resolution.Rate.Scope(), m.preview.Resolution.Rate.ID)
		for _, am := range m.preview.Multiplied.Applied {
			line += fmt.Sprintf(" × %s %s", am.Factor.String(), am.Kind)
		}
		s += timerValueStyle.Render(line) + "\n\n"
	}

	if m.starting {
		s += subtitleStyle.Render("  Starting...") + "\n\n"
	}
	if m.err != nil {
		s += errorStyle.Render("  Error: "+apperrors.GetUserMessage(m.err)) + "\n\n"
	}

	s += helpStyle.Render("  tab/shift+tab: navigate fields  enter: next/start  ctrl+s: start  esc: cancel")
	return s
}
