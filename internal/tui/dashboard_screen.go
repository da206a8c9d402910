package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/andy/casetime/internal/app"
	"github.com/andy/casetime/internal/domain"
	"github.com/andy/casetime/internal/service"
	"github.com/andy/casetime/internal/store"
)

// pricing is the hourly rate a timer accrues at
type pricing struct {
	rate   decimal.Decimal
	priced bool
}

// DashboardModel is the live board of active timers
type DashboardModel struct {
	app *app.App

	snap   store.Snapshot
	loaded bool
	cursor int

	// Rates are resolved once per timer; values are recomputed every tick
	prices  map[string]pricing
	pricing map[string]bool
}

type pricedMsg struct {
	accruals []service.TimerAccrual
	asked    []string
	err      error
}

// NewDashboardModel creates a new dashboard model
func NewDashboardModel(a *app.App) tea.Model {
	return &DashboardModel{
		app:     a,
		prices:  make(map[string]pricing),
		pricing: make(map[string]bool),
	}
}

func (m *DashboardModel) Init() tea.Cmd {
	return nil
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.snap = msg.snap
		m.loaded = true
		if m.cursor >= len(m.snap.Timers) {
			m.cursor = len(m.snap.Timers) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, m.priceNew()

	case pricedMsg:
		for _, id := range msg.asked {
			delete(m.pricing, id)
		}
		if msg.err != nil {
			return m, func() tea.Msg { return ErrorMsg{Err: msg.err} }
		}
		for _, a := range msg.accruals {
			m.prices[a.TimerID] = pricing{rate: a.Rate, priced: a.Priced}
		}
		return m, nil

	case RefreshDataMsg:
		return m, refreshTimersCmd(m.app)

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}

	return m, nil
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	keys := DefaultKeyMap
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return nil
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.snap.Timers)-1 {
			m.cursor++
		}
		return nil
	case key.Matches(msg, keys.Refresh):
		return refreshTimersCmd(m.app)
	case key.Matches(msg, keys.StopAll):
		if len(m.snap.Timers) == 0 {
			return nil
		}
		return m.stopAll()
	}

	selected := m.selected()
	if selected == nil {
		return nil
	}
	id := selected.Timer.ID

	switch {
	case key.Matches(msg, keys.Pause):
		return m.act(func(ctx context.Context) (string, error) {
			_, err := m.app.TimerService.Pause(ctx, id)
			return "Paused " + id, err
		})
	case key.Matches(msg, keys.Resume):
		return m.act(func(ctx context.Context) (string, error) {
			_, err := m.app.TimerService.Resume(ctx, id)
			return "Resumed " + id, err
		})
	case key.Matches(msg, keys.Stop):
		return m.act(func(ctx context.Context) (string, error) {
			entry, err := m.app.TimerService.Convert(ctx, id, service.ConvertOptions{Billable: true})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Draft entry %s: %sh at %s/h = %s",
				entry.ID, entry.Hours.String(), domain.FormatMoney(entry.Rate), domain.FormatMoney(entry.Amount())), nil
		})
	case key.Matches(msg, keys.Discard):
		return m.act(func(ctx context.Context) (string, error) {
			return "Discarded " + id, m.app.TimerService.Discard(ctx, id)
		})
	}
	return nil
}

// act runs a lifecycle call off the UI goroutine; the store publishes its effect
func (m *DashboardModel) act(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		text, err := fn(context.Background())
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return StatusMsg{Text: text}
	}
}

func (m *DashboardModel) stopAll() tea.Cmd {
	return func() tea.Msg {
		results, err := m.app.TimerService.StopAll(context.Background())
		if err != nil {
			return ErrorMsg{Err: err}
		}
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return ErrorMsg{Err: fmt.Errorf("%d of %d timers could not be discarded", failed, len(results))}
		}
		return StatusMsg{Text: fmt.Sprintf("Discarded %d timer(s)", len(results))}
	}
}

// priceNew resolves rates for timers seen for the first time
func (m *DashboardModel) priceNew() tea.Cmd {
	live := make(map[string]bool, len(m.snap.Timers))
	var fresh []store.TimerView
	for _, v := range m.snap.Timers {
		live[v.Timer.ID] = true
		if _, ok := m.prices[v.Timer.ID]; ok || m.pricing[v.Timer.ID] {
			continue
		}
		fresh = append(fresh, v)
	}
	for id := range m.prices {
		if !live[id] {
			delete(m.prices, id)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	asked := make([]string, len(fresh))
	for i, v := range fresh {
		asked[i] = v.Timer.ID
		m.pricing[v.Timer.ID] = true
	}
	snap := store.Snapshot{At: m.snap.At, Timers: fresh}
	reports := m.app.ReportService
	return func() tea.Msg {
		summary, err := reports.Accruals(context.Background(), snap)
		if err != nil {
			return pricedMsg{asked: asked, err: err}
		}
		return pricedMsg{accruals: summary.Timers, asked: asked}
	}
}

func (m *DashboardModel) selected() *store.TimerView {
	if m.cursor < 0 || m.cursor >= len(m.snap.Timers) {
		return nil
	}
	return &m.snap.Timers[m.cursor]
}

func (m *DashboardModel) View() string {
	if !m.loaded {
		return "Loading timers..."
	}

	var b strings.Builder

	if m.snap.Stale {
		since := "never"
		if !m.snap.LastSync.IsZero() {
			since = m.snap.LastSync.Local().Format("15:04:05")
		}
		b.WriteString(staleStyle.Render(fmt.Sprintf("  Server unreachable; showing cached timers (last sync %s)", since)))
		b.WriteString("\n\n")
	}

	if len(m.snap.Timers) == 0 {
		b.WriteString(subtitleStyle.Render("  No active timers. Press n to start one."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(subtitleStyle.Render(fmt.Sprintf("    %-14s %-30s %9s %11s %11s", "Case", "Description", "Elapsed", "Rate", "Value")))
	b.WriteString("\n")

	total := decimal.Zero
	var totalSeconds int64
	for i, v := range m.snap.Timers {
		rate, value := "-", "-"
		if p, ok := m.prices[v.Timer.ID]; ok && p.priced {
			amount := accruedValue(p.rate, v.ElapsedSeconds)
			total = total.Add(amount)
			rate = domain.FormatMoney(p.rate)
			value = domain.FormatMoney(amount)
		}
		totalSeconds += v.ElapsedSeconds

		state := timerRunningStyle.Render("●")
		if v.State == domain.TimerStatePaused {
			state = timerPausedStyle.Render("‖")
		}
		if v.Pending {
			state = timerPendingStyle.Render("…")
		}

		line := fmt.Sprintf("%-14s %-30s %9s %11s %11s",
			truncateStr(v.Timer.CaseID, 14),
			truncateStr(v.Timer.Description, 30),
			v.Display,
			rate,
			timerValueStyle.Render(fmt.Sprintf("%11s", value)),
		)
		if i == m.cursor {
			b.WriteString("> " + state + " " + selectedStyle.Render(line))
		} else {
			b.WriteString("  " + state + " " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %d timer(s)  %s  %s\n",
		len(m.snap.Timers), domain.FormatHMS(totalSeconds), timerValueStyle.Render(domain.FormatMoney(total))))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  ↑/↓: select  p: pause  r: resume  x: stop to draft entry  d: discard  A: discard all  g: refresh"))

	return b.String()
}
