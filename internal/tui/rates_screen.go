package tui

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/andy/casetime/internal/app"
	"github.com/andy/casetime/internal/domain"
	"github.com/andy/casetime/internal/service"
)

var syncKey = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync cache"))

type ratesLoadedMsg struct {
	rates    []*domain.BillingRate
	syncedAt time.Time
	err      error
}

type ratesSyncedMsg struct {
	result *service.SyncResult
	err    error
}

// RatesModel lists the billing rates that can apply to the user
type RatesModel struct {
	app      *app.App
	rates    []*domain.BillingRate
	syncedAt time.Time
	cursor   int
	loading  bool
	syncing  bool
	err      error
	status   string
}

// NewRatesModel creates the billing rates screen
func NewRatesModel(a *app.App) tea.Model {
	return &RatesModel{app: a, loading: true}
}

func (m *RatesModel) Init() tea.Cmd {
	return m.loadData()
}

func (m *RatesModel) loadData() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		ctx := context.Background()
		userID := a.API.UserID()

		rates, err := a.RateService.ListRates(ctx, userID)
		if err != nil {
			return ratesLoadedMsg{err: err}
		}

		msg := ratesLoadedMsg{rates: rates}
		if a.Cache != nil {
			msg.syncedAt, _ = a.Cache.SyncedAt(ctx, userID)
		}
		return msg
	}
}

func (m *RatesModel) sync() tea.Cmd {
	a := m.app
	return func() tea.Msg {
		result, err := a.Cache.Sync(context.Background(), a.API.UserID())
		return ratesSyncedMsg{result: result, err: err}
	}
}

func (m *RatesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RefreshDataMsg:
		m.loading = true
		return m, m.loadData()

	case ratesLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.rates = sortRates(msg.rates)
		m.syncedAt = msg.syncedAt
		if m.cursor >= len(m.rates) {
			m.cursor = 0
		}
		return m, nil

	case ratesSyncedMsg:
		m.syncing = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = fmt.Sprintf("Cached %d rates and %d case profiles", msg.result.Rates, msg.result.Profiles)
		return m, m.loadData()

	case tea.KeyMsg:
		m.status = ""
		switch {
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.rates)-1 {
				m.cursor++
			}
		case key.Matches(msg, DefaultKeyMap.Refresh):
			m.loading = true
			return m, m.loadData()
		case key.Matches(msg, syncKey):
			if m.app.Cache != nil && !m.syncing {
				m.syncing = true
				m.err = nil
				return m, m.sync()
			}
		}
	}

	return m, nil
}

// sortRates orders most specific first, then newest
func sortRates(rates []*domain.BillingRate) []*domain.BillingRate {
	sorted := make([]*domain.BillingRate, len(rates))
	copy(sorted, rates)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Specificity(), sorted[j].Specificity()
		if si != sj {
			return si > sj
		}
		return sorted[i].EffectiveDate.After(sorted[j].EffectiveDate)
	})
	return sorted
}

func (m *RatesModel) View() string {
	if m.loading {
		return "Loading billing rates..."
	}

	var s string
	s += titleStyle.Render("Billing Rates") + "\n"
	switch {
	case m.app.Cache == nil:
		s += subtitleStyle.Render("  Offline cache disabled") + "\n\n"
	case m.syncedAt.IsZero():
		s += subtitleStyle.Render("  Offline cache never synced") + "\n\n"
	default:
		s += subtitleStyle.Render("  Offline cache synced "+m.syncedAt.Local().Format("2006-01-02 15:04")) + "\n\n"
	}

	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
	}
	if m.status != "" {
		s += successStyle.Render("  "+m.status) + "\n\n"
	}
	if m.syncing {
		s += subtitleStyle.Render("  Syncing...") + "\n\n"
	}

	if len(m.rates) == 0 {
		s += subtitleStyle.Render("  No billing rates") + "\n"
	} else {
		s += subtitleStyle.Render(fmt.Sprintf("  %-8s %-24s %-11s %12s  %-10s %-10s", "Scope", "Applies to", "Type", "Amount", "From", "Until")) + "\n"
		for i, r := range m.rates {
			until := "-"
			if r.EndDate != nil {
				until = r.EndDate.Format("2006-01-02")
			}
			line := fmt.Sprintf("%-8s %-24s %-11s %12s  %-10s %-10s",
				r.Scope(),
				truncateStr(appliesTo(r), 24),
				r.RateType,
				domain.FormatMoney(r.Amount),
				r.EffectiveDate.Format("2006-01-02"),
				until,
			)
			switch {
			case i == m.cursor:
				s += "  " + selectedStyle.Render(line) + "\n"
			case !r.IsActive:
				s += "  " + inactiveRateStyle.Render(line) + "\n"
			default:
				s += "  " + line + "\n"
			}
		}
	}

	help := "  ↑/↓: select  g: reload  esc: back"
	if m.app.Cache != nil {
		help = "  ↑/↓: select  g: reload  s: sync offline cache  esc: back"
	}
	s += "\n" + helpStyle.Render(help)
	return s
}

func appliesTo(r *domain.BillingRate) string {
	switch {
	case r.CaseID != "":
		return "case " + r.CaseID
	case r.ClientID != "" && r.MatterTypeID != "":
		return r.ClientID + " / " + r.MatterTypeID
	case r.ClientID != "":
		return "client " + r.ClientID
	case r.MatterTypeID != "":
		return "matter " + r.MatterTypeID
	}
	return "all work"
}
