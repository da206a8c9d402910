package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Quit key.Binding
	Back key.Binding

	// Navigation
	NewTimer key.Binding
	Rates    key.Binding
	Settings key.Binding

	// Timer actions
	Pause   key.Binding
	Resume  key.Binding
	Stop    key.Binding
	Discard key.Binding
	StopAll key.Binding
	Refresh key.Binding

	// Movement
	Up   key.Binding
	Down key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	NewTimer: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new timer")),
	Rates:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "billing rates")),
	Settings: key.NewBinding(key.WithKeys(","), key.WithHelp(",", "settings")),
	Pause:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
	Discard:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "discard")),
	StopAll:  key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "discard all")),
	Refresh:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "refresh")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
}
