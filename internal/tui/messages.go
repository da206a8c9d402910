package tui

import (
	"github.com/andy/casetime/internal/domain"
	"github.com/andy/casetime/internal/store"
)

// SwitchScreenMsg requests a screen change
type SwitchScreenMsg struct {
	Screen Screen
}

// RefreshDataMsg requests data refresh
type RefreshDataMsg struct{}

// ErrorMsg carries error information
type ErrorMsg struct {
	Err error
}

// StatusMsg is a one-line confirmation shown under the current screen
type StatusMsg struct {
	Text string
}

// snapshotMsg carries one published store snapshot
type snapshotMsg struct {
	snap store.Snapshot
}

// subscriptionClosedMsg means the store shut down
type subscriptionClosedMsg struct{}

// timerStartedMsg is sent when the new-timer form succeeds
type timerStartedMsg struct {
	timer *domain.Timer
}
