package keys

import "github.com/charmbracelet/bubbles/key"

// WatchKeys are the key bindings of the live role dashboard
type WatchKeys struct {
	Quit      key.Binding
	Help      key.Binding
	ToggleLog key.Binding
	Details   key.Binding
	Up        key.Binding
	Down      key.Binding
}

func NewWatchKeys() WatchKeys {
	return WatchKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		ToggleLog: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle event log"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "device details"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

func (k WatchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Details, k.ToggleLog, k.Help, k.Quit}
}

func (k WatchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Details, k.ToggleLog},
		{k.Help, k.Quit},
	}
}
