package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the tail view key bindings with built-in help text.
type KeyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
	Escape    key.Binding

	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	Debug  key.Binding
	Info   key.Binding
	Warn   key.Binding
	Error  key.Binding
	Search key.Binding
	Clear  key.Binding
	Pause  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Escape: key.NewBinding(
			key.WithKeys("escape", "esc"),
			key.WithHelp("esc", "clear search"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("pgdn", "page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g", "oldest"),
		),
		End: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G", "newest"),
		),

		Debug: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "debug"),
		),
		Info: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "info"),
		),
		Warn: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "warn"),
		),
		Error: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "error"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear buffer"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p", " "),
			key.WithHelp("p", "pause"),
		),
	}
}

// helpBindings lists the bindings shown in the footer, in order.
func (k KeyMap) helpBindings() []key.Binding {
	return []key.Binding{k.Debug, k.Info, k.Warn, k.Error, k.Search, k.Pause, k.Clear, k.End, k.Quit}
}
