package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard shortcuts for the update screen.
// Each binding includes the actual keys and help text for display.
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding

	// Actions
	Check    key.Binding
	Download key.Binding
	Install  key.Binding
	Copy     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// DefaultKeyMap returns the default keybindings for Skylight.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		// Up/Down share help text (displayed as single row)
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/↓  j/k", "Scroll notes"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↑/↓  j/k", "Scroll notes"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+b"),
			key.WithHelp("PgUp  Ctrl+B", "Page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+f"),
			key.WithHelp("PgDn  Ctrl+F", "Page down"),
		),

		Check: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Check for updates"),
		),
		Download: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Download"),
		),
		Install: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "Install and restart"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "Copy path or error"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Check, k.Download, k.Install, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Check, k.Download, k.Install, k.Copy},
		{k.Up, k.PageUp, k.PageDown},
		{k.Help, k.Quit},
	}
}

// withPhase enables only the actions the current phase allows.
func (k KeyMap) withPhase(check, download, install bool) KeyMap {
	k.Check.SetEnabled(check)
	k.Download.SetEnabled(download)
	k.Install.SetEnabled(install)
	return k
}
