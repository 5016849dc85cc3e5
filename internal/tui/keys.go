package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Crypto  key.Binding
	Stocks  key.Binding
	Forex   key.Binding
	Admin   key.Binding
	Open    key.Binding
	Back    key.Binding
	Convert key.Binding
	Next    key.Binding
	Refresh key.Binding
	Theme   key.Binding
	SignOut key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Crypto: key.NewBinding(
		key.WithKeys("1", "c"),
		key.WithHelp("1/c", "crypto"),
	),
	Stocks: key.NewBinding(
		key.WithKeys("2", "s"),
		key.WithHelp("2/s", "stocks"),
	),
	Forex: key.NewBinding(
		key.WithKeys("3", "f"),
		key.WithHelp("3/f", "forex"),
	),
	Admin: key.NewBinding(
		key.WithKeys("4", "a"),
		key.WithHelp("4/a", "admin"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "details"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "backspace"),
		key.WithHelp("esc", "back"),
	),
	Convert: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "convert"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next field"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Theme: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "theme"),
	),
	SignOut: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "sign out"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Crypto, k.Stocks, k.Forex, k.Open, k.Theme, k.SignOut, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Crypto, k.Stocks, k.Forex, k.Admin},
		{k.Open, k.Back, k.Convert, k.Next},
		{k.Refresh, k.Theme, k.SignOut, k.Help, k.Quit},
	}
}
